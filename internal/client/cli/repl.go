package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Projects(ctx context.Context) error
	AddProject(ctx context.Context) error
	OpenProject(ctx context.Context) error
	Elements(ctx context.Context) error
	AddElement(ctx context.Context) error
	Relationships(ctx context.Context) error
	AddRelationship(ctx context.Context) error
	Templates(ctx context.Context) error
	AddTemplate(ctx context.Context) error
	Show(ctx context.Context) error
	Attach(ctx context.Context) error
	Delete(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Command handlers log their own errors; the loop ignores the returned
// values so a failed command never kills the session.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("wl> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		if !a.isLoggedIn() {
			switch cmd {
			case "help":
				printlnFn("Available commands: register, login, status, exit")
			case "register":
				_ = a.Register(ctx)
			case "login":
				_ = a.Login(ctx)
			case "status":
				_ = a.Status(ctx)
			case "exit", "quit":
				printlnFn("Bye!")
				return
			default:
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "help":
			printlnFn("Available commands: projects, addproject, open, elements, addelement," +
				" rels, addrel, templates, addtemplate, show, attach, delete, sync, status, logout, exit")

		case "projects":
			_ = a.Projects(ctx)

		case "addproject":
			_ = a.AddProject(ctx)

		case "open":
			_ = a.OpenProject(ctx)

		case "elements":
			_ = a.Elements(ctx)

		case "addelement":
			_ = a.AddElement(ctx)

		case "rels":
			_ = a.Relationships(ctx)

		case "addrel":
			_ = a.AddRelationship(ctx)

		case "templates":
			_ = a.Templates(ctx)

		case "addtemplate":
			_ = a.AddTemplate(ctx)

		case "show":
			_ = a.Show(ctx)

		case "attach":
			_ = a.Attach(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "status":
			_ = a.Status(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

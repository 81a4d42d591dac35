package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	return f.record("register")
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}
func (f *fakeExec) Projects(ctx context.Context) error     { return f.record("projects") }
func (f *fakeExec) AddProject(ctx context.Context) error   { return f.record("addproject") }
func (f *fakeExec) OpenProject(ctx context.Context) error  { return f.record("open") }
func (f *fakeExec) Elements(ctx context.Context) error     { return f.record("elements") }
func (f *fakeExec) AddElement(ctx context.Context) error   { return f.record("addelement") }
func (f *fakeExec) Relationships(ctx context.Context) error { return f.record("rels") }
func (f *fakeExec) AddRelationship(ctx context.Context) error {
	return f.record("addrel")
}
func (f *fakeExec) Templates(ctx context.Context) error   { return f.record("templates") }
func (f *fakeExec) AddTemplate(ctx context.Context) error { return f.record("addtemplate") }
func (f *fakeExec) Show(ctx context.Context) error        { return f.record("show") }
func (f *fakeExec) Attach(ctx context.Context) error      { return f.record("attach") }
func (f *fakeExec) Delete(ctx context.Context) error      { return f.record("delete") }
func (f *fakeExec) Sync(ctx context.Context) error        { return f.record("sync") }
func (f *fakeExec) Status(ctx context.Context) error      { return f.record("status") }

func TestRunREPL_DispatchesInOrder(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"login",
		"help",
		"addproject",
		"open",
		"addelement",
		"elements",
		"sync",
		"status",
		"foobar",
		"exit",
	}, "\n"))

	exec := &fakeExec{loggedIn: false}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "status" }, sc)

	wantOrder := []string{"login", "addproject", "open", "addelement", "elements", "sync", "status"}
	idx := 0
	for _, c := range exec.calls {
		if idx < len(wantOrder) && c == wantOrder[idx] {
			idx++
		}
	}
	if idx != len(wantOrder) {
		t.Fatalf("commands order mismatch: got %v, want subseq %v", exec.calls, wantOrder)
	}
}

func TestRunREPL_RequiresLogin(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("projects\naddelement\nstatus\nquit\n")
	exec := &fakeExec{loggedIn: false}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "s" }, sc)

	// before login only status is allowed from that script
	if len(exec.calls) != 1 || exec.calls[0] != "status" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

func TestRunREPL_ExitsOnEOF(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("")
	exec := &fakeExec{loggedIn: true}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "s" }, sc)

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

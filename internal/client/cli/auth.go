package cli

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/worldloom/internal/client/repositories/metadata"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username and password and creates an account. A
// successful registration also signs the user in.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	if err := a.api.Register(ctx, userName, password); err != nil {
		log.Printf("Registration unsuccessful: %s", err.Error())
		return err
	}
	if err := a.api.Login(ctx, userName, password); err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	if err := a.repos.Metadata.Set(ctx, metadata.KeyUsername, []byte(userName)); err != nil {
		return err
	}
	a.userName = userName

	printlnFn("Success!")
	return nil
}

// Login prompts for credentials and authenticates against the server. The
// token pair lands in local metadata, so later sessions start signed in and
// keep working offline until a request needs a fresh token.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	if err := a.api.Login(ctx, userName, password); err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	if err := a.repos.Metadata.Set(ctx, metadata.KeyUsername, []byte(userName)); err != nil {
		return err
	}
	a.userName = userName
	a.engine.SyncNow()

	log.Printf("Login successful")
	return nil
}

// Logout drops the tokens and the remembered username. Local data stays on
// the device; the next login resumes syncing from the stored checkpoints.
func (a *App) Logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil {
		return err
	}
	if err := a.repos.Metadata.Delete(ctx, metadata.KeyUsername); err != nil {
		return err
	}
	a.userName = ""
	a.projectID = ""
	a.projectName = ""
	return nil
}

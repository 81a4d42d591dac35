package cli

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Projects lists every live project.
func (a *App) Projects(ctx context.Context) error {
	_, err := a.listRows(ctx, model.EntityProject, "")
	return err
}

// AddProject collects a name and an optional description and creates the
// project locally; the engine pushes it in the background.
func (a *App) AddProject(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter project name", os.Stdout)
	if err != nil {
		return err
	}
	description, err := getSimpleText(a.reader, "Enter description (optional)", os.Stdout)
	if err != nil {
		return err
	}

	id, err := a.library.Create(ctx, model.EntityProject, &model.Project{Name: name, Description: description})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	printlnFn("Created project", name)
	a.projectID = id
	a.projectName = name
	return nil
}

// OpenProject selects the project the element and relationship commands
// operate on.
func (a *App) OpenProject(ctx context.Context) error {
	row, err := a.pickRow(ctx, model.EntityProject, "", "Enter project number")
	if err != nil {
		return err
	}

	var p model.Project
	if err := decodeInto(row, &p); err != nil {
		return err
	}

	a.projectID = row.LocalID
	a.projectName = p.Name
	printlnFn("Opened project", p.Name)
	return nil
}

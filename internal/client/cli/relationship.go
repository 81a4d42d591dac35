package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Relationships lists the open project's relationships with resolved element
// names.
func (a *App) Relationships(ctx context.Context) error {
	if err := a.requireProject(); err != nil {
		return err
	}

	rows, err := a.library.List(ctx, model.EntityRelationship, a.projectID)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(rows) == 0 {
		printlnFn("Nothing here yet")
		return nil
	}

	for i, row := range rows {
		var r model.Relationship
		if err := decodeInto(&row, &r); err != nil {
			return err
		}
		printlnFn(fmt.Sprintf("%d) %s -%s-> %s", i+1,
			a.elementName(ctx, r.SourceID), r.Type, a.elementName(ctx, r.TargetID)))
	}
	return nil
}

func (a *App) elementName(ctx context.Context, localID string) string {
	row, err := a.library.Get(ctx, model.EntityElement, localID)
	if err != nil {
		return localID
	}
	var e model.WorldElement
	if err := decodeInto(row, &e); err != nil {
		return localID
	}
	return e.Name
}

// AddRelationship links two elements of the open project with a typed,
// directed edge.
func (a *App) AddRelationship(ctx context.Context) error {
	if err := a.requireProject(); err != nil {
		return err
	}

	printlnFn("Source element:")
	source, err := a.pickRow(ctx, model.EntityElement, a.projectID, "Enter element number")
	if err != nil {
		return err
	}
	printlnFn("Target element:")
	target, err := a.pickRow(ctx, model.EntityElement, a.projectID, "Enter element number")
	if err != nil {
		return err
	}
	relType, err := getSimpleText(a.reader, "Enter relationship type (e.g. 'ally of')", os.Stdout)
	if err != nil {
		return err
	}
	description, err := getSimpleText(a.reader, "Enter description (optional)", os.Stdout)
	if err != nil {
		return err
	}

	_, err = a.library.Create(ctx, model.EntityRelationship, &model.Relationship{
		ProjectID:   a.projectID,
		SourceID:    source.LocalID,
		TargetID:    target.LocalID,
		Type:        relType,
		Description: description,
	})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn("Created relationship")
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// rowTitle extracts a human-readable name from an entity payload.
func rowTitle(row *models.Row) string {
	payload, err := model.DecodePayload(row.EntityType, row.Payload)
	if err != nil {
		return row.LocalID
	}
	switch p := payload.(type) {
	case *model.Project:
		return p.Name
	case *model.WorldElement:
		return fmt.Sprintf("%s [%s]", p.Name, p.Category)
	case *model.QuestionnaireTemplate:
		return p.Name
	case *model.Relationship:
		return p.Type
	default:
		return row.LocalID
	}
}

// listRows prints the live rows of one kind with 1-based indexes.
func (a *App) listRows(ctx context.Context, t model.EntityType, projectID string) ([]models.Row, error) {
	rows, err := a.library.List(ctx, t, projectID)
	if err != nil {
		log.Printf("error: %v", err)
		return nil, err
	}
	if len(rows) == 0 {
		printlnFn("Nothing here yet")
		return rows, nil
	}
	for i, row := range rows {
		marker := ""
		if row.Dirty {
			marker = " *"
		}
		printlnFn(fmt.Sprintf("%d) %s%s", i+1, rowTitle(&row), marker))
	}
	return rows, nil
}

// pickRow lists the rows of one kind and prompts for a 1-based index.
func (a *App) pickRow(ctx context.Context, t model.EntityType, projectID, prompt string) (*models.Row, error) {
	rows, err := a.listRows(ctx, t, projectID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrorNotFound
	}

	answer, err := getSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(rows) {
		printlnFn("Invalid number:", answer)
		return nil, common.ErrorValidation
	}
	return &rows[n-1], nil
}

// requireProject guards commands that only make sense inside a project.
func (a *App) requireProject() error {
	if a.projectID == "" {
		printlnFn("Open a project first ('open')")
		return common.ErrorValidation
	}
	return nil
}

func decodeInto(row *models.Row, out any) error {
	if err := json.Unmarshal(row.Payload, out); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	return nil
}

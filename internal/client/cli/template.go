package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Templates lists every questionnaire template, global defaults included.
func (a *App) Templates(ctx context.Context) error {
	rows, err := a.library.List(ctx, model.EntityTemplate, "")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(rows) == 0 {
		printlnFn("Nothing here yet")
		return nil
	}
	for i, row := range rows {
		var tpl model.QuestionnaireTemplate
		if err := decodeInto(&row, &tpl); err != nil {
			return err
		}
		scope := "global"
		if tpl.ProjectID != "" {
			scope = "project"
		}
		printlnFn(fmt.Sprintf("%d) %s [%s, %s, %d questions]", i+1, tpl.Name, tpl.Category, scope, len(tpl.Questions)))
	}
	return nil
}

// AddTemplate collects a name, category and question prompts. Questions are
// entered one per line as "kind: prompt"; a bare line defaults to text.
func (a *App) AddTemplate(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter template name", os.Stdout)
	if err != nil {
		return err
	}
	category, err := a.pickCategory()
	if err != nil {
		return err
	}

	scope, err := getSimpleText(a.reader, "Scope to the open project? (y/n, n = global)", os.Stdout)
	if err != nil {
		return err
	}
	projectID := ""
	if strings.EqualFold(scope, "y") {
		if err := a.requireProject(); err != nil {
			return err
		}
		projectID = a.projectID
	}

	lines, err := GetLines(a.reader, "Enter questions, one per line as 'kind: prompt' (kinds: text, number, boolean, enum, list)", os.Stdout)
	if err != nil {
		return err
	}

	var questions []model.Question
	for _, line := range lines {
		kind := model.KindText
		prompt := line
		if before, after, found := strings.Cut(line, ":"); found {
			if k := model.ValueKind(strings.TrimSpace(before)); k.Valid() {
				kind = k
				prompt = strings.TrimSpace(after)
			}
		}
		questions = append(questions, model.Question{
			ID:     uuid.NewString(),
			Prompt: prompt,
			Kind:   kind,
		})
	}

	_, err = a.library.Create(ctx, model.EntityTemplate, &model.QuestionnaireTemplate{
		ProjectID: projectID,
		Name:      name,
		Category:  category,
		Questions: questions,
	})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn("Created template", name)
	return nil
}

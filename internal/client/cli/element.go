package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Elements lists the open project's world elements.
func (a *App) Elements(ctx context.Context) error {
	if err := a.requireProject(); err != nil {
		return err
	}
	_, err := a.listRows(ctx, model.EntityElement, a.projectID)
	return err
}

// AddElement collects a name and category, optionally binds a questionnaire
// template and walks through its questions.
func (a *App) AddElement(ctx context.Context) error {
	if err := a.requireProject(); err != nil {
		return err
	}

	name, err := getSimpleText(a.reader, "Enter element name", os.Stdout)
	if err != nil {
		return err
	}
	category, err := a.pickCategory()
	if err != nil {
		return err
	}

	element := &model.WorldElement{
		ProjectID: a.projectID,
		Name:      name,
		Category:  category,
	}

	templates, err := a.library.List(ctx, model.EntityTemplate, "")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(templates) > 0 {
		useTemplate, err := getSimpleText(a.reader, "Use a questionnaire template? (y/n)", os.Stdout)
		if err != nil {
			return err
		}
		if strings.EqualFold(useTemplate, "y") {
			row, err := a.pickRow(ctx, model.EntityTemplate, "", "Enter template number")
			if err != nil {
				return err
			}
			var tpl model.QuestionnaireTemplate
			if err := decodeInto(row, &tpl); err != nil {
				return err
			}
			element.TemplateID = row.LocalID
			element.Answers, err = a.askQuestions(&tpl)
			if err != nil {
				return err
			}
		}
	}

	if _, err := a.library.Create(ctx, model.EntityElement, element); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn("Created element", name)
	return nil
}

func (a *App) pickCategory() (model.Category, error) {
	categories := []model.Category{
		model.CategoryCharacter, model.CategoryLocation, model.CategoryItem,
		model.CategoryFaction, model.CategoryEvent, model.CategoryConcept,
		model.CategoryCreature, model.CategoryCustom,
	}
	for i, c := range categories {
		printlnFn(fmt.Sprintf("%d) %s", i+1, c))
	}
	answer, err := getSimpleText(a.reader, "Enter category number", os.Stdout)
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(categories) {
		printlnFn("Invalid number:", answer)
		return "", err
	}
	return categories[n-1], nil
}

// askQuestions walks the template's questions in order and collects typed
// answers. Empty input skips a question.
func (a *App) askQuestions(tpl *model.QuestionnaireTemplate) (model.AnswerList, error) {
	var answers model.AnswerList
	for _, q := range tpl.Questions {
		prompt := q.Prompt
		if q.Kind == model.KindEnum && len(q.Options) > 0 {
			prompt += " (" + strings.Join(q.Options, "/") + ")"
		}
		text, err := getSimpleText(a.reader, prompt, os.Stdout)
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}

		var v model.Value
		switch q.Kind {
		case model.KindNumber:
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				printlnFn("Not a number, skipping:", text)
				continue
			}
			v = model.NumberValue(n)
		case model.KindBoolean:
			v = model.BoolValue(strings.EqualFold(text, "y") || strings.EqualFold(text, "yes") || text == "true")
		case model.KindEnum:
			v = model.EnumValue(text)
		case model.KindList:
			v = model.ListValue(strings.Split(text, ",")...)
		default:
			v = model.TextValue(text)
		}
		answers = answers.Set(q.ID, v)
	}
	return answers, nil
}

// Show prints one element in full: category, template, answers and
// attachment keys.
func (a *App) Show(ctx context.Context) error {
	if err := a.requireProject(); err != nil {
		return err
	}

	row, err := a.pickRow(ctx, model.EntityElement, a.projectID, "Enter element number")
	if err != nil {
		return err
	}

	var e model.WorldElement
	if err := decodeInto(row, &e); err != nil {
		return err
	}

	printlnFn("Name:", e.Name)
	printlnFn("Category:", string(e.Category))
	if e.TemplateID != "" {
		printlnFn("Template:", e.TemplateID)
	}
	for _, ans := range e.Answers {
		printlnFn(fmt.Sprintf("  %s: %s", ans.QuestionID, formatValue(ans.Value)))
	}
	for _, key := range e.Attachments {
		printlnFn("Attachment:", key)
	}
	if row.Dirty {
		printlnFn("(has unsynced local changes)")
	}
	return nil
}

func formatValue(v model.Value) string {
	switch v.Kind {
	case model.KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case model.KindBoolean:
		return strconv.FormatBool(v.Bool)
	case model.KindList:
		return strings.Join(v.List, ", ")
	default:
		return v.Text
	}
}

// Attach uploads a local file to storage via a presigned URL and records the
// storage key on the element.
func (a *App) Attach(ctx context.Context) error {
	if err := a.requireProject(); err != nil {
		return err
	}

	row, err := a.pickRow(ctx, model.EntityElement, a.projectID, "Enter element number")
	if err != nil {
		return err
	}
	path, err := getSimpleText(a.reader, "Enter file path", os.Stdout)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	presigned, err := a.api.Presign(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if err := client.UploadToPresignedURL(ctx, presigned.PutURL, data); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	var e model.WorldElement
	if err := decodeInto(row, &e); err != nil {
		return err
	}
	e.Attachments = append(e.Attachments, presigned.Key)

	if err := a.library.Update(ctx, model.EntityElement, row.LocalID, &e); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	printlnFn("Attached", path, "as", presigned.Key)
	return nil
}

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Sync kicks the engine outside its normal cadence. The cycle itself runs in
// the background; "status" shows the result.
func (a *App) Sync(ctx context.Context) error {
	if !a.engine.Online() {
		printlnFn("Server unreachable; changes stay queued until it is back")
	}
	a.engine.SyncNow()
	printlnFn("Sync requested")
	return nil
}

// Status prints the engine state, per-scope checkpoints and queue depths.
func (a *App) Status(ctx context.Context) error {
	printlnFn("Engine:", string(a.engine.State()))

	states, pending, failed, err := a.library.Status(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	for _, s := range states {
		line := fmt.Sprintf("  scope %s: %s, checkpoint %d", s.Scope, s.Status, s.Checkpoint)
		if s.LastSyncedAt > 0 {
			line += ", last synced " + time.UnixMilli(s.LastSyncedAt).Format(time.RFC3339)
		}
		if s.LastError != "" {
			line += ", error: " + s.LastError
		}
		printlnFn(line)
	}
	printlnFn(fmt.Sprintf("Queue: %d pending, %d failed", pending, failed))
	return nil
}

// Delete tombstones an entity of the open project, or a project itself.
func (a *App) Delete(ctx context.Context) error {
	kind, err := getSimpleText(a.reader, "What to delete? (project/element/rel/template)", os.Stdout)
	if err != nil {
		return err
	}

	var (
		t         model.EntityType
		projectID string
	)
	switch strings.ToLower(kind) {
	case "project":
		t = model.EntityProject
	case "element":
		t = model.EntityElement
		projectID = a.projectID
	case "rel", "relationship":
		t = model.EntityRelationship
		projectID = a.projectID
	case "template":
		t = model.EntityTemplate
	default:
		printlnFn("Unknown kind:", kind)
		return nil
	}
	if projectID == "" && (t == model.EntityElement || t == model.EntityRelationship) {
		return a.requireProject()
	}

	row, err := a.pickRow(ctx, t, projectID, "Enter number")
	if err != nil {
		return err
	}

	confirm, err := getSimpleText(a.reader, fmt.Sprintf("Delete %s? (y/n)", rowTitle(row)), os.Stdout)
	if err != nil {
		return err
	}
	if !strings.EqualFold(confirm, "y") {
		return nil
	}

	if err := a.library.Delete(ctx, t, row.LocalID); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if t == model.EntityProject && row.LocalID == a.projectID {
		a.projectID = ""
		a.projectName = ""
	}
	printlnFn("Deleted")
	return nil
}

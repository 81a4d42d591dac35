package entities

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_NewRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("R1", int64(100), int64(100))
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+projects`).
		WithArgs("owner", "L1", "", []byte(`{"name":"P"}`), int64(100)).
		WillReturnRows(rows)

	e := &models.Entity{OwnerID: "owner", ClientID: "L1", Payload: []byte(`{"name":"P"}`), CreatedAt: 100}
	got, err := repo.Insert(context.Background(), model.EntityProject, e)
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if got.ID != "R1" || got.UpdatedAt != 100 {
		t.Fatalf("unexpected entity: %+v", got)
	}
}

func TestInsert_DuplicateReturnsExisting(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// Conflict: the INSERT ... RETURNING produces no rows.
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+elements`).
		WithArgs("owner", "L2", "RP", []byte(`{}`), int64(200)).
		WillReturnError(sql.ErrNoRows)

	existing := sqlmock.NewRows([]string{"id", "owner_id", "client_id", "project_id", "payload", "created_at", "updated_at", "deleted_at"}).
		AddRow("R2", "owner", "L2", "RP", []byte(`{}`), int64(150), int64(150), nil)
	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+elements\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+client_id`).
		WithArgs("owner", "L2").
		WillReturnRows(existing)

	e := &models.Entity{OwnerID: "owner", ClientID: "L2", ProjectID: "RP", Payload: []byte(`{}`), CreatedAt: 200}
	got, err := repo.Insert(context.Background(), model.EntityElement, e)
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if got.ID != "R2" || got.UpdatedAt != 150 {
		t.Fatalf("expected the original row back, got %+v", got)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+relationships\s+SET\s+payload`).
		WithArgs([]byte(`{}`), int64(300), "owner", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), model.EntityRelationship, "owner", "missing", []byte(`{}`), 300)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestUpdate_ClearsTombstone(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// a superseding update over a soft-deleted row must bring it back
	mock.ExpectExec(`UPDATE\s+elements\s+SET\s+payload\s*=\s*\$1,\s*updated_at\s*=\s*\$2,\s*deleted_at\s*=\s*NULL`).
		WithArgs([]byte(`{"name":"hero"}`), int64(500), "owner", "R3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), model.EntityElement, "owner", "R3", []byte(`{"name":"hero"}`), 500)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func TestSoftDelete_SetsTombstone(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+templates\s+SET\s+deleted_at`).
		WithArgs(int64(400), "owner", "R4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDelete(context.Background(), model.EntityTemplate, "owner", "R4", 400); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}
}

func TestSelectUpdated_IncludesTombstones(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	deleted := int64(500)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "client_id", "project_id", "payload", "created_at", "updated_at", "deleted_at"}).
		AddRow("R1", "owner", "L1", "", []byte(`{"name":"A"}`), int64(100), int64(450), nil).
		AddRow("R2", "owner", "L2", "", []byte(`{"name":"B"}`), int64(100), int64(500), &deleted)
	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+projects\s+WHERE\s+owner_id.*updated_at\s*>\s*\$2`).
		WithArgs("owner", int64(400), "", 100).
		WillReturnRows(rows)

	got, err := repo.SelectUpdated(context.Background(), model.EntityProject, "owner", 400, "", 100)
	if err != nil {
		t.Fatalf("SelectUpdated error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if !got[1].Tombstoned() {
		t.Fatalf("expected second row tombstoned: %+v", got[1])
	}
}

func TestUnknownEntityType(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.Get(context.Background(), model.EntityType("chapter"), "owner", "id")
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newChatRepoWithMock(t *testing.T) (*ChatRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChatRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestListRecentTurnsReversesToChronological(t *testing.T) {
	repo, mock, done := newChatRepoWithMock(t)
	defer done()

	// SQL returns newest first; callers expect oldest first.
	mock.ExpectQuery("SELECT role, content").
		WithArgs("conv-1", 6).
		WillReturnRows(sqlmock.NewRows([]string{"role", "content"}).
			AddRow("assistant", "You have 42 promotional emails.").
			AddRow("user", "how many promotional emails do I have?"))

	turns, err := repo.ListRecentTurns(context.Background(), "conv-1", 6)
	if err != nil {
		t.Fatalf("ListRecentTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Fatalf("expected chronological order, got %+v", turns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentTurnsZeroLimit(t *testing.T) {
	repo, _, done := newChatRepoWithMock(t)
	defer done()

	turns, err := repo.ListRecentTurns(context.Background(), "conv-1", 0)
	if err != nil || turns != nil {
		t.Fatalf("expected nil result for zero limit, got %v, %v", turns, err)
	}
}

package repository

import (
	"context"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type JournalEntriesRepository interface {
	Insert(ctx context.Context, e model.JournalEntry) error
}

type JournalEntriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewJournalEntriesRepository(db *sqlx.DB) *JournalEntriesRepositoryImpl {
	return &JournalEntriesRepositoryImpl{db: db}
}

func (r *JournalEntriesRepositoryImpl) Insert(ctx context.Context, e model.JournalEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journal_entries
		    (id, team_id, team_user_reference_id, title, content, mood, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TeamID, e.TeamUserReferenceID, e.Title, e.Content, e.Mood, e.CreatedAt)
	return err
}

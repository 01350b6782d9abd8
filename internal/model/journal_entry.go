package model

import "time"

// JournalEntry is the product record written by the gated "save journal entry" endpoint.
type JournalEntry struct {
	ID                  string    `db:"id" json:"id"`
	TeamID              string    `db:"team_id" json:"teamId"`
	TeamUserReferenceID string    `db:"team_user_reference_id" json:"teamUserReferenceId"`
	Title               string    `db:"title" json:"title"`
	Content             string    `db:"content" json:"content"`
	Mood                *string   `db:"mood" json:"mood,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
}

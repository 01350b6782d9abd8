package http

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/journal-gateway/internal/http/middleware"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/util"
	"github.com/labstack/echo/v4"
)

const (
	maxTitleLen   = 200
	maxContentLen = 20000
	maxMoodLen    = 32
)

type saveJournalEntryReq struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Mood    *string `json:"mood"`
}

// saveJournalEntryHandler is the metered product endpoint. By the time it runs the
// team and subscription are already in the context.
func saveJournalEntryHandler(entries repository.JournalEntriesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req saveJournalEntryReq
		if err := c.Bind(&req); err != nil {
			return middleware.ErrBadRequest("Invalid JSON body")
		}
		req.Title = strings.TrimSpace(req.Title)
		req.Content = strings.TrimSpace(req.Content)

		switch {
		case req.Content == "":
			return middleware.ErrBadRequest("content is required")
		case utf8.RuneCountInString(req.Content) > maxContentLen:
			return middleware.ErrBadRequest("content is too long")
		case utf8.RuneCountInString(req.Title) > maxTitleLen:
			return middleware.ErrBadRequest("title is too long")
		}
		if req.Mood != nil {
			m := strings.TrimSpace(*req.Mood)
			if utf8.RuneCountInString(m) > maxMoodLen {
				return middleware.ErrBadRequest("mood is too long")
			}
			if m == "" {
				req.Mood = nil
			} else {
				req.Mood = &m
			}
		}

		team := middleware.TeamFromCtx(c)
		sub := middleware.SubscriptionFromCtx(c)
		if team == nil || sub == nil {
			return middleware.ErrUnauthorized("Team not authenticated")
		}

		now := time.Now().UTC()
		entry := model.JournalEntry{
			ID:                  util.NewAt(now),
			TeamID:              team.ID,
			TeamUserReferenceID: sub.TeamUserReferenceID,
			Title:               req.Title,
			Content:             req.Content,
			Mood:                req.Mood,
			CreatedAt:           now,
		}
		if err := entries.Insert(c.Request().Context(), entry); err != nil {
			return middleware.ErrInternal("Failed to save journal entry", err)
		}
		return c.JSON(http.StatusCreated, entry)
	}
}

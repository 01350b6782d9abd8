package http

import (
	"net/http"
	"strconv"

	"github.com/jmehdipour/journal-gateway/internal/http/middleware"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/labstack/echo/v4"
)

// listRequestLogsHandler lists the calling team's audit rows, newest first.
func listRequestLogsHandler(logs repository.RequestLogRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		team := middleware.TeamFromCtx(c)
		if team == nil {
			return middleware.ErrUnauthorized("Team not authenticated")
		}

		ref := c.QueryParam(middleware.QueryTeamUserReferenceID)
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := logs.ListByTeam(c.Request().Context(), team.ID, ref, limit, offset)
		if err != nil {
			return middleware.ErrInternal("Failed to list request logs", err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"items": rows,
			"count": len(rows),
		})
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/middleware"
	"github.com/kanbo-io/kanbo/internal/service/favourites"
)

type FavouritesHandler struct {
	favourites *favourites.Service
	logger     *zap.Logger
}

func NewFavouritesHandler(s *favourites.Service, logger *zap.Logger) *FavouritesHandler {
	return &FavouritesHandler{favourites: s, logger: logger}
}

// List handles GET /v1/users/:id/favourites?type=&action=&q=
//
// Anyone (including anonymous viewers) can request any user's feed;
// the service drops entries the viewer has no permission to see and
// computes is_voted/is_watched against the viewer, not the profile
// owner.
func (h *FavouritesHandler) List(c *gin.Context) {
	forUser, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	filters := favourites.Filters{
		Type:   c.Query("type"),
		Action: c.Query("action"),
		Q:      c.Query("q"),
	}
	if filters.Action != "" && filters.Action != favourites.ActionVote && filters.Action != favourites.ActionWatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be vote or watch"})
		return
	}

	items, err := h.favourites.GetFavourites(c.Request.Context(), forUser, middleware.GetUserID(c), filters)
	if err != nil {
		respondError(c, h.logger, err, "failed to build favourites feed")
		return
	}
	c.JSON(http.StatusOK, items)
}

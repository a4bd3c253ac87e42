package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

// EntityResolver loads the entity behind a (kind, id) route and its
// parent project. Every social endpoint goes through it: the kind comes
// from the route, never from the client body.
type EntityResolver struct {
	projects  repository.ProjectRepository
	workItems repository.WorkItemRepository
	users     repository.UserRepository
}

func NewEntityResolver(projects repository.ProjectRepository, workItems repository.WorkItemRepository, users repository.UserRepository) *EntityResolver {
	return &EntityResolver{projects: projects, workItems: workItems, users: users}
}

// Resolve returns the entity and its parent project, or (nil, nil, nil)
// when the id doesn't exist. For the project kind the entity is its own
// parent.
func (r *EntityResolver) Resolve(ctx context.Context, kind refs.Kind, id int64) (refs.Watchable, *models.Project, error) {
	if kind == refs.KindProject {
		p, err := r.projects.GetByID(ctx, id)
		if err != nil || p == nil {
			return nil, nil, err
		}
		return p, p, nil
	}

	w, err := r.workItems.GetByID(ctx, kind, id)
	if err != nil || w == nil {
		return nil, nil, err
	}
	p, err := r.projects.GetByID(ctx, w.Project)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, apperr.Consistency("work item %s references missing project %d", w.EntityRef(), w.Project)
	}
	return w, p, nil
}

// Project loads a project by id, (nil, nil) when absent. List endpoints
// use it to gate a whole page on the parent project's permissions.
func (r *EntityResolver) Project(ctx context.Context, id int64) (*models.Project, error) {
	return r.projects.GetByID(ctx, id)
}

// pathID parses the :id path parameter. A non-numeric id is a client
// error, reported inline.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps the error taxonomy to HTTP statuses. Anything
// outside the taxonomy is a 500 with a generic message; the detail goes
// to the log, not the client.
func respondError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrPrecondition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

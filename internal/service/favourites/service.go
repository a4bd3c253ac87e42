// Package favourites builds the cross-entity feed of everything a user
// has voted for or watches: projects, user stories, tasks and issues
// merged into one list, filtered by what the viewer is allowed to see.
package favourites

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

const (
	ActionVote  = "vote"
	ActionWatch = "watch"
)

// Filters narrows the feed. Zero values mean "no filter". Type is a
// kind string ("project", "userstory", "task", "issue"); Action is
// ActionVote or ActionWatch; Q is a case-insensitive substring match
// against the entity's display text.
type Filters struct {
	Type   string
	Action string
	Q      string
}

// Item is one feed entry. Display fields that don't apply to the
// entry's kind are null: projects have no ref/subject/assigned_to,
// work items have no slug/name/description, and the project_* denorm
// block is work-item only.
type Item struct {
	Type   refs.Kind `json:"type"`
	Action string    `json:"action"`
	ID     int64     `json:"id"`

	Ref         *int64     `json:"ref"`
	Slug        *string    `json:"slug"`
	Name        *string    `json:"name"`
	Subject     *string    `json:"subject"`
	Description *string    `json:"description"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	IsPrivate   *bool      `json:"is_private"`

	Project          *int64  `json:"project"`
	ProjectName      *string `json:"project_name"`
	ProjectSlug      *string `json:"project_slug"`
	ProjectIsPrivate *bool   `json:"project_is_private"`

	TotalVoters   int64 `json:"total_voters"`
	TotalWatchers int64 `json:"total_watchers"`
	IsVoted       bool  `json:"is_voted"`
	IsWatched     bool  `json:"is_watched"`

	CreatedAt time.Time `json:"created_date"`
}

type Authorizer interface {
	CanView(ctx context.Context, viewer uuid.UUID, project *models.Project, permission string) (bool, error)
}

type Service struct {
	votes     repository.VoteRepository
	watches   repository.WatchRepository
	projects  repository.ProjectRepository
	workItems repository.WorkItemRepository
	registry  *refs.Registry
	authz     Authorizer
}

func New(
	votes repository.VoteRepository,
	watches repository.WatchRepository,
	projects repository.ProjectRepository,
	workItems repository.WorkItemRepository,
	registry *refs.Registry,
	authz Authorizer,
) *Service {
	return &Service{
		votes:     votes,
		watches:   watches,
		projects:  projects,
		workItems: workItems,
		registry:  registry,
		authz:     authz,
	}
}

// favourite is an unresolved feed row: what the user marked, how, when.
type favourite struct {
	ref       refs.Ref
	action    string
	createdAt time.Time
}

// GetFavourites returns forUser's feed as seen by viewer. The two are
// independent: any profile's feed can be requested, but each entry is
// kept only if the viewer holds the entry kind's view permission on the
// entry's project, and is_voted/is_watched are viewer-relative.
// viewer == uuid.Nil is an anonymous request.
func (s *Service) GetFavourites(ctx context.Context, forUser, viewer uuid.UUID, f Filters) ([]Item, error) {
	favs, err := s.collect(ctx, forUser, f)
	if err != nil {
		return nil, err
	}

	// Bulk-load the referenced entities, kind by kind.
	idsByKind := make(map[refs.Kind][]int64)
	for _, fav := range favs {
		idsByKind[fav.ref.Kind] = append(idsByKind[fav.ref.Kind], fav.ref.ID)
	}

	projectsByID := make(map[int64]models.Project)
	itemsByRef := make(map[refs.Ref]models.WorkItem)
	parentIDs := make(map[int64]bool)

	for kind, ids := range idsByKind {
		if kind == refs.KindProject {
			loaded, err := s.projects.ListByIDs(ctx, dedupe(ids))
			if err != nil {
				return nil, err
			}
			for _, p := range loaded {
				projectsByID[p.ID] = p
			}
			continue
		}
		loaded, err := s.workItems.ListByIDs(ctx, kind, dedupe(ids))
		if err != nil {
			return nil, err
		}
		for _, w := range loaded {
			itemsByRef[refs.Ref{Kind: kind, ID: w.ID}] = w
			parentIDs[w.Project] = true
		}
	}

	// Parent projects of the work items, for the permission gate and the
	// project_* denorm fields. Projects already loaded as feed entries
	// double as parents.
	missing := make([]int64, 0, len(parentIDs))
	for id := range parentIDs {
		if _, ok := projectsByID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		parents, err := s.projects.ListByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			projectsByID[p.ID] = p
		}
	}

	// Permission gate, q filter.
	kept := make([]favourite, 0, len(favs))
	q := strings.ToLower(f.Q)
	for _, fav := range favs {
		desc, ok := s.registry.Lookup(fav.ref.Kind)
		if !ok {
			continue
		}

		var parent *models.Project
		var display string
		if fav.ref.Kind == refs.KindProject {
			p, ok := projectsByID[fav.ref.ID]
			if !ok {
				continue // entity deleted since the favourite was made
			}
			parent = &p
			display = p.Name
		} else {
			w, ok := itemsByRef[fav.ref]
			if !ok {
				continue
			}
			p, ok := projectsByID[w.Project]
			if !ok {
				continue
			}
			parent = &p
			display = w.Subject
		}

		allowed, err := s.authz.CanView(ctx, viewer, parent, desc.ViewPermission)
		if err != nil {
			return nil, err
		}
		if !allowed {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(display), q) {
			continue
		}
		kept = append(kept, fav)
	}

	// Totals and viewer flags, bulk per kind over the surviving entries.
	keptByKind := make(map[refs.Kind][]int64)
	for _, fav := range kept {
		keptByKind[fav.ref.Kind] = append(keptByKind[fav.ref.Kind], fav.ref.ID)
	}
	voteTotals := make(map[refs.Ref]int64)
	watchTotals := make(map[refs.Ref]int64)
	viewerVoted := make(map[refs.Ref]bool)
	viewerWatched := make(map[refs.Ref]bool)
	for kind, ids := range keptByKind {
		ids = dedupe(ids)
		vc, err := s.votes.Counts(ctx, kind, ids)
		if err != nil {
			return nil, err
		}
		wc, err := s.watches.Counts(ctx, kind, ids)
		if err != nil {
			return nil, err
		}
		for id, n := range vc {
			voteTotals[refs.Ref{Kind: kind, ID: id}] = n
		}
		for id, n := range wc {
			watchTotals[refs.Ref{Kind: kind, ID: id}] = n
		}
		if viewer != uuid.Nil {
			voted, err := s.votes.VotedIDs(ctx, kind, ids, viewer)
			if err != nil {
				return nil, err
			}
			watched, err := s.watches.WatchedIDs(ctx, kind, ids, viewer)
			if err != nil {
				return nil, err
			}
			for id := range voted {
				viewerVoted[refs.Ref{Kind: kind, ID: id}] = true
			}
			for id := range watched {
				viewerWatched[refs.Ref{Kind: kind, ID: id}] = true
			}
		}
	}

	items := make([]Item, 0, len(kept))
	for _, fav := range kept {
		item := Item{
			Type:          fav.ref.Kind,
			Action:        fav.action,
			ID:            fav.ref.ID,
			TotalVoters:   voteTotals[fav.ref],
			TotalWatchers: watchTotals[fav.ref],
			IsVoted:       viewerVoted[fav.ref],
			IsWatched:     viewerWatched[fav.ref],
			CreatedAt:     fav.createdAt,
		}
		if fav.ref.Kind == refs.KindProject {
			p := projectsByID[fav.ref.ID]
			item.Slug = &p.Slug
			item.Name = &p.Name
			item.Description = &p.Description
			item.IsPrivate = &p.IsPrivate
		} else {
			w := itemsByRef[fav.ref]
			p := projectsByID[w.Project]
			item.Ref = &w.Ref
			item.Subject = &w.Subject
			if w.Assignee != uuid.Nil {
				assignee := w.Assignee
				item.AssignedTo = &assignee
			}
			item.Project = &p.ID
			item.ProjectName = &p.Name
			item.ProjectSlug = &p.Slug
			item.ProjectIsPrivate = &p.IsPrivate
		}
		items = append(items, item)
	}

	// Newest favourite first; (kind, id) breaks same-instant ties so the
	// order is stable across calls.
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// collect gathers forUser's raw vote and watch rows, applying the
// action and type filters before anything is loaded.
func (s *Service) collect(ctx context.Context, forUser uuid.UUID, f Filters) ([]favourite, error) {
	favs := make([]favourite, 0)

	if f.Action == "" || f.Action == ActionVote {
		votes, err := s.votes.ForUser(ctx, forUser)
		if err != nil {
			return nil, err
		}
		for _, v := range votes {
			favs = append(favs, favourite{ref: v.Ref, action: ActionVote, createdAt: v.CreatedAt})
		}
	}
	if f.Action == "" || f.Action == ActionWatch {
		watches, err := s.watches.ForUser(ctx, forUser)
		if err != nil {
			return nil, err
		}
		for _, w := range watches {
			favs = append(favs, favourite{ref: w.Ref, action: ActionWatch, createdAt: w.CreatedAt})
		}
	}

	if f.Type != "" {
		filtered := favs[:0]
		for _, fav := range favs {
			if string(fav.ref.Kind) == f.Type {
				filtered = append(filtered, fav)
			}
		}
		favs = filtered
	}
	return favs, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

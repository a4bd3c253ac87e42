// Package annotate bulk-attaches the computed social attributes
// (votes_count, is_voted, watchers_count, is_watched) to pages of
// entities. The query count is fixed per page regardless of page size:
// two bulk queries for an anonymous viewer, four for an authenticated
// one.
package annotate

import (
	"context"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

type Annotator struct {
	votes   repository.VoteRepository
	watches repository.WatchRepository
}

func New(votes repository.VoteRepository, watches repository.WatchRepository) *Annotator {
	return &Annotator{votes: votes, watches: watches}
}

// attach computes the attribute maps for one kind and hands each id's
// attrs to assign. viewer == uuid.Nil means anonymous: is_voted and
// is_watched are false without asking the store.
func (a *Annotator) attach(ctx context.Context, kind refs.Kind, ids []int64, viewer uuid.UUID, assign func(id int64, attrs models.SocialAttrs)) error {
	if len(ids) == 0 {
		return nil
	}

	voteCounts, err := a.votes.Counts(ctx, kind, ids)
	if err != nil {
		return err
	}
	watchCounts, err := a.watches.Counts(ctx, kind, ids)
	if err != nil {
		return err
	}

	var voted, watched map[int64]bool
	if viewer != uuid.Nil {
		if voted, err = a.votes.VotedIDs(ctx, kind, ids, viewer); err != nil {
			return err
		}
		if watched, err = a.watches.WatchedIDs(ctx, kind, ids, viewer); err != nil {
			return err
		}
	}

	for _, id := range ids {
		assign(id, models.SocialAttrs{
			VotesCount:    voteCounts[id],
			IsVoted:       voted[id],
			WatchersCount: watchCounts[id],
			IsWatched:     watched[id],
		})
	}
	return nil
}

// AttachToProjects fills the SocialAttrs of every project in the slice,
// in place.
func (a *Annotator) AttachToProjects(ctx context.Context, projects []models.Project, viewer uuid.UUID) error {
	ids := make([]int64, len(projects))
	byID := make(map[int64][]int, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
		byID[p.ID] = append(byID[p.ID], i)
	}
	return a.attach(ctx, refs.KindProject, ids, viewer, func(id int64, attrs models.SocialAttrs) {
		for _, i := range byID[id] {
			projects[i].SocialAttrs = attrs
		}
	})
}

// AttachToWorkItems fills the SocialAttrs of every work item, in place.
// The slice must be homogeneous in kind; mixed pages should be split by
// kind first so each kind costs its own fixed set of queries.
func (a *Annotator) AttachToWorkItems(ctx context.Context, items []models.WorkItem, viewer uuid.UUID) error {
	if len(items) == 0 {
		return nil
	}
	kind := items[0].Kind
	ids := make([]int64, len(items))
	byID := make(map[int64][]int, len(items))
	for i, w := range items {
		ids[i] = w.ID
		byID[w.ID] = append(byID[w.ID], i)
	}
	return a.attach(ctx, kind, ids, viewer, func(id int64, attrs models.SocialAttrs) {
		for _, i := range byID[id] {
			items[i].SocialAttrs = attrs
		}
	})
}

// AttachToProject is the single-entity convenience used by detail
// endpoints.
func (a *Annotator) AttachToProject(ctx context.Context, p *models.Project, viewer uuid.UUID) error {
	page := []models.Project{*p}
	if err := a.AttachToProjects(ctx, page, viewer); err != nil {
		return err
	}
	p.SocialAttrs = page[0].SocialAttrs
	return nil
}

// AttachToWorkItem is the single-entity convenience used by detail
// endpoints.
func (a *Annotator) AttachToWorkItem(ctx context.Context, w *models.WorkItem, viewer uuid.UUID) error {
	page := []models.WorkItem{*w}
	if err := a.AttachToWorkItems(ctx, page, viewer); err != nil {
		return err
	}
	w.SocialAttrs = page[0].SocialAttrs
	return nil
}

package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

var (
	_ repository.VoteRepository  = (*VoteRepo)(nil)
	_ repository.WatchRepository = (*WatchRepo)(nil)
)

// VoteRepo mirrors the postgres VoteStore's semantics, including the
// lazily created counter that survives at zero and the consistency
// fault on an impossible decrement.
type VoteRepo struct {
	db *DB
}

func (r *VoteRepo) Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := subjectKey{ref: ref, user: userID}
	if _, voted := r.db.votes[key]; voted {
		return false, nil
	}
	r.db.votes[key] = r.db.nextMark()
	r.db.voteCounts[ref]++
	return true, nil
}

func (r *VoteRepo) Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := subjectKey{ref: ref, user: userID}
	if _, voted := r.db.votes[key]; !voted {
		return false, nil
	}
	count, exists := r.db.voteCounts[ref]
	if !exists || count <= 0 {
		return false, apperr.Consistency("vote counter missing or zero for %s with a vote row present", ref)
	}
	delete(r.db.votes, key)
	r.db.voteCounts[ref] = count - 1 // counter row persists at zero
	return true, nil
}

func (r *VoteRepo) Voters(ctx context.Context, ref refs.Ref) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return subjectUsers(r.db, r.db.votes, ref), nil
}

func (r *VoteRepo) IsVoted(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.votes[subjectKey{ref: ref, user: userID}]
	return ok, nil
}

func (r *VoteRepo) Count(ctx context.Context, ref refs.Ref) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.voteCounts[ref], nil
}

func (r *VoteRepo) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make(map[int64]int64, len(ids))
	for _, id := range ids {
		if c, ok := r.db.voteCounts[refs.Ref{Kind: kind, ID: id}]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (r *VoteRepo) VotedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return subjectIDs(r.db.votes, kind, ids, userID), nil
}

func (r *VoteRepo) ForUser(ctx context.Context, userID uuid.UUID) ([]models.Vote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	type entry struct {
		m   mark
		ref refs.Ref
	}
	entries := make([]entry, 0)
	for key, m := range r.db.votes {
		if key.user == userID {
			entries = append(entries, entry{m: m, ref: key.ref})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].m.seq > entries[j].m.seq })

	votes := make([]models.Vote, 0, len(entries))
	for _, e := range entries {
		votes = append(votes, models.Vote{Ref: e.ref, UserID: userID, CreatedAt: e.m.at})
	}
	return votes, nil
}

// WatchRepo mirrors the postgres WatchStore: no counter table, counts
// derived by scanning.
type WatchRepo struct {
	db *DB
}

func (r *WatchRepo) Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := subjectKey{ref: ref, user: userID}
	if _, watching := r.db.watches[key]; watching {
		return false, nil
	}
	r.db.watches[key] = r.db.nextMark()
	return true, nil
}

func (r *WatchRepo) Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := subjectKey{ref: ref, user: userID}
	if _, watching := r.db.watches[key]; !watching {
		return false, nil
	}
	delete(r.db.watches, key)
	return true, nil
}

func (r *WatchRepo) Watchers(ctx context.Context, ref refs.Ref) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return subjectUsers(r.db, r.db.watches, ref), nil
}

func (r *WatchRepo) IsWatched(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.watches[subjectKey{ref: ref, user: userID}]
	return ok, nil
}

func (r *WatchRepo) Count(ctx context.Context, ref refs.Ref) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for key := range r.db.watches {
		if key.ref == ref {
			n++
		}
	}
	return n, nil
}

func (r *WatchRepo) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[int64]int64)
	for key := range r.db.watches {
		if key.ref.Kind == kind && wanted[key.ref.ID] {
			out[key.ref.ID]++
		}
	}
	return out, nil
}

func (r *WatchRepo) WatchedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return subjectIDs(r.db.watches, kind, ids, userID), nil
}

func (r *WatchRepo) ForUser(ctx context.Context, userID uuid.UUID) ([]models.Watch, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	type entry struct {
		m   mark
		ref refs.Ref
	}
	entries := make([]entry, 0)
	for key, m := range r.db.watches {
		if key.user == userID {
			entries = append(entries, entry{m: m, ref: key.ref})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].m.seq > entries[j].m.seq })

	watches := make([]models.Watch, 0, len(entries))
	for _, e := range entries {
		watches = append(watches, models.Watch{Ref: e.ref, UserID: userID, CreatedAt: e.m.at})
	}
	return watches, nil
}

// subjectUsers resolves the users holding a (ref, user) row for ref,
// ordered by insertion (the created_at order postgres would give).
func subjectUsers(db *DB, table map[subjectKey]mark, ref refs.Ref) []models.User {
	type entry struct {
		m    mark
		user uuid.UUID
	}
	entries := make([]entry, 0)
	for key, m := range table {
		if key.ref == ref {
			entries = append(entries, entry{m: m, user: key.user})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].m.seq < entries[j].m.seq })

	users := make([]models.User, 0, len(entries))
	for _, e := range entries {
		if u, ok := db.users[e.user]; ok {
			users = append(users, u)
		}
	}
	return users
}

func subjectIDs(table map[subjectKey]mark, kind refs.Kind, ids []int64, userID uuid.UUID) map[int64]bool {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[int64]bool)
	for key := range table {
		if key.user == userID && key.ref.Kind == kind && wanted[key.ref.ID] {
			out[key.ref.ID] = true
		}
	}
	return out
}

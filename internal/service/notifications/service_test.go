package notifications_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
	"github.com/kanbo-io/kanbo/internal/service/notifications"
	"github.com/kanbo-io/kanbo/internal/service/watches"
)

// recordingNotifier captures payloads instead of delivering them.
type recordingNotifier struct {
	payloads []notifications.Payload
}

func (r *recordingNotifier) Notify(ctx context.Context, p notifications.Payload) error {
	r.payloads = append(r.payloads, p)
	return nil
}

type fixture struct {
	db       *memory.DB
	svc      *notifications.Service
	notifier *recordingNotifier
	item     *models.WorkItem
	owner    *models.User
	watcher  *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewDB()
	ctx := context.Background()

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", Email: "owner@example.com", IsActive: true})
	require.NoError(t, err)
	watcher, err := db.Users().Create(ctx, &models.User{Username: "watcher", Email: "watcher@example.com", IsActive: true})
	require.NoError(t, err)

	project, err := db.Projects().Create(ctx, &models.Project{Slug: "demo", Name: "Demo", OwnerUUID: owner.ID})
	require.NoError(t, err)
	item, err := db.WorkItems().Create(ctx, &models.WorkItem{
		Kind: refs.KindIssue, Project: project.ID, Subject: "flaky test", Owner: owner.ID,
	})
	require.NoError(t, err)

	watchSvc := watches.New(db.Watches(), db.NotifyPolicies(), db.Users(), zap.NewNop())
	require.NoError(t, watchSvc.Add(ctx, item, watcher.ID))

	notifier := &recordingNotifier{}
	svc := notifications.New(watchSvc, notifier, zap.NewNop())
	return &fixture{db: db, svc: svc, notifier: notifier, item: item, owner: owner, watcher: watcher}
}

func TestSendFansOutToRelatedPeople(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.Send(ctx, f.item, notifications.Event{
		Type:     "change",
		AuthorID: f.owner.ID,
		Comment:  "still failing on main",
	}, notifications.Options{})
	require.NoError(t, err)

	require.Len(t, f.notifier.payloads, 1)
	p := f.notifier.payloads[0]
	assert.Equal(t, f.item.EntityRef(), p.Entity)
	// The author never receives their own event.
	assert.Equal(t, []uuid.UUID{f.watcher.ID}, p.Recipients)
}

func TestSendSuppressed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice, err := f.db.Users().Create(ctx, &models.User{Username: "alice", Email: "alice@example.com", IsActive: true})
	require.NoError(t, err)

	err = f.svc.Send(ctx, f.item, notifications.Event{
		Type:     "change",
		AuthorID: f.owner.ID,
		Comment:  "fyi @alice",
	}, notifications.Options{Suppress: true})
	require.NoError(t, err)

	// Nothing delivered, but the mention still subscribed alice.
	assert.Empty(t, f.notifier.payloads)
	watched, err := f.db.Watches().IsWatched(ctx, f.item.EntityRef(), alice.ID)
	require.NoError(t, err)
	assert.True(t, watched)
}

func TestMentionedUserReceivesTheMentioningEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice, err := f.db.Users().Create(ctx, &models.User{Username: "alice", Email: "alice@example.com", IsActive: true})
	require.NoError(t, err)

	err = f.svc.Send(ctx, f.item, notifications.Event{
		Type:     "change",
		AuthorID: f.owner.ID,
		Comment:  "what do you think @alice?",
	}, notifications.Options{})
	require.NoError(t, err)

	// Mention analysis runs before the recipient set is computed, so
	// alice gets the very comment that does the mentioning.
	require.Len(t, f.notifier.payloads, 1)
	assert.Contains(t, f.notifier.payloads[0].Recipients, alice.ID)
	assert.Contains(t, f.notifier.payloads[0].Recipients, f.watcher.ID)
}

func TestNoRecipientsNoDelivery(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// The only watcher unsubscribes; the author is excluded; nothing
	// remains to deliver.
	watchSvc := watches.New(f.db.Watches(), f.db.NotifyPolicies(), f.db.Users(), zap.NewNop())
	require.NoError(t, watchSvc.Remove(ctx, f.item, f.watcher.ID))

	err := f.svc.Send(ctx, f.item, notifications.Event{
		Type:     "change",
		AuthorID: f.owner.ID,
		Comment:  "talking to myself",
	}, notifications.Options{})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.payloads)
}

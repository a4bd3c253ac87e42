// Package notifications fans change events out to the people an entity
// concerns. Delivery itself is behind the Notifier interface; the
// websocket events hub is the in-process implementation.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/service/watches"
)

// Event is one change to an entity: who did it, what kind of change,
// and the comment text (mined for @mentions before fan-out).
type Event struct {
	Type      string    `json:"type"` // "create", "change", "delete"
	AuthorID  uuid.UUID `json:"author"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_date"`
}

// Payload is what a Notifier delivers: the event plus the entity it
// happened to and the resolved recipient set.
type Payload struct {
	Entity     refs.Ref    `json:"entity"`
	ProjectID  int64       `json:"project"`
	Event      Event       `json:"event"`
	Recipients []uuid.UUID `json:"-"`
}

type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// Options tunes one Send. Suppress skips delivery entirely, an
// explicit replacement for side-channel "don't notify" flags; mention
// analysis still runs so mentioned users end up watching.
type Options struct {
	Suppress bool
}

type Service struct {
	watches  *watches.Service
	notifier Notifier
	logger   *zap.Logger
}

func New(w *watches.Service, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{watches: w, notifier: notifier, logger: logger}
}

// Send analyzes the event's comment for mentions, computes the
// recipient set and hands the payload to the notifier. The author never
// receives their own event. Mentioned users are subscribed BEFORE
// recipients are computed, so they are notified of the comment that
// mentions them.
func (s *Service) Send(ctx context.Context, entity refs.Watchable, event Event, opts Options) error {
	if _, err := s.watches.AnalyzeMentions(ctx, entity, event.Comment); err != nil {
		return err
	}
	if opts.Suppress {
		return nil
	}

	people, err := s.watches.RelatedPeople(ctx, entity)
	if err != nil {
		return err
	}
	recipients := make([]uuid.UUID, 0, len(people))
	for _, u := range people {
		if u.ID == event.AuthorID {
			continue
		}
		recipients = append(recipients, u.ID)
	}
	if len(recipients) == 0 {
		return nil
	}

	payload := Payload{
		Entity:     entity.EntityRef(),
		ProjectID:  entity.ProjectID(),
		Event:      event,
		Recipients: recipients,
	}
	if err := s.notifier.Notify(ctx, payload); err != nil {
		return err
	}
	s.logger.Debug("event delivered",
		zap.String("entity", entity.EntityRef().String()),
		zap.String("type", event.Type),
		zap.Int("recipients", len(recipients)),
	)
	return nil
}

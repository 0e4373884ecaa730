package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnsupportedNotification reports a webhook event the pipeline does not
// ingest (unknown aspect, or a non-activity object).
var ErrUnsupportedNotification = errors.New("unsupported notification")

// Notification is the provider's webhook event payload.
type Notification struct {
	ObjectType    string            `json:"object_type"`
	ObjectID      int64             `json:"object_id"`
	AspectType    string            `json:"aspect_type"`
	OwnerID       int64             `json:"owner_id"`
	EventTimeUnix int64             `json:"event_time"`
	Updates       map[string]string `json:"updates"`
}

// Queue turns notifications into pending ledger jobs. The HTTP handler runs
// this inline; it is a single insert, cheap enough to stay inside the
// webhook acknowledgement window.
type Queue struct {
	store  JobStore
	logger *zap.Logger
}

// NewQueue constructs a Queue.
func NewQueue(store JobStore, logger *zap.Logger) *Queue {
	return &Queue{store: store, logger: logger}
}

// Enqueue records a notification as a pending job.
func (q *Queue) Enqueue(ctx context.Context, n Notification) error {
	if n.ObjectType != "activity" {
		return fmt.Errorf("%w: object_type %q", ErrUnsupportedNotification, n.ObjectType)
	}

	kind, err := kindForAspect(n.AspectType)
	if err != nil {
		return err
	}

	job := Job{
		ID:                 uuid.NewString(),
		AthleteExternalID:  n.OwnerID,
		ActivityExternalID: n.ObjectID,
		Kind:               kind,
		EventTime:          time.Unix(n.EventTimeUnix, 0).UTC(),
		Status:             StatusPending,
	}

	if err := q.store.InsertPending(ctx, job); err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}

	enqueuedCounter.WithLabelValues(string(kind)).Inc()
	q.logger.Info("notification enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.Int64("athlete_id", n.OwnerID),
		zap.Int64("activity_id", n.ObjectID))
	return nil
}

func kindForAspect(aspect string) (JobKind, error) {
	switch aspect {
	case "create":
		return KindCreate, nil
	case "update":
		return KindUpdate, nil
	case "delete":
		return KindDelete, nil
	default:
		return "", fmt.Errorf("%w: aspect_type %q", ErrUnsupportedNotification, aspect)
	}
}

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type dispatchStore struct {
	JobStore
	pending    []Job
	dispatched []string
	inserted   []Job
}

func (s *dispatchStore) InsertPending(_ context.Context, job Job) error {
	s.inserted = append(s.inserted, job)
	return nil
}

func (s *dispatchStore) ClaimForDispatch(_ context.Context, limit int) ([]Job, error) {
	if len(s.pending) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *dispatchStore) MarkDispatched(_ context.Context, jobIDs []string) error {
	s.dispatched = append(s.dispatched, jobIDs...)
	return nil
}

type captureWriter struct {
	messages []kafka.Message
	err      error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func TestDispatcherDeliversClaimedJobs(t *testing.T) {
	store := &dispatchStore{pending: []Job{
		{ID: "a", AthleteExternalID: 42, ActivityExternalID: 1, Kind: KindCreate},
		{ID: "b", AthleteExternalID: 43, ActivityExternalID: 2, Kind: KindDelete},
	}}
	writer := &captureWriter{}
	d := NewDispatcher(store, writer, time.Minute, 10, zap.NewNop())

	require.NoError(t, d.processBatch(context.Background()))

	require.Len(t, writer.messages, 2)
	require.Equal(t, []string{"a", "b"}, store.dispatched)

	msg := writer.messages[0]
	require.Equal(t, "42", string(msg.Key))

	env, err := DecodeEnvelope(msg.Value)
	require.NoError(t, err)
	require.Equal(t, "a", env.JobID)
	require.Equal(t, KindCreate, env.Kind)
	require.Equal(t, SchemaVersion, env.SchemaVersion)

	var headers []string
	for _, h := range msg.Headers {
		headers = append(headers, h.Key)
	}
	require.ElementsMatch(t, []string{"job_id", "kind", "schema_version"}, headers)
}

func TestDispatcherLeavesJobsClaimedOnDeliveryFailure(t *testing.T) {
	store := &dispatchStore{pending: []Job{{ID: "a", Kind: KindCreate}}}
	writer := &captureWriter{err: errors.New("broker down")}
	d := NewDispatcher(store, writer, time.Minute, 10, zap.NewNop())

	require.Error(t, d.processBatch(context.Background()))
	require.Empty(t, store.dispatched)
}

func TestDispatcherEmptyBatchIsQuiet(t *testing.T) {
	store := &dispatchStore{}
	writer := &captureWriter{}
	d := NewDispatcher(store, writer, time.Minute, 10, zap.NewNop())

	require.NoError(t, d.processBatch(context.Background()))
	require.Empty(t, writer.messages)
}

func TestQueueEnqueueMapsAspects(t *testing.T) {
	store := &dispatchStore{}
	q := NewQueue(store, zap.NewNop())

	err := q.Enqueue(context.Background(), Notification{
		ObjectType:    "activity",
		ObjectID:      7,
		AspectType:    "create",
		OwnerID:       42,
		EventTimeUnix: 1700000000,
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)

	job := store.inserted[0]
	require.Equal(t, KindCreate, job.Kind)
	require.Equal(t, int64(42), job.AthleteExternalID)
	require.Equal(t, int64(7), job.ActivityExternalID)
	require.Equal(t, StatusPending, job.Status)
	require.NotEmpty(t, job.ID)
}

func TestQueueEnqueueRejectsNonActivity(t *testing.T) {
	q := NewQueue(&dispatchStore{}, zap.NewNop())

	err := q.Enqueue(context.Background(), Notification{ObjectType: "athlete", AspectType: "update"})
	require.ErrorIs(t, err, ErrUnsupportedNotification)

	err = q.Enqueue(context.Background(), Notification{ObjectType: "activity", AspectType: "merge"})
	require.ErrorIs(t, err, ErrUnsupportedNotification)
}

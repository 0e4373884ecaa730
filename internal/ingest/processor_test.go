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

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubJobHandler struct {
	calls    int
	failures int // fail this many calls before succeeding
	last     JobEnvelope
}

func (h *stubJobHandler) Handle(_ context.Context, env JobEnvelope) error {
	h.calls++
	h.last = env
	if h.calls <= h.failures {
		return errors.New("boom")
	}
	return nil
}

type stubStore struct {
	JobStore
	completed []string
	failed    map[string]string
}

func newStubStore() *stubStore {
	return &stubStore{failed: make(map[string]string)}
}

func (s *stubStore) MarkCompleted(_ context.Context, jobID string) error {
	s.completed = append(s.completed, jobID)
	return nil
}

func (s *stubStore) MarkFailed(_ context.Context, jobID, reason string) error {
	s.failed[jobID] = reason
	return nil
}

func envelopeMessage(t *testing.T, job Job) kafka.Message {
	t.Helper()
	payload, err := EncodeEnvelope(job)
	require.NoError(t, err)
	return kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(job.ID)},
			{Key: "kind", Value: []byte(job.Kind)},
		},
	}
}

func newTestProcessor(reader Reader, handler Handler, store JobStore) *Processor {
	p := NewProcessor(reader, handler, store, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}, zap.NewNop())
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestProcessorCompletesAndCommits(t *testing.T) {
	job := Job{ID: "job-1", AthleteExternalID: 42, ActivityExternalID: 7, Kind: KindCreate}
	reader := &stubReader{messages: []kafka.Message{envelopeMessage(t, job)}}
	handler := &stubJobHandler{}
	store := newStubStore()

	err := newTestProcessor(reader, handler, store).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, []string{"job-1"}, store.completed)
	require.Equal(t, "job-1", handler.last.JobID)
	require.Equal(t, int64(42), handler.last.AthleteID)
}

func TestProcessorRetriesThenSucceeds(t *testing.T) {
	job := Job{ID: "job-2", Kind: KindUpdate}
	reader := &stubReader{messages: []kafka.Message{envelopeMessage(t, job)}}
	handler := &stubJobHandler{failures: 2}
	store := newStubStore()

	err := newTestProcessor(reader, handler, store).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, []string{"job-2"}, store.completed)
	require.Empty(t, store.failed)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorParksAfterExhaustion(t *testing.T) {
	job := Job{ID: "job-3", Kind: KindCreate}
	reader := &stubReader{messages: []kafka.Message{envelopeMessage(t, job)}}
	handler := &stubJobHandler{failures: 10}
	store := newStubStore()

	err := newTestProcessor(reader, handler, store).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Empty(t, store.completed)
	require.Equal(t, "boom", store.failed["job-3"])
	// Parked jobs are still committed so they cannot wedge the partition.
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorParksUnknownSchemaVersion(t *testing.T) {
	msg := kafka.Message{
		Value:   []byte(`{"schema_version":99,"job_id":"job-4"}`),
		Headers: []kafka.Header{{Key: "job_id", Value: []byte("job-4")}},
	}
	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubJobHandler{}
	store := newStubStore()

	err := newTestProcessor(reader, handler, store).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Contains(t, store.failed["job-4"], "unknown envelope schema version")
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsGarbageWithoutJobID(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{{Value: []byte("not json")}}}
	handler := &stubJobHandler{}
	store := newStubStore()

	err := newTestProcessor(reader, handler, store).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Empty(t, store.failed)
	require.Equal(t, 1, reader.commitCalls)
}

func TestRetryPolicyDelayDoubles(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second}
	require.Equal(t, time.Second, policy.Delay(1))
	require.Equal(t, 2*time.Second, policy.Delay(2))
	require.Equal(t, 4*time.Second, policy.Delay(3))
}

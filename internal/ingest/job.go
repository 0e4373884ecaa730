// Package ingest persists webhook notifications as durable jobs and delivers
// them through Kafka to the sync workers.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the wire version of JobEnvelope. Workers park envelopes
// with a version they do not know instead of guessing.
const SchemaVersion = 1

// ErrUnknownSchemaVersion reports an envelope from a newer producer.
var ErrUnknownSchemaVersion = errors.New("unknown envelope schema version")

// JobKind is what the worker should do with the referenced activity.
type JobKind string

const (
	KindCreate JobKind = "create"
	KindUpdate JobKind = "update"
	KindDelete JobKind = "delete"
)

// JobStatus is the ledger state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusDispatched JobStatus = "dispatched"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one row of the ingestion ledger. A job is pending until the
// dispatcher hands it to Kafka, then dispatched until a worker finishes it.
type Job struct {
	ID                 string
	AthleteExternalID  int64
	ActivityExternalID int64
	Kind               JobKind
	EventTime          time.Time
	Status             JobStatus
	LastError          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// JobStore is the ledger persistence contract.
type JobStore interface {
	InsertPending(ctx context.Context, job Job) error
	// ClaimForDispatch atomically selects pending jobs and marks them
	// claimed, so concurrent dispatchers never pick the same row.
	ClaimForDispatch(ctx context.Context, limit int) ([]Job, error)
	MarkDispatched(ctx context.Context, jobIDs []string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	PruneCompleted(ctx context.Context, olderThan time.Time, keep int) (int64, error)
	PruneFailed(ctx context.Context, olderThan time.Time, keep int) (int64, error)
	// ReleaseStuck returns jobs claimed before the cutoff to pending so a
	// dispatcher crash cannot strand them.
	ReleaseStuck(ctx context.Context, claimedBefore time.Time) (int64, error)
}

// JobEnvelope is the Kafka payload for one job.
type JobEnvelope struct {
	SchemaVersion int       `json:"schema_version"`
	JobID         string    `json:"job_id"`
	AthleteID     int64     `json:"athlete_id"`
	ActivityID    int64     `json:"activity_id"`
	Kind          JobKind   `json:"kind"`
	EventTime     time.Time `json:"event_time"`
}

// EncodeEnvelope serializes a job for the wire.
func EncodeEnvelope(job Job) ([]byte, error) {
	return json.Marshal(JobEnvelope{
		SchemaVersion: SchemaVersion,
		JobID:         job.ID,
		AthleteID:     job.AthleteExternalID,
		ActivityID:    job.ActivityExternalID,
		Kind:          job.Kind,
		EventTime:     job.EventTime,
	})
}

// DecodeEnvelope parses and version-checks a wire payload.
func DecodeEnvelope(payload []byte) (JobEnvelope, error) {
	var env JobEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return JobEnvelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return JobEnvelope{}, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, env.SchemaVersion)
	}
	if env.JobID == "" {
		return JobEnvelope{}, errors.New("envelope missing job_id")
	}
	return env, nil
}

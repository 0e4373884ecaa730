package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/trainload/internal/auth"
	"example.com/trainload/internal/domain"
	"example.com/trainload/internal/goals"
	"example.com/trainload/internal/ingest"
	"example.com/trainload/internal/load"
	"example.com/trainload/internal/recovery"
	"example.com/trainload/internal/strava"
	"example.com/trainload/internal/sync"
)

const testAthleteID int64 = 42

// memActivities is an in-memory ActivityRepository for handler tests.
type memActivities struct {
	rows map[int64]domain.Activity
}

func newMemActivities() *memActivities {
	return &memActivities{rows: make(map[int64]domain.Activity)}
}

func (m *memActivities) Upsert(_ context.Context, activity domain.Activity) (bool, error) {
	_, exists := m.rows[activity.ExternalID]
	if exists {
		prev := m.rows[activity.ExternalID]
		if activity.StressScore == nil {
			activity.StressScore = prev.StressScore
		}
		if activity.ZoneTimesSec == nil {
			activity.ZoneTimesSec = prev.ZoneTimesSec
		}
	}
	m.rows[activity.ExternalID] = activity
	return !exists, nil
}

func (m *memActivities) SetStress(_ context.Context, externalID int64, stress float64) error {
	row, ok := m.rows[externalID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	row.StressScore = &stress
	m.rows[externalID] = row
	return nil
}

func (m *memActivities) SetZoneTimes(_ context.Context, externalID int64, zones []int) error {
	row, ok := m.rows[externalID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	row.ZoneTimesSec = zones
	m.rows[externalID] = row
	return nil
}

func (m *memActivities) Find(_ context.Context, athleteID, externalID int64) (*domain.Activity, error) {
	row, ok := m.rows[externalID]
	if !ok || row.AthleteExternalID != athleteID {
		return nil, domain.ErrActivityNotFound
	}
	return &row, nil
}

func (m *memActivities) Delete(_ context.Context, athleteID, externalID int64) (bool, error) {
	row, ok := m.rows[externalID]
	if !ok || row.AthleteExternalID != athleteID {
		return false, nil
	}
	delete(m.rows, externalID)
	return true, nil
}

func (m *memActivities) FindInRange(_ context.Context, athleteID int64, from, to time.Time) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, row := range m.rows {
		if row.AthleteExternalID != athleteID {
			continue
		}
		if row.StartDate.Before(from) || row.StartDate.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memActivities) ListRecent(_ context.Context, athleteID int64, limit, skip int) ([]domain.Activity, error) {
	var all []domain.Activity
	for _, row := range m.rows {
		if row.AthleteExternalID == athleteID {
			all = append(all, row)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartDate.After(all[j].StartDate) })
	if skip >= len(all) {
		return nil, nil
	}
	all = all[skip:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memActivities) MostRecent(ctx context.Context, athleteID int64) (*domain.Activity, error) {
	recent, err := m.ListRecent(ctx, athleteID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, domain.ErrActivityNotFound
	}
	return &recent[0], nil
}

func (m *memActivities) Count(_ context.Context, athleteID int64) (int, error) {
	count := 0
	for _, row := range m.rows {
		if row.AthleteExternalID == athleteID {
			count++
		}
	}
	return count, nil
}

func (m *memActivities) CountSince(_ context.Context, athleteID int64, since time.Time) (int, error) {
	count := 0
	for _, row := range m.rows {
		if row.AthleteExternalID == athleteID && !row.StartDate.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memActivities) Totals(_ context.Context, athleteID int64) (int, float64, error) {
	count := 0
	distance := 0.0
	for _, row := range m.rows {
		if row.AthleteExternalID == athleteID {
			count++
			distance += row.DistanceMeters
		}
	}
	return count, distance, nil
}

type memSummaries struct {
	rows map[string]domain.WeeklySummary
}

func newMemSummaries() *memSummaries {
	return &memSummaries{rows: make(map[string]domain.WeeklySummary)}
}

func summaryKey(athleteID int64, weekStart time.Time) string {
	return fmt.Sprintf("%d/%s", athleteID, weekStart.Format("2006-01-02"))
}

func (m *memSummaries) Upsert(_ context.Context, summary domain.WeeklySummary) error {
	m.rows[summaryKey(summary.AthleteExternalID, summary.WeekStart)] = summary
	return nil
}

func (m *memSummaries) Find(_ context.Context, athleteID int64, weekStart time.Time) (*domain.WeeklySummary, error) {
	summary, ok := m.rows[summaryKey(athleteID, weekStart)]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

type memGoals struct {
	rows []domain.Goal
}

func (m *memGoals) FindActive(_ context.Context, athleteID int64, weekStart time.Time) (*domain.Goal, error) {
	for _, goal := range m.rows {
		if goal.AthleteExternalID == athleteID && goal.Active && goal.WeekStart.Equal(weekStart) {
			out := goal
			return &out, nil
		}
	}
	return nil, domain.ErrNoGoal
}

func (m *memGoals) Create(_ context.Context, goal domain.Goal) error {
	m.rows = append([]domain.Goal{goal}, m.rows...)
	return nil
}

func (m *memGoals) DeactivateWeek(_ context.Context, athleteID int64, weekStart time.Time) error {
	for i, goal := range m.rows {
		if goal.AthleteExternalID == athleteID && goal.WeekStart.Equal(weekStart) {
			m.rows[i].Active = false
		}
	}
	return nil
}

func (m *memGoals) UpdateProgress(_ context.Context, goalID string, progress float64) error {
	for i, goal := range m.rows {
		if goal.ID == goalID {
			m.rows[i].Progress = progress
		}
	}
	return nil
}

func (m *memGoals) History(_ context.Context, athleteID int64, limit int) ([]domain.Goal, error) {
	var out []domain.Goal
	for _, goal := range m.rows {
		if goal.AthleteExternalID == athleteID {
			out = append(out, goal)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubAthletes struct {
	profile *domain.AthleteProfile
}

func (s *stubAthletes) FindByExternalID(_ context.Context, externalID int64) (*domain.AthleteProfile, error) {
	if s.profile == nil || s.profile.ExternalID != externalID {
		return nil, domain.ErrAthleteNotFound
	}
	return s.profile, nil
}

func (s *stubAthletes) UpdateCredential(context.Context, int64, string, string, time.Time) error {
	return nil
}

type stubSource struct {
	activities []strava.Activity
}

func (s *stubSource) ListActivities(_ context.Context, _ time.Time, page, _ int) ([]strava.Activity, error) {
	if page > 1 {
		return nil, nil
	}
	return s.activities, nil
}

func (s *stubSource) FetchActivity(_ context.Context, activityID int64) (*strava.Activity, error) {
	for _, act := range s.activities {
		if act.ID == activityID {
			out := act
			return &out, nil
		}
	}
	return nil, strava.ErrNotFound
}

func (s *stubSource) FetchZoneTimes(context.Context, int64) ([]int, error) {
	return nil, nil
}

type noopLocker struct{}

func (noopLocker) AcquireWait(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// stubJobStore records inserted jobs; the embedded interface panics on
// anything the webhook path should never touch.
type stubJobStore struct {
	ingest.JobStore
	inserted []ingest.Job
}

func (s *stubJobStore) InsertPending(_ context.Context, job ingest.Job) error {
	s.inserted = append(s.inserted, job)
	return nil
}

type testEnv struct {
	handler    http.Handler
	activities *memActivities
	goals      *memGoals
	jobs       *stubJobStore
}

func newTestEnv(t *testing.T, source sync.Source) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	activities := newMemActivities()
	summaries := newMemSummaries()
	goalRows := &memGoals{}
	jobs := &stubJobStore{}

	factory := func(context.Context, *domain.AthleteProfile) (sync.Source, error) {
		return source, nil
	}
	syncer := sync.NewService(activities, summaries, factory, noopLocker{}, logger)

	handler := NewHandler(Config{
		Athletes:           &stubAthletes{profile: &domain.AthleteProfile{ID: "ath-1", ExternalID: testAthleteID}},
		Sync:               syncer,
		Load:               load.NewAggregator(activities, summaries, logger),
		Recovery:           recovery.NewAdvisor(activities, logger),
		Goals:              goals.NewTracker(goalRows, activities, logger),
		Queue:              ingest.NewQueue(jobs, logger),
		WebhookVerifyToken: "verify-me",
		MaxSyncDays:        365,
		Logger:             logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return &testEnv{handler: mux, activities: activities, goals: goalRows, jobs: jobs}
}

// do issues an authenticated request with claims injected directly,
// bypassing the JWT middleware.
func (e *testEnv) do(method, target, body string, scopes ...string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)

	if len(scopes) > 0 {
		scopeSet := make(map[string]struct{}, len(scopes))
		for _, scope := range scopes {
			scopeSet[scope] = struct{}{}
		}
		claims := &auth.Claims{Subject: "user-1", AthleteID: testAthleteID, Scopes: scopeSet}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func TestSyncEndpoint(t *testing.T) {
	source := &stubSource{activities: []strava.Activity{{
		ID:             9001,
		Name:           "Morning Run",
		Type:           "Run",
		Distance:       10000,
		MovingTime:     3600,
		ElapsedTime:    3700,
		StartDate:      time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
		StartDateLocal: time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
	}}}
	source.activities[0].Athlete.ID = testAthleteID

	env := newTestEnv(t, source)

	rec := env.do(http.MethodPost, "/v1/sync?days=7", "", auth.ScopeTrainingWrite)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SyncResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Created)
	require.Equal(t, 0, resp.Updated)
	require.Equal(t, 7, resp.DaysBack)
	require.Len(t, env.activities.rows, 1)
}

func TestSyncRejectsBadDays(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	rec := env.do(http.MethodPost, "/v1/sync?days=nope", "", auth.ScopeTrainingWrite)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncRequiresWriteScope(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	rec := env.do(http.MethodPost, "/v1/sync", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	rec := env.do(http.MethodGet, "/v1/dashboard", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBalanceEmptyHistory(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodGet, "/v1/balance", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BalanceView
	decodeBody(t, rec, &resp)
	require.Equal(t, "moderate", resp.Fatigue)
	require.Zero(t, resp.ATL)
	require.Zero(t, resp.CTL)
}

func TestActivitiesListPaging(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := env.activities.Upsert(context.Background(), domain.Activity{
			ExternalID:        int64(100 + i),
			AthleteExternalID: testAthleteID,
			Type:              "Run",
			StartDate:         base.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	rec := env.do(http.MethodGet, "/v1/activities?limit=2&skip=1", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListActivitiesResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Items, 2)
	require.Equal(t, 2, resp.Limit)
	require.Equal(t, 1, resp.Skip)
	require.Equal(t, 5, resp.Total)
	require.True(t, resp.HasMore)
	require.Equal(t, int64(101), resp.Items[0].ActivityID)
}

func TestRecoveryNoHistory(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodGet, "/v1/recovery", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecoveryView
	decodeBody(t, rec, &resp)
	require.Equal(t, "ready", resp.Recommendation)
	require.Nil(t, resp.LastActivity)
}

func TestWeeklyTrendValidatesRange(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodGet, "/v1/weekly-trend?weeks=1", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/v1/weekly-trend?weeks=4", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WeeklyTrendResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Weeks, 4)
	require.True(t, resp.Weeks[3].Current)
}

func TestSetGoalAndFetchCurrent(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodPost, "/v1/goals",
		`{"type":"distance","target":40,"filter":"run"}`, auth.ScopeTrainingWrite)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created GoalStatusResponse
	decodeBody(t, rec, &created)
	require.Equal(t, "distance", created.Goal.Type)
	require.Equal(t, "km", created.Goal.Unit)
	require.Equal(t, 0, created.Goal.PercentComplete)

	rec = env.do(http.MethodGet, "/v1/goals/current", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var current GoalStatusResponse
	decodeBody(t, rec, &current)
	require.Equal(t, created.Goal.GoalID, current.Goal.GoalID)
}

func TestSetGoalValidation(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodPost, "/v1/goals",
		`{"type":"steps","target":40}`, auth.ScopeTrainingWrite)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/v1/goals",
		`{"type":"distance","target":0}`, auth.ScopeTrainingWrite)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCurrentGoalMissing(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodGet, "/v1/goals/current", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGoalHistory(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodPost, "/v1/goals",
		`{"type":"duration","target":7}`, auth.ScopeTrainingWrite)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/v1/goals/history", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GoalHistoryResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "duration", resp.Items[0].Type)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	_, err := env.activities.Upsert(context.Background(), domain.Activity{
		ExternalID:        200,
		AthleteExternalID: testAthleteID,
		Type:              "Ride",
		DistanceMeters:    25000,
		StartDate:         time.Now().UTC().Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/v1/dashboard", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DashboardView
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.TotalActivities)
	require.InDelta(t, 25000, resp.TotalDistanceMeters, 0.01)
	require.Len(t, resp.RecentActivities, 1)
}

func TestWebhookVerification(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	require.Equal(t, "abc123", resp["hub.challenge"])

	rec = env.do(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc123", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookEnqueuesActivityEvent(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodPost, "/webhook",
		`{"object_type":"activity","object_id":9001,"aspect_type":"create","owner_id":42,"event_time":1710000000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.jobs.inserted, 1)
	job := env.jobs.inserted[0]
	require.Equal(t, ingest.KindCreate, job.Kind)
	require.Equal(t, int64(9001), job.ActivityExternalID)
	require.Equal(t, testAthleteID, job.AthleteExternalID)
}

func TestWebhookIgnoresNonActivityEvents(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodPost, "/webhook",
		`{"object_type":"athlete","object_id":42,"aspect_type":"update","owner_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, env.jobs.inserted)
}

func TestWebhookMalformedBodyStillAcknowledged(t *testing.T) {
	env := newTestEnv(t, &stubSource{})

	rec := env.do(http.MethodPost, "/webhook", `{not json`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, env.jobs.inserted)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, &stubSource{})
	rec := env.do(http.MethodDelete, "/v1/dashboard", "", auth.ScopeTrainingRead)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

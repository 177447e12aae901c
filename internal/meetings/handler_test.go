package meetings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/pkg/response"
)

// fakeStore serves a single meeting and can be told to fail reads after the
// first one.
type fakeStore struct {
	meeting       *models.Meeting
	getCalls      int
	failGetsAfter int // fail GetByID once this many calls have succeeded; 0 = never
	updated       *models.Meeting
}

func (f *fakeStore) Create(context.Context, *models.Meeting, []uuid.UUID) error { return nil }

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	f.getCalls++
	if f.failGetsAfter > 0 && f.getCalls > f.failGetsAfter {
		return nil, errors.New("connection reset")
	}
	if f.meeting == nil || f.meeting.ID != id {
		return nil, ErrMeetingNotFound
	}
	m := *f.meeting
	return &m, nil
}

func (f *fakeStore) List(context.Context, *uuid.UUID) ([]models.Meeting, error) { return nil, nil }

func (f *fakeStore) Update(_ context.Context, m *models.Meeting, _ []uuid.UUID) error {
	f.updated = m
	f.meeting = m
	return nil
}

func (f *fakeStore) Delete(context.Context, uuid.UUID) ([]string, error) { return nil, nil }

func (f *fakeStore) EndNow(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeStore) IsUserOnlineInLiveMeeting(context.Context, uuid.UUID, time.Time) (bool, error) {
	return false, nil
}

func scheduledMeeting() *models.Meeting {
	start := time.Now().Add(time.Hour)
	return &models.Meeting{
		ID:          uuid.New(),
		Name:        "Team Sync",
		RoomName:    "TeamSync",
		StartTime:   start,
		DurationMin: 30,
		EndingTime:  start.Add(30 * time.Minute),
		CreatedBy:   uuid.New(),
	}
}

func putUpdate(t *testing.T, store *fakeStore, id uuid.UUID, req ScheduleRequest) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil, nil, nil, "", zap.NewNop())
	r := gin.New()
	r.PUT("/meetings/:id", h.Update)

	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPut, "/meetings/"+id.String(), bytes.NewReader(raw))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}

func decodeMeeting(t *testing.T, w *httptest.ResponseRecorder) models.Meeting {
	t.Helper()
	var body struct {
		Success bool           `json:"success"`
		Data    models.Meeting `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Data
}

func TestUpdateRespondsWithReloadedMeeting(t *testing.T) {
	store := &fakeStore{meeting: scheduledMeeting()}
	newStart := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	w := putUpdate(t, store, store.meeting.ID, ScheduleRequest{
		Name:            "Planning Call",
		StartTime:       newStart.Format(time.RFC3339),
		DurationMinutes: 45,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	got := decodeMeeting(t, w)
	if got.Name != "Planning Call" || got.RoomName != "PlanningCall" {
		t.Errorf("name/room = %q/%q", got.Name, got.RoomName)
	}
	if store.updated == nil {
		t.Fatal("store.Update never called")
	}
}

func TestUpdateFallsBackWhenReloadFails(t *testing.T) {
	// The update itself committed; a failed re-read must not turn the
	// response into a 200 with an empty body.
	store := &fakeStore{meeting: scheduledMeeting(), failGetsAfter: 1}
	newStart := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	w := putUpdate(t, store, store.meeting.ID, ScheduleRequest{
		Name:            "Planning Call",
		StartTime:       newStart.Format(time.RFC3339),
		DurationMinutes: 45,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	got := decodeMeeting(t, w)
	if got.Name != "Planning Call" {
		t.Errorf("fallback body name = %q, want the updated fields", got.Name)
	}
	if got.ID != store.meeting.ID {
		t.Errorf("fallback body id = %s, want %s", got.ID, store.meeting.ID)
	}
}

func TestUpdateRejectsLiveMeeting(t *testing.T) {
	m := scheduledMeeting()
	m.StartTime = time.Now().Add(-10 * time.Minute)
	m.EndingTime = time.Now().Add(20 * time.Minute)
	store := &fakeStore{meeting: m}

	w := putUpdate(t, store, m.ID, ScheduleRequest{
		Name:            "Renamed",
		StartTime:       time.Now().Add(time.Hour).Format(time.RFC3339),
		DurationMinutes: 30,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	var body response.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != ErrMeetingLive.Error() {
		t.Errorf("error = %q, want %q", body.Error, ErrMeetingLive.Error())
	}
	if store.updated != nil {
		t.Error("live meeting was written")
	}
}

package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/internal/verify"
	"github.com/ezmeets/backend/pkg/queue"
)

type fakeApprover struct {
	lastID     uuid.UUID
	lastStatus models.ApproveStatus
	calls      int
}

func (f *fakeApprover) SetApproveStatus(_ context.Context, id uuid.UUID, status models.ApproveStatus) error {
	f.lastID = id
	f.lastStatus = status
	f.calls++
	return nil
}

func verificationJob(t *testing.T, userID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.AvatarVerificationPayload{
		UserID:    userID,
		AvatarURL: "https://cdn.example.org/a.png",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{
		ID:        uuid.New().String(),
		Type:      queue.JobTypeAvatarVerification,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func verificationServer(t *testing.T, verified bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(verify.Result{Verified: verified, Confidence: 0.9})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessApprovesVerifiedAvatar(t *testing.T) {
	srv := verificationServer(t, true)
	approver := &fakeApprover{}
	p := NewAvatarVerifier(approver, verify.NewClient(srv.URL, time.Second, zap.NewNop()), nil, zap.NewNop())

	userID := uuid.New()
	if err := p.Process(context.Background(), verificationJob(t, userID)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if approver.lastID != userID {
		t.Errorf("updated user = %s, want %s", approver.lastID, userID)
	}
	if approver.lastStatus != models.ApproveStatusApproved {
		t.Errorf("status = %s, want %s", approver.lastStatus, models.ApproveStatusApproved)
	}
}

func TestProcessRejectsUnverifiedAvatar(t *testing.T) {
	srv := verificationServer(t, false)
	approver := &fakeApprover{}
	p := NewAvatarVerifier(approver, verify.NewClient(srv.URL, time.Second, zap.NewNop()), nil, zap.NewNop())

	if err := p.Process(context.Background(), verificationJob(t, uuid.New())); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if approver.lastStatus != models.ApproveStatusNotApproved {
		t.Errorf("status = %s, want %s", approver.lastStatus, models.ApproveStatusNotApproved)
	}
}

func TestProcessWithoutVerifierLeavesStatusAlone(t *testing.T) {
	approver := &fakeApprover{}
	p := NewAvatarVerifier(approver, nil, nil, zap.NewNop())

	if err := p.Process(context.Background(), verificationJob(t, uuid.New())); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if approver.calls != 0 {
		t.Errorf("approve status updated %d times, want 0", approver.calls)
	}
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p := NewAvatarVerifier(&fakeApprover{}, nil, nil, zap.NewNop())
	job := &queue.Job{ID: uuid.New().String(), Type: "mystery"}
	if err := p.Process(context.Background(), job); err == nil {
		t.Fatal("unknown job type accepted")
	}
}

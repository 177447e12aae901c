package users

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/auth"
	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/pkg/response"
)

type fakeStore struct {
	user       *models.User
	lastStatus models.ApproveStatus
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, auth.ErrUserNotFound
	}
	u := *f.user
	return &u, nil
}

func (f *fakeStore) List(context.Context) ([]models.UserPublic, error) { return nil, nil }

func (f *fakeStore) SetApproveStatus(_ context.Context, id uuid.UUID, status models.ApproveStatus) error {
	if f.user == nil || f.user.ID != id {
		return auth.ErrUserNotFound
	}
	f.lastStatus = status
	return nil
}

func (f *fakeStore) SetAvatar(context.Context, uuid.UUID, string, string) error { return nil }

func (f *fakeStore) SetRole(context.Context, uuid.UUID, models.Role) error { return nil }

func (f *fakeStore) Delete(context.Context, uuid.UUID) (string, error) { return "", nil }

type fakePhotos struct {
	presignedKey string
}

func (f *fakePhotos) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}

func (f *fakePhotos) PresignDownloadURL(_ context.Context, key string) (string, error) {
	f.presignedKey = key
	return "https://photos.example.org/" + key + "?sig=abc", nil
}

func (f *fakePhotos) DeleteObjects(context.Context, []string) {}

func newRouter(store Store, photos PhotoStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, photos, nil, zap.NewNop())
	r := gin.New()
	r.GET("/users/:id/avatar", h.AvatarDownloadURL)
	r.POST("/users/:id/approve", h.Approve)
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) response.Body {
	t.Helper()
	var body response.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestAvatarDownloadURLPresignsStoredKey(t *testing.T) {
	user := &models.User{ID: uuid.New(), AvatarKey: "avatars/u1/face.png"}
	photos := &fakePhotos{}
	r := newRouter(&fakeStore{user: user}, photos)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/"+user.ID.String()+"/avatar", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if photos.presignedKey != user.AvatarKey {
		t.Errorf("presigned key = %q, want %q", photos.presignedKey, user.AvatarKey)
	}
	body := decodeBody(t, w)
	data, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %v", body.Data)
	}
	url, _ := data["url"].(string)
	if url == "" {
		t.Error("response has no url")
	}
}

func TestAvatarDownloadURLWithoutAvatar(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	r := newRouter(&fakeStore{user: user}, &fakePhotos{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/"+user.ID.String()+"/avatar", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAvatarDownloadURLUnknownUser(t *testing.T) {
	r := newRouter(&fakeStore{}, &fakePhotos{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/"+uuid.NewString()+"/avatar", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestApproveFlipsStatus(t *testing.T) {
	user := &models.User{ID: uuid.New(), ApproveStatus: models.ApproveStatusInProcess}
	store := &fakeStore{user: user}
	r := newRouter(store, nil)

	for _, tc := range []struct {
		approved bool
		want     models.ApproveStatus
	}{
		{true, models.ApproveStatusApproved},
		{false, models.ApproveStatusNotApproved},
	} {
		raw, _ := json.Marshal(ApproveRequest{Approved: tc.approved})
		req := httptest.NewRequest(http.MethodPost, "/users/"+user.ID.String()+"/approve", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("approved=%v: status = %d, want %d", tc.approved, w.Code, http.StatusOK)
		}
		if store.lastStatus != tc.want {
			t.Errorf("approved=%v: status = %s, want %s", tc.approved, store.lastStatus, tc.want)
		}
	}
}

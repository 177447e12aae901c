package roster

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/pkg/response"
)

func newLogRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	// nil repository: the bot guard and request validation must reject the
	// request before any persistence is touched.
	h := NewHandler(nil, nil, nil, zap.NewNop())
	r := gin.New()
	r.POST("/meetings/log", h.Log)
	return r
}

func postLog(t *testing.T, r *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/meetings/log", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogRejectsBotNick(t *testing.T) {
	r := newLogRouter(t)
	w := postLog(t, r, LogRequest{Room: "TeamSync", Nick: "Bot", Action: "enter"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var body response.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != ErrBotRejected.Error() {
		t.Errorf("error = %q, want %q", body.Error, ErrBotRejected.Error())
	}
}

func TestLogValidatesAction(t *testing.T) {
	r := newLogRouter(t)
	w := postLog(t, r, LogRequest{Room: "TeamSync", Nick: "Alice Smith", Action: "wave"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLogRequiresFields(t *testing.T) {
	r := newLogRouter(t)
	for _, body := range []LogRequest{
		{Nick: "Alice Smith", Action: "enter"},
		{Room: "TeamSync", Action: "enter"},
		{Room: "TeamSync", Nick: "Alice Smith"},
	} {
		if w := postLog(t, r, body); w.Code != http.StatusBadRequest {
			t.Errorf("body %+v: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

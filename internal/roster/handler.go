package roster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/pkg/response"
	"github.com/ezmeets/backend/pkg/storage"
)

// botNick is the automated probe identity used by the meeting bots; its
// connection events are rejected before any roster mutation.
const botNick = "Bot"

// PresenceBroadcaster pushes roster presence changes to subscribed
// dashboards.
type PresenceBroadcaster interface {
	BroadcastPresence(meetingID uuid.UUID, payload interface{})
}

// PhotoUploader stores cam-status snapshots.
type PhotoUploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// LogRequest is the body for POST /meetings/log, pushed by the conferencing
// backend (not by end users) on every room enter/leave.
type LogRequest struct {
	Room   string `json:"room" binding:"required"`
	Nick   string `json:"nick" binding:"required"`
	Action string `json:"action" binding:"required,oneof=enter leave"`
}

// PresenceEvent is the payload broadcast to presence dashboards.
type PresenceEvent struct {
	MeetingID uuid.UUID           `json:"meeting_id"`
	UserID    uuid.UUID           `json:"user_id"`
	FullName  string              `json:"full_name"`
	Status    models.OnlineStatus `json:"status"`
	At        time.Time           `json:"at"`
}

// Handler handles roster HTTP endpoints.
type Handler struct {
	repo      *Repository
	hub       PresenceBroadcaster
	photos    PhotoUploader
	logger    *zap.Logger
}

// NewHandler creates a roster handler. hub and photos may be nil when the
// presence stream or S3 are not configured.
func NewHandler(repo *Repository, hub PresenceBroadcaster, photos PhotoUploader, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, hub: hub, photos: photos, logger: logger}
}

// Log handles POST /meetings/log: applies one connection event to the
// roster. The bot guard runs before any lookup or mutation.
func (h *Handler) Log(c *gin.Context) {
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Nick == botNick {
		response.BadRequest(c, ErrBotRejected.Error())
		return
	}

	entry, err := h.repo.RecordEvent(c.Request.Context(), req.Room, req.Nick, models.ConnectionAction(req.Action), time.Now())
	if err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrUserNotFound):
			response.NotFound(c, err.Error())
		default:
			h.logger.Error("record connection event", zap.Error(err))
			response.Internal(c, "failed to record connection event")
		}
		return
	}

	if h.hub != nil {
		h.hub.BroadcastPresence(entry.MeetingID, PresenceEvent{
			MeetingID: entry.MeetingID,
			UserID:    entry.UserID,
			FullName:  entry.FullName,
			Status:    entry.OnlineStatus,
			At:        time.Now(),
		})
	}
	response.Created(c, entry)
}

// ListByMeeting handles GET /meetings/:id/roster (admin): every user who has
// ever connected, with presence history and cam statuses.
func (h *Handler) ListByMeeting(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	list, err := h.repo.ListByMeeting(c.Request.Context(), meetingID)
	if err != nil {
		h.logger.Error("list roster", zap.Error(err))
		response.Internal(c, "failed to list roster")
		return
	}
	response.OK(c, gin.H{"roster": list})
}

// AddCamStatus handles POST /meetings/:id/camstatus (admin): stores a camera
// snapshot photo in S3 and records it against the user's roster entry.
// Multipart form: file, user_id, status, json (detection payload).
func (h *Handler) AddCamStatus(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	userID, err := uuid.Parse(c.PostForm("user_id"))
	if err != nil {
		response.BadRequest(c, "invalid user_id")
		return
	}
	status := c.PostForm("status")
	if status == "" {
		response.BadRequest(c, "status is required")
		return
	}
	var data json.RawMessage
	if raw := c.PostForm("json"); raw != "" {
		if !json.Valid([]byte(raw)) {
			response.BadRequest(c, "invalid json payload")
			return
		}
		data = json.RawMessage(raw)
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if file.Size > storage.MaxPhotoSize {
		response.BadRequest(c, "file too large")
		return
	}
	if !storage.ValidatePhotoType(file.Filename) {
		response.BadRequest(c, "unsupported photo type")
		return
	}
	if h.photos == nil {
		response.Internal(c, "photo storage not configured")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer src.Close()

	key := storage.CamStatusKey(meetingID.String(), userID.String(), file.Filename)
	url, err := h.photos.Upload(c.Request.Context(), key, storage.ContentTypeForFilename(file.Filename), src)
	if err != nil {
		h.logger.Error("upload cam status photo", zap.Error(err))
		response.Internal(c, "failed to store photo")
		return
	}

	cs, err := h.repo.AddCamStatus(c.Request.Context(), meetingID, userID, key, url, status, data, time.Now())
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			response.NotFound(c, ErrEntryNotFound.Error())
			return
		}
		h.logger.Error("record cam status", zap.Error(err))
		response.Internal(c, "failed to record cam status")
		return
	}
	response.Created(c, cs)
}

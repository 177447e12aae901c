package meetings

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/jitsi"
	"github.com/ezmeets/backend/internal/middleware"
	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/pkg/response"
)

// MeetingStore is the persistence surface the handlers drive. *Repository
// implements it.
type MeetingStore interface {
	Create(ctx context.Context, m *models.Meeting, allowedUserIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	List(ctx context.Context, forUser *uuid.UUID) ([]models.Meeting, error)
	Update(ctx context.Context, m *models.Meeting, allowedUserIDs []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) ([]string, error)
	EndNow(ctx context.Context, id uuid.UUID, now time.Time) error
	IsUserOnlineInLiveMeeting(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)
}

// UserStore is the slice of the user repository the meeting handlers need.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PhotoCleaner removes stored photos after a meeting cascade delete has
// committed. Cleanup is best-effort; failures are logged, not surfaced.
type PhotoCleaner interface {
	DeleteObjects(ctx context.Context, keys []string)
}

// ScheduleRequest is the body for POST /meetings.
type ScheduleRequest struct {
	Name            string   `json:"name" binding:"required"`
	StartTime       string   `json:"start_time" binding:"required"`
	DurationMinutes int      `json:"duration_minutes" binding:"required,min=1"`
	Description     string   `json:"description"`
	AllowedUserIDs  []string `json:"allowed_user_ids"`
}

// Handler handles meeting HTTP endpoints.
type Handler struct {
	repo      MeetingStore
	users     UserStore
	tokens    *jitsi.TokenService
	photos    PhotoCleaner
	jitsiHost string
	logger    *zap.Logger
}

// NewHandler creates a meeting handler. photos may be nil when S3 is not
// configured.
func NewHandler(repo MeetingStore, users UserStore, tokens *jitsi.TokenService, photos PhotoCleaner, jitsiHost string, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, users: users, tokens: tokens, photos: photos, jitsiHost: jitsiHost, logger: logger}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseUserIDs(raw []string) []uuid.UUID {
	var ids []uuid.UUID
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Schedule handles POST /meetings (admin only). The scheduler is always
// added to the allow-list. Name uniqueness is enforced on both the raw name
// and its space-stripped room form.
func (h *Handler) Schedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startTime, err := parseTime(req.StartTime)
	if err != nil {
		response.BadRequest(c, "invalid start_time")
		return
	}
	room := models.RoomName(req.Name)
	if room == "" {
		response.BadRequest(c, "meeting name must not be blank")
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	m := &models.Meeting{
		Name:        req.Name,
		RoomName:    room,
		StartTime:   startTime,
		DurationMin: req.DurationMinutes,
		EndingTime:  startTime.Add(time.Duration(req.DurationMinutes) * time.Minute),
		Description: req.Description,
		CreatedBy:   userID,
	}
	allowed := append(parseUserIDs(req.AllowedUserIDs), userID)
	if err := h.repo.Create(c.Request.Context(), m, allowed); err != nil {
		if errors.Is(err, ErrNameTaken) {
			response.Conflict(c, ErrNameTaken.Error())
			return
		}
		h.logger.Error("schedule meeting", zap.Error(err))
		response.Internal(c, "failed to schedule meeting")
		return
	}
	m.AllowedUsers = nil
	for _, uid := range dedupe(allowed) {
		m.AllowedUsers = append(m.AllowedUsers, models.AllowedUser{MeetingID: m.ID, UserID: uid})
	}
	response.Created(c, m)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// List handles GET /meetings (admin). Superadmins see every meeting; others
// only meetings they are allow-listed for. ?phase=scheduled|live|ended
// filters by the phase computed at request time.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role := models.Role(c.MustGet(middleware.ContextUserRole).(string))

	var forUser *uuid.UUID
	if role != models.RoleSuperAdmin {
		forUser = &userID
	}
	list, err := h.repo.List(c.Request.Context(), forUser)
	if err != nil {
		h.logger.Error("list meetings", zap.Error(err))
		response.Internal(c, "failed to list meetings")
		return
	}
	response.OK(c, filterByPhase(list, c.Query("phase"), time.Now()))
}

// Mine handles GET /meetings/mine: meetings the calling user is allow-listed
// for, with the same phase filter.
func (h *Handler) Mine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.List(c.Request.Context(), &userID)
	if err != nil {
		h.logger.Error("list user meetings", zap.Error(err))
		response.Internal(c, "failed to list meetings")
		return
	}
	response.OK(c, filterByPhase(list, c.Query("phase"), time.Now()))
}

// filterByPhase keeps meetings whose phase at now matches the filter.
// Unknown or empty filter returns everything.
func filterByPhase(list []models.Meeting, phase string, now time.Time) []models.Meeting {
	want := Phase(phase)
	if want != PhaseScheduled && want != PhaseLive && want != PhaseEnded {
		return list
	}
	out := make([]models.Meeting, 0, len(list))
	for _, m := range list {
		if PhaseOf(&m, now) == want {
			out = append(out, m)
		}
	}
	return out
}

// GetByID handles GET /meetings/:id (admin).
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	m, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			response.NotFound(c, ErrMeetingNotFound.Error())
			return
		}
		h.logger.Error("get meeting", zap.Error(err))
		response.Internal(c, "failed to load meeting")
		return
	}
	response.OK(c, m)
}

// Update handles PUT /meetings/:id (admin). Updates are allowed only while
// the meeting is still Scheduled; Live and Ended meetings are immutable.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startTime, err := parseTime(req.StartTime)
	if err != nil {
		response.BadRequest(c, "invalid start_time")
		return
	}

	m, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			response.NotFound(c, ErrMeetingNotFound.Error())
			return
		}
		h.logger.Error("get meeting", zap.Error(err))
		response.Internal(c, "failed to load meeting")
		return
	}
	switch PhaseOf(m, time.Now()) {
	case PhaseLive:
		response.Conflict(c, ErrMeetingLive.Error())
		return
	case PhaseEnded:
		response.Conflict(c, ErrMeetingEnded.Error())
		return
	}

	room := models.RoomName(req.Name)
	if room == "" {
		response.BadRequest(c, "meeting name must not be blank")
		return
	}
	m.Name = req.Name
	m.RoomName = room
	m.StartTime = startTime
	m.DurationMin = req.DurationMinutes
	m.EndingTime = startTime.Add(time.Duration(req.DurationMinutes) * time.Minute)
	m.Description = req.Description

	allowed := append(parseUserIDs(req.AllowedUserIDs), m.CreatedBy)
	if err := h.repo.Update(c.Request.Context(), m, allowed); err != nil {
		if errors.Is(err, ErrNameTaken) {
			response.Conflict(c, ErrNameTaken.Error())
			return
		}
		h.logger.Error("update meeting", zap.Error(err))
		response.Internal(c, "failed to update meeting")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		// The update committed; answer with the fields we wrote.
		h.logger.Warn("reload updated meeting", zap.Error(err))
		response.OK(c, m)
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /meetings/:id (admin). Deletion is allowed only
// while Scheduled and cascades to the allow-list, roster, connection events
// and cam-status photos as one transaction.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	m, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			response.NotFound(c, ErrMeetingNotFound.Error())
			return
		}
		h.logger.Error("get meeting", zap.Error(err))
		response.Internal(c, "failed to load meeting")
		return
	}
	switch PhaseOf(m, time.Now()) {
	case PhaseLive:
		response.Conflict(c, "the meeting is live")
		return
	case PhaseEnded:
		response.Conflict(c, ErrMeetingEnded.Error())
		return
	}

	photoKeys, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete meeting", zap.Error(err))
		response.Internal(c, "failed to delete meeting")
		return
	}
	if h.photos != nil && len(photoKeys) > 0 {
		h.photos.DeleteObjects(c.Request.Context(), photoKeys)
	}
	response.NoContent(c)
}

// EndNow handles POST /meetings/:id/end (admin): sets ending_time to now,
// collapsing Live to Ended immediately. One-way.
func (h *Handler) EndNow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	if err := h.repo.EndNow(c.Request.Context(), id, time.Now()); err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			response.NotFound(c, ErrMeetingNotFound.Error())
			return
		}
		h.logger.Error("end meeting", zap.Error(err))
		response.Internal(c, "failed to end meeting")
		return
	}
	response.OK(c, gin.H{"meeting_id": id, "ended": true})
}

// JoinResponse is the payload for a successful join.
type JoinResponse struct {
	URL       string `json:"url"`
	Room      string `json:"room"`
	Moderator bool   `json:"moderator"`
}

// Join handles POST /meetings/:id/join: runs the admission checks and, on
// allow, mints a join token bound to the meeting's remaining duration.
func (h *Handler) Join(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	ctx := c.Request.Context()
	now := time.Now()

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	// Role snapshot: read once here, never re-queried during evaluation.
	role := models.Role(c.MustGet(middleware.ContextUserRole).(string))

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	m, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			response.NotFound(c, ErrMeetingNotFound.Error())
			return
		}
		h.logger.Error("get meeting", zap.Error(err))
		response.Internal(c, "failed to load meeting")
		return
	}
	online, err := h.repo.IsUserOnlineInLiveMeeting(ctx, userID, now)
	if err != nil {
		h.logger.Error("presence scan", zap.Error(err))
		response.Internal(c, "failed to check presence")
		return
	}

	adm, err := EvaluateJoin(JoinRequest{
		Meeting:             m,
		User:                user,
		Role:                role,
		OnlineInLiveMeeting: online,
		Now:                 now,
	})
	if err != nil {
		h.denyJoin(c, err)
		return
	}

	token, err := h.tokens.Issue(jitsi.Identity{
		ID:     user.ID.String(),
		Name:   user.FullName,
		Email:  user.Email,
		Avatar: user.AvatarURL,
	}, adm.Room, adm.Moderator, adm.Remaining, now)
	if err != nil {
		h.logger.Error("sign join token", zap.Error(err))
		response.Internal(c, "failed to sign join token")
		return
	}
	response.OK(c, JoinResponse{
		URL:       jitsi.JoinURL(h.jitsiHost, adm.Room, token),
		Room:      adm.Room,
		Moderator: adm.Moderator,
	})
}

// denyJoin maps admission errors to HTTP statuses, always carrying the
// specific reason.
func (h *Handler) denyJoin(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMeetingNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrNotStarted), errors.Is(err, ErrEnded), errors.Is(err, ErrAlreadyInMeeting):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNotApproved), errors.Is(err, ErrNotAllowed):
		response.Forbidden(c, err.Error())
	default:
		h.logger.Error("join evaluation", zap.Error(err))
		response.Internal(c, "failed to evaluate join")
	}
}

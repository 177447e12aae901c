// Package users exposes account administration: listing, approval and
// avatar upload with asynchronous face verification.
package users

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/auth"
	"github.com/ezmeets/backend/internal/middleware"
	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/pkg/queue"
	"github.com/ezmeets/backend/pkg/response"
	"github.com/ezmeets/backend/pkg/storage"
)

// Store is the persistence surface the handlers drive. *auth.Repository
// implements it.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	SetApproveStatus(ctx context.Context, id uuid.UUID, status models.ApproveStatus) error
	SetAvatar(ctx context.Context, id uuid.UUID, key, url string) error
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error
	Delete(ctx context.Context, id uuid.UUID) (string, error)
}

// PhotoStore holds avatar objects. *storage.S3 implements it.
type PhotoStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	PresignDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObjects(ctx context.Context, keys []string)
}

// ApproveRequest is the body for POST /users/:id/approve.
type ApproveRequest struct {
	Approved bool `json:"approved"`
}

// SetRoleRequest is the body for POST /users/:id/role (superadmin only).
type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin superadmin"`
}

// Handler handles user administration endpoints.
type Handler struct {
	repo   Store
	photos PhotoStore
	jobs   *queue.Queue
	logger *zap.Logger
}

// NewHandler creates a users handler. photos and jobs may be nil when S3 or
// Redis are not configured; avatar uploads then fail fast.
func NewHandler(repo Store, photos PhotoStore, jobs *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, photos: photos, jobs: jobs, logger: logger}
}

// List handles GET /users (admin): all platform accounts, e.g. for building
// a meeting allow-list.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// Approve handles POST /users/:id/approve (admin): flips the account-level
// approval that gates joining any meeting.
func (h *Handler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status := models.ApproveStatusNotApproved
	if req.Approved {
		status = models.ApproveStatusApproved
	}
	if err := h.repo.SetApproveStatus(c.Request.Context(), id, status); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(c, auth.ErrUserNotFound.Error())
			return
		}
		h.logger.Error("set approve status", zap.Error(err))
		response.Internal(c, "failed to update approve status")
		return
	}
	response.OK(c, gin.H{"user_id": id, "approve_status": status})
}

// SetRole handles POST /users/:id/role (superadmin).
func (h *Handler) SetRole(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetRole(c.Request.Context(), id, models.Role(req.Role)); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(c, auth.ErrUserNotFound.Error())
			return
		}
		h.logger.Error("set role", zap.Error(err))
		response.Internal(c, "failed to update role")
		return
	}
	response.OK(c, gin.H{"user_id": id, "role": req.Role})
}

// ChangeAvatar handles POST /users/avatar: the caller uploads a new avatar
// photo. The account drops to InProcess and a verification job is enqueued;
// the worker restores Approved once the external service confirms the face
// matches.
func (h *Handler) ChangeAvatar(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

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

	key := storage.AvatarKey(userID.String(), file.Filename)
	url, err := h.photos.Upload(c.Request.Context(), key, storage.ContentTypeForFilename(file.Filename), src)
	if err != nil {
		h.logger.Error("upload avatar", zap.Error(err))
		response.Internal(c, "failed to store avatar")
		return
	}

	if err := h.repo.SetAvatar(c.Request.Context(), userID, key, url); err != nil {
		h.logger.Error("set avatar", zap.Error(err))
		response.Internal(c, "failed to update avatar")
		return
	}

	if h.jobs != nil {
		if err := h.jobs.EnqueueAvatarVerification(c.Request.Context(), queue.AvatarVerificationPayload{
			UserID:    userID,
			AvatarURL: url,
		}); err != nil {
			// Upload succeeded; verification stays pending for manual approval.
			h.logger.Warn("enqueue verification", zap.Error(err))
		}
	}
	response.OK(c, gin.H{"avatar_url": url, "approve_status": models.ApproveStatusInProcess})
}

// AvatarDownloadURL handles GET /users/:id/avatar (admin): a short-lived
// presigned link to the stored avatar object. The photos bucket is private,
// so the stored object URL alone does not grant access.
func (h *Handler) AvatarDownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(c, auth.ErrUserNotFound.Error())
			return
		}
		h.logger.Error("get user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user.AvatarKey == "" {
		response.NotFound(c, "no avatar uploaded")
		return
	}
	if h.photos == nil {
		response.Internal(c, "photo storage not configured")
		return
	}
	url, err := h.photos.PresignDownloadURL(c.Request.Context(), user.AvatarKey)
	if err != nil {
		h.logger.Error("presign avatar", zap.Error(err))
		response.Internal(c, "failed to presign avatar")
		return
	}
	response.OK(c, gin.H{"user_id": id, "url": url})
}

// Delete handles DELETE /users/:id (superadmin). Removes the account and
// its stored avatar.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	avatarKey, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(c, auth.ErrUserNotFound.Error())
			return
		}
		h.logger.Error("delete user", zap.Error(err))
		response.Internal(c, "failed to delete user")
		return
	}
	if h.photos != nil && avatarKey != "" {
		h.photos.DeleteObjects(c.Request.Context(), []string{avatarKey})
	}
	response.NoContent(c)
}

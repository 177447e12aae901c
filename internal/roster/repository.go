package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ezmeets/backend/internal/models"
)

var (
	// ErrBotRejected guards the webhook against the automated probe
	// identity; bot connections are never recorded.
	ErrBotRejected = errors.New("bot connections are not logged")
	// ErrRoomNotFound means no meeting matched the webhook's room name.
	ErrRoomNotFound = errors.New("no meeting for that room")
	// ErrUserNotFound means no account matched the webhook's nick.
	ErrUserNotFound = errors.New("no user for that nick")
	// ErrEntryNotFound means no roster entry exists for the pair.
	ErrEntryNotFound = errors.New("roster entry not found")
)

// Repository handles roster persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a roster repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEvent applies one connection event: look up the meeting by room name
// and the user by nick, get-or-create the roster entry (snapshotting name,
// role and avatar at first connection), append the event and update the
// cached online status. The whole mutation is one transaction, and the entry
// row is locked for the duration so concurrent duplicate webhooks serialize
// instead of losing updates.
func (r *Repository) RecordEvent(ctx context.Context, roomName, nick string, action models.ConnectionAction, now time.Time) (*models.RosterEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var meetingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM meetings WHERE room_name = $1`, roomName).Scan(&meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("select meeting by room: %w", err)
	}

	var u models.User
	err = tx.QueryRow(ctx,
		`SELECT id, full_name, username, role, COALESCE(avatar_url,'') FROM users WHERE full_name = $1`, nick).
		Scan(&u.ID, &u.FullName, &u.Username, &u.Role, &u.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user by nick: %w", err)
	}

	entry, err := lockEntry(ctx, tx, meetingID, u.ID)
	if errors.Is(err, ErrEntryNotFound) {
		// First connection for this pair: create the entry with snapshots.
		// ON CONFLICT covers the race with a concurrent first event.
		_, err = tx.Exec(ctx,
			`INSERT INTO roster_entries (meeting_id, user_id, full_name, username, role, avatar_url)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (meeting_id, user_id) DO NOTHING`,
			meetingID, u.ID, u.FullName, u.Username, string(u.Role), u.AvatarURL)
		if err != nil {
			return nil, fmt.Errorf("insert roster entry: %w", err)
		}
		entry, err = lockEntry(ctx, tx, meetingID, u.ID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO connection_events (roster_entry_id, at, action) VALUES ($1, $2, $3)`,
		entry.ID, now, string(action)); err != nil {
		return nil, fmt.Errorf("insert connection event: %w", err)
	}

	entry.OnlineStatus = models.StatusForAction(action)
	if _, err := tx.Exec(ctx,
		`UPDATE roster_entries SET online_status = $2 WHERE id = $1`,
		entry.ID, string(entry.OnlineStatus)); err != nil {
		return nil, fmt.Errorf("update online status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

func lockEntry(ctx context.Context, tx pgx.Tx, meetingID, userID uuid.UUID) (*models.RosterEntry, error) {
	var e models.RosterEntry
	err := tx.QueryRow(ctx,
		`SELECT id, meeting_id, user_id, full_name, username, role, COALESCE(avatar_url,''), online_status, created_at
		 FROM roster_entries WHERE meeting_id = $1 AND user_id = $2 FOR UPDATE`,
		meetingID, userID).
		Scan(&e.ID, &e.MeetingID, &e.UserID, &e.FullName, &e.Username, &e.Role, &e.AvatarURL, &e.OnlineStatus, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("lock roster entry: %w", err)
	}
	return &e, nil
}

// ListByMeeting returns the meeting's roster entries with their connection
// events and cam statuses.
func (r *Repository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.RosterEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, meeting_id, user_id, full_name, username, role, COALESCE(avatar_url,''), online_status, created_at
		 FROM roster_entries WHERE meeting_id = $1 ORDER BY created_at`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("select roster: %w", err)
	}
	defer rows.Close()

	var list []models.RosterEntry
	for rows.Next() {
		var e models.RosterEntry
		if err := rows.Scan(&e.ID, &e.MeetingID, &e.UserID, &e.FullName, &e.Username, &e.Role,
			&e.AvatarURL, &e.OnlineStatus, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		if list[i].ConnectionEvents, err = r.listEvents(ctx, list[i].ID); err != nil {
			return nil, err
		}
		if list[i].CamStatuses, err = r.listCamStatuses(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *Repository) listEvents(ctx context.Context, entryID uuid.UUID) ([]models.ConnectionEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, roster_entry_id, at, action FROM connection_events
		 WHERE roster_entry_id = $1 ORDER BY at, id`, entryID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()
	var list []models.ConnectionEvent
	for rows.Next() {
		var ev models.ConnectionEvent
		if err := rows.Scan(&ev.ID, &ev.RosterEntryID, &ev.At, &ev.Action); err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

func (r *Repository) listCamStatuses(ctx context.Context, entryID uuid.UUID) ([]models.CamStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, roster_entry_id, photo_key, photo_url, status, data, at FROM cam_statuses
		 WHERE roster_entry_id = $1 ORDER BY at`, entryID)
	if err != nil {
		return nil, fmt.Errorf("select cam statuses: %w", err)
	}
	defer rows.Close()
	var list []models.CamStatus
	for rows.Next() {
		var cs models.CamStatus
		if err := rows.Scan(&cs.ID, &cs.RosterEntryID, &cs.PhotoKey, &cs.PhotoURL, &cs.Status, &cs.Data, &cs.At); err != nil {
			return nil, err
		}
		list = append(list, cs)
	}
	return list, rows.Err()
}

// AddCamStatus records a camera snapshot against the (meeting, user) roster
// entry. The entry must already exist: snapshots only make sense for users
// who have connected.
func (r *Repository) AddCamStatus(ctx context.Context, meetingID, userID uuid.UUID, photoKey, photoURL, status string, data json.RawMessage, now time.Time) (*models.CamStatus, error) {
	var entryID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM roster_entries WHERE meeting_id = $1 AND user_id = $2`,
		meetingID, userID).Scan(&entryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("select roster entry: %w", err)
	}

	cs := &models.CamStatus{
		RosterEntryID: entryID,
		PhotoKey:      photoKey,
		PhotoURL:      photoURL,
		Status:        status,
		Data:          data,
		At:            now,
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO cam_statuses (roster_entry_id, photo_key, photo_url, status, data, at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		entryID, photoKey, photoURL, status, data, now).Scan(&cs.ID)
	if err != nil {
		return nil, fmt.Errorf("insert cam status: %w", err)
	}
	return cs, nil
}

package meetings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ezmeets/backend/internal/models"
)

const uniqueViolation = "23505"

// Repository handles meeting persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meeting repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const meetingColumns = `id, name, room_name, start_time, duration_minutes, ending_time, description, created_by, created_at, updated_at`

func scanMeeting(row pgx.Row, m *models.Meeting) error {
	return row.Scan(&m.ID, &m.Name, &m.RoomName, &m.StartTime, &m.DurationMin, &m.EndingTime,
		&m.Description, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
}

// Create inserts a meeting and its de-duplicated allow-list in one
// transaction. A duplicate name or room name maps to ErrNameTaken.
func (r *Repository) Create(ctx context.Context, m *models.Meeting, allowedUserIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO meetings (name, room_name, start_time, duration_minutes, ending_time, description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, q, m.Name, m.RoomName, m.StartTime, m.DurationMin, m.EndingTime, m.Description, m.CreatedBy).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("insert meeting: %w", err)
	}

	if err := insertAllowedUsers(ctx, tx, m.ID, allowedUserIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertAllowedUsers writes distinct (meeting, user) pairs; duplicates in
// the input collapse via ON CONFLICT.
func insertAllowedUsers(ctx context.Context, tx pgx.Tx, meetingID uuid.UUID, userIDs []uuid.UUID) error {
	const q = `INSERT INTO allowed_users (meeting_id, user_id) VALUES ($1, $2)
		ON CONFLICT (meeting_id, user_id) DO NOTHING`
	for _, uid := range userIDs {
		if _, err := tx.Exec(ctx, q, meetingID, uid); err != nil {
			return fmt.Errorf("insert allowed user: %w", err)
		}
	}
	return nil
}

// GetByID returns a meeting with its allow-list, or ErrMeetingNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	var m models.Meeting
	err := scanMeeting(r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id), &m)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("select meeting: %w", err)
	}
	if m.AllowedUsers, err = r.listAllowedUsers(ctx, m.ID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) listAllowedUsers(ctx context.Context, meetingID uuid.UUID) ([]models.AllowedUser, error) {
	rows, err := r.pool.Query(ctx, `SELECT meeting_id, user_id FROM allowed_users WHERE meeting_id = $1`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("select allowed users: %w", err)
	}
	defer rows.Close()
	var list []models.AllowedUser
	for rows.Next() {
		var au models.AllowedUser
		if err := rows.Scan(&au.MeetingID, &au.UserID); err != nil {
			return nil, err
		}
		list = append(list, au)
	}
	return list, rows.Err()
}

// List returns all meetings with their allow-lists. When forUser is set,
// only meetings that user is allow-listed for are returned. Phase filtering
// is the caller's job: it depends on the current time, not on stored state.
func (r *Repository) List(ctx context.Context, forUser *uuid.UUID) ([]models.Meeting, error) {
	q := `SELECT ` + meetingColumns + ` FROM meetings`
	var args []interface{}
	if forUser != nil {
		q += ` WHERE EXISTS (SELECT 1 FROM allowed_users au WHERE au.meeting_id = meetings.id AND au.user_id = $1)`
		args = append(args, *forUser)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY start_time DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("select meetings: %w", err)
	}
	defer rows.Close()

	var list []models.Meeting
	for rows.Next() {
		var m models.Meeting
		if err := scanMeeting(rows, &m); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].AllowedUsers, err = r.listAllowedUsers(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Update replaces the mutable fields and the whole allow-list in one
// transaction. Callers must have verified the meeting is still Scheduled.
func (r *Repository) Update(ctx context.Context, m *models.Meeting, allowedUserIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `UPDATE meetings SET name = $1, room_name = $2, start_time = $3, duration_minutes = $4,
		ending_time = $5, description = $6, updated_at = NOW() WHERE id = $7`
	if _, err := tx.Exec(ctx, q, m.Name, m.RoomName, m.StartTime, m.DurationMin, m.EndingTime, m.Description, m.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("update meeting: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM allowed_users WHERE meeting_id = $1`, m.ID); err != nil {
		return fmt.Errorf("clear allowed users: %w", err)
	}
	if err := insertAllowedUsers(ctx, tx, m.ID, allowedUserIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete removes the meeting and everything it owns (connection events,
// cam statuses, roster entries, allow-list) in a single transaction: either
// the whole cascade lands or none of it does. Returns the S3 keys of the
// deleted cam-status photos so the caller can clean up storage after commit.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT cs.photo_key FROM cam_statuses cs
		 JOIN roster_entries re ON re.id = cs.roster_entry_id
		 WHERE re.meeting_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("select photo keys: %w", err)
	}
	var photoKeys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, err
		}
		photoKeys = append(photoKeys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps := []string{
		`DELETE FROM connection_events WHERE roster_entry_id IN (SELECT id FROM roster_entries WHERE meeting_id = $1)`,
		`DELETE FROM cam_statuses WHERE roster_entry_id IN (SELECT id FROM roster_entries WHERE meeting_id = $1)`,
		`DELETE FROM roster_entries WHERE meeting_id = $1`,
		`DELETE FROM allowed_users WHERE meeting_id = $1`,
	}
	for _, q := range steps {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return nil, fmt.Errorf("cascade delete: %w", err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMeetingNotFound
	}
	return photoKeys, tx.Commit(ctx)
}

// EndNow collapses the meeting's remaining duration to zero by setting
// ending_time to the given instant. One-way: Live becomes Ended immediately.
func (r *Repository) EndNow(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE meetings SET ending_time = $2, updated_at = NOW() WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

// IsUserOnlineInLiveMeeting reports whether the user has an Online roster
// entry in any meeting that is live at the given instant. This is the
// presence fact behind the AlreadyInMeeting denial; the scan deliberately
// includes the meeting being joined.
func (r *Repository) IsUserOnlineInLiveMeeting(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM roster_entries re
		JOIN meetings m ON m.id = re.meeting_id
		WHERE re.user_id = $1
		  AND re.online_status = 'Online'
		  AND m.start_time <= $2 AND m.ending_time > $2)`
	var online bool
	if err := r.pool.QueryRow(ctx, q, userID, now).Scan(&online); err != nil {
		return false, fmt.Errorf("presence scan: %w", err)
	}
	return online, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

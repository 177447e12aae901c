package roster

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/pkg/database"
)

// testPool connects to the database named by TEST_DATABASE_URL and runs the
// migrations. Tests that need it are skipped when the variable is unset, so
// the suite stays green without infrastructure.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// seedMeeting creates a user and a meeting that user can connect to, with
// names unique per run, and registers cleanup in reverse dependency order.
func seedMeeting(t *testing.T, pool *pgxpool.Pool) (roomName, nick string) {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	nick = "Roster Tester " + suffix
	roomName = "RosterTest" + suffix

	var userID uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, full_name, username)
		 VALUES ($1, 'x', $2, $3) RETURNING id`,
		"roster-"+suffix+"@example.org", nick, "roster-"+suffix).Scan(&userID)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	start := time.Now().Add(-5 * time.Minute)
	var meetingID uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO meetings (name, room_name, start_time, duration_minutes, ending_time, created_by)
		 VALUES ($1, $2, $3, 30, $4, $5) RETURNING id`,
		"Roster Test "+suffix, roomName, start, start.Add(30*time.Minute), userID).Scan(&meetingID)
	if err != nil {
		t.Fatalf("seed meeting: %v", err)
	}

	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM connection_events WHERE roster_entry_id IN
			(SELECT id FROM roster_entries WHERE meeting_id = $1)`, meetingID)
		pool.Exec(ctx, `DELETE FROM roster_entries WHERE meeting_id = $1`, meetingID)
		pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, meetingID)
		pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})
	return roomName, nick
}

func countEvents(t *testing.T, pool *pgxpool.Pool, entryID uuid.UUID) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM connection_events WHERE roster_entry_id = $1`, entryID).Scan(&n)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestRecordEventDuplicatePostsKeepOneEntry(t *testing.T) {
	pool := testPool(t)
	roomName, nick := seedMeeting(t, pool)
	repo := NewRepository(pool)
	ctx := context.Background()

	first, err := repo.RecordEvent(ctx, roomName, nick, models.ActionEnter, time.Now())
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if first.OnlineStatus != models.StatusOnline {
		t.Errorf("status after enter = %s, want %s", first.OnlineStatus, models.StatusOnline)
	}

	// The duplicate post must reuse the entry and append a second event.
	second, err := repo.RecordEvent(ctx, roomName, nick, models.ActionEnter, time.Now())
	if err != nil {
		t.Fatalf("second enter: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate enter created entry %s, want reuse of %s", second.ID, first.ID)
	}
	if n := countEvents(t, pool, first.ID); n != 2 {
		t.Errorf("events after duplicate enter = %d, want 2", n)
	}

	third, err := repo.RecordEvent(ctx, roomName, nick, models.ActionLeave, time.Now())
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if third.ID != first.ID {
		t.Fatalf("leave created entry %s, want reuse of %s", third.ID, first.ID)
	}
	if third.OnlineStatus != models.StatusOffline {
		t.Errorf("status after leave = %s, want %s", third.OnlineStatus, models.StatusOffline)
	}
	if n := countEvents(t, pool, first.ID); n != 3 {
		t.Errorf("events after leave = %d, want 3", n)
	}
}

func TestRecordEventUnknownRoomAndNick(t *testing.T) {
	pool := testPool(t)
	roomName, _ := seedMeeting(t, pool)
	repo := NewRepository(pool)
	ctx := context.Background()

	if _, err := repo.RecordEvent(ctx, "NoSuchRoom", "whoever", models.ActionEnter, time.Now()); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room: err = %v, want %v", err, ErrRoomNotFound)
	}
	if _, err := repo.RecordEvent(ctx, roomName, "No Such Person", models.ActionEnter, time.Now()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown nick: err = %v, want %v", err, ErrUserNotFound)
	}
}

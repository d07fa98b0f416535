package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStakeAPI/internal/dates"
	"habitStakeAPI/services"
	"habitStakeAPI/tests/helpers"
)

// insertChallenge seeds a challenge row directly so tests can backdate
// the window, which the create path forbids.
func insertChallenge(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, status string, start time.Time, durationDays int) uuid.UUID {
	t.Helper()

	paymentStatus := "succeeded"
	if status == "pending" {
		paymentStatus = "pending"
	}

	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
	INSERT INTO challenges (id, user_id, title, description, duration_days, stake_amount,
		start_date, end_date, status, payment_status)
	VALUES ($1, $2, 'Daily stretching', '', $3, 20, $4, $5, $6, $7)`,
		id, userID, durationDays, start, dates.AddDays(start, durationDays-1), status, paymentStatus)
	require.NoError(t, err)
	return id
}

func insertCheckin(t *testing.T, pool *pgxpool.Pool, challengeID, userID uuid.UUID, date time.Time) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
	INSERT INTO checkins (id, challenge_id, user_id, checkin_date, notes)
	VALUES ($1, $2, $3, $4, '')`, uuid.New(), challengeID, userID, date)
	require.NoError(t, err)
}

func challengeStatus(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) string {
	t.Helper()

	var status string
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT status FROM challenges WHERE id = $1`, id).Scan(&status))
	return status
}

func TestSweepFailsChallengeWithMissedDay(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	challengeService := services.NewChallengeService(pool, nil)

	clerkID := "user_sweep_miss_" + time.Now().Format("20060102150405")
	userID := helpers.CreateTestUser(t, pool, clerkID)

	// Started three days ago; day 0 and day 2 checked, day 1 skipped.
	today := dates.Today(time.UTC)
	start := dates.AddDays(today, -3)
	id := insertChallenge(t, pool, userID, "active", start, 7)
	insertCheckin(t, pool, id, userID, start)
	insertCheckin(t, pool, id, userID, dates.AddDays(start, 2))

	require.NoError(t, challengeService.SweepMissedDays(context.Background()))

	assert.Equal(t, "failed", challengeStatus(t, pool, id))
}

func TestSweepCompletesFullLedgerBeforeCheckingMisses(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	challengeService := services.NewChallengeService(pool, nil)

	clerkID := "user_sweep_done_" + time.Now().Format("20060102150405")
	userID := helpers.CreateTestUser(t, pool, clerkID)

	// Every window day checked, but the completion transition was lost
	// and the window has long elapsed. The sweep must resolve this to
	// completed, never failed.
	today := dates.Today(time.UTC)
	start := dates.AddDays(today, -10)
	id := insertChallenge(t, pool, userID, "active", start, 7)
	for i := 0; i < 7; i++ {
		insertCheckin(t, pool, id, userID, dates.AddDays(start, i))
	}

	require.NoError(t, challengeService.SweepMissedDays(context.Background()))

	assert.Equal(t, "completed", challengeStatus(t, pool, id))
}

func TestSweepLeavesOpenAndPendingChallengesAlone(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	challengeService := services.NewChallengeService(pool, nil)

	today := dates.Today(time.UTC)

	// Active with every elapsed day covered; today itself is still open.
	onTrackClerkID := "user_sweep_ok_" + time.Now().Format("20060102150405")
	onTrackUserID := helpers.CreateTestUser(t, pool, onTrackClerkID)
	start := dates.AddDays(today, -2)
	onTrack := insertChallenge(t, pool, onTrackUserID, "active", start, 7)
	insertCheckin(t, pool, onTrack, onTrackUserID, start)
	insertCheckin(t, pool, onTrack, onTrackUserID, dates.AddDays(start, 1))

	// Pending with elapsed unchecked days; payment never succeeded, so
	// the sweep has no business touching it.
	pendingClerkID := "user_sweep_pend_" + time.Now().Format("20060102150405")
	pendingUserID := helpers.CreateTestUser(t, pool, pendingClerkID)
	pending := insertChallenge(t, pool, pendingUserID, "pending", dates.AddDays(today, -3), 7)

	require.NoError(t, challengeService.SweepMissedDays(context.Background()))

	assert.Equal(t, "active", challengeStatus(t, pool, onTrack))
	assert.Equal(t, "pending", challengeStatus(t, pool, pending))
}

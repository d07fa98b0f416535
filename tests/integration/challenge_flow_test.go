package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStakeAPI/internal/apperror"
	"habitStakeAPI/internal/dates"
	"habitStakeAPI/internal/types/challenge"
	"habitStakeAPI/services"
	"habitStakeAPI/tests/helpers"
)

// TestChallengeLifecycle walks a challenge from creation through payment,
// daily check-ins and completion against a real database.
func TestChallengeLifecycle(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)

	clerkID := "user_lifecycle_" + time.Now().Format("20060102150405")
	userID := helpers.CreateTestUser(t, pool, clerkID)

	ctx := context.Background()
	today := dates.Today(time.UTC)

	// Step 1: create a challenge. It starts pending, awaiting payment.
	created, err := challengeService.CreateChallenge(ctx, clerkID, &challenge.CreateRequest{
		Title:        "Morning run",
		Description:  "Run every day before work",
		DurationDays: 7,
		StakeAmount:  25,
		StartDate:    dates.Format(today),
	})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusPending, created.Status)
	assert.Equal(t, 7, created.RemainingDays)
	assert.True(t, created.EndDate.Equal(dates.AddDays(today, 6)))

	// Step 2: a second open challenge is refused.
	_, err = challengeService.CreateChallenge(ctx, clerkID, &challenge.CreateRequest{
		Title:        "Second habit",
		DurationDays: 7,
		StakeAmount:  15,
		StartDate:    dates.Format(today),
	})
	var conflict *apperror.ConflictError
	require.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)

	// Step 3: check-ins are rejected while the stake is unpaid.
	_, err = challengeService.SubmitCheckin(ctx, clerkID, created.ID.String(), "")
	var invalidState *apperror.InvalidStateError
	require.True(t, errors.As(err, &invalidState), "expected InvalidStateError, got %v", err)

	// Step 4: attach a payment intent and deliver the success event.
	intentID := "pi_test_" + time.Now().Format("20060102150405")
	_, err = pool.Exec(ctx,
		`UPDATE challenges SET stripe_payment_intent_id = $1 WHERE id = $2`, intentID, created.ID)
	require.NoError(t, err)

	require.NoError(t, challengeService.HandlePaymentSucceeded(ctx, intentID))

	// The refused duplicate from Step 2 inserted nothing, so the user
	// owns exactly one challenge.
	list, err := challengeService.ListChallenges(ctx, clerkID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	active := list[0]
	assert.Equal(t, created.ID, active.ID)
	assert.Equal(t, challenge.StatusActive, active.Status)
	assert.Equal(t, challenge.PaymentSucceeded, active.PaymentStatus)

	// Step 5: a redelivered success event is acked without side effects.
	require.NoError(t, challengeService.HandlePaymentSucceeded(ctx, intentID))

	// Step 6: first check-in of the window.
	result, err := challengeService.SubmitCheckin(ctx, clerkID, created.ID.String(), "felt great")
	require.NoError(t, err)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.False(t, result.IsComplete)

	// Step 7: the same calendar day cannot be checked in twice.
	_, err = challengeService.SubmitCheckin(ctx, clerkID, created.ID.String(), "")
	var duplicate *apperror.DuplicateError
	require.True(t, errors.As(err, &duplicate), "expected DuplicateError, got %v", err)

	// Step 8: fill the remaining days directly, then let the list read
	// reconcile the completion transition.
	for i := 1; i < 7; i++ {
		_, err = pool.Exec(ctx, `
		INSERT INTO checkins (id, challenge_id, user_id, checkin_date, notes)
		VALUES ($1, $2, $3, $4, '')`,
			uuid.New(), created.ID, userID, dates.AddDays(today, i))
		require.NoError(t, err)
	}

	list, err = challengeService.ListChallenges(ctx, clerkID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	done := list[0]
	assert.Equal(t, challenge.StatusCompleted, done.Status)
	assert.Equal(t, 7, done.CurrentStreak)
	assert.Equal(t, 0, done.RemainingDays)

	// Step 9: a completed challenge accepts no further check-ins or
	// cancellations.
	_, err = challengeService.SubmitCheckin(ctx, clerkID, created.ID.String(), "")
	require.True(t, errors.As(err, &invalidState), "expected InvalidStateError, got %v", err)

	_, err = challengeService.CancelChallenge(ctx, clerkID, created.ID.String())
	require.True(t, errors.As(err, &invalidState), "expected InvalidStateError, got %v", err)

	// The payment notification was recorded along the way.
	count, err := notificationService.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestCancelPendingChallengeFreesSlot(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	challengeService := services.NewChallengeService(pool, nil)

	clerkID := "user_cancel_" + time.Now().Format("20060102150405")
	helpers.CreateTestUser(t, pool, clerkID)

	ctx := context.Background()
	today := dates.Today(time.UTC)

	created, err := challengeService.CreateChallenge(ctx, clerkID, &challenge.CreateRequest{
		Title:        "Read 20 pages",
		DurationDays: 14,
		StakeAmount:  40,
		StartDate:    dates.Format(today),
	})
	require.NoError(t, err)

	// An uncaptured intent on a pending challenge must be handed back for
	// voiding at the processor.
	intentID := fmt.Sprintf("pi_cancel_%d", time.Now().UnixNano())
	_, err = pool.Exec(ctx,
		`UPDATE challenges SET stripe_payment_intent_id = $1 WHERE id = $2`, intentID, created.ID)
	require.NoError(t, err)

	toVoid, err := challengeService.CancelChallenge(ctx, clerkID, created.ID.String())
	require.NoError(t, err)
	require.NotNil(t, toVoid)
	assert.Equal(t, intentID, *toVoid)

	// With the open slot freed, a new challenge can be created.
	_, err = challengeService.CreateChallenge(ctx, clerkID, &challenge.CreateRequest{
		Title:        "Read 20 pages, take two",
		DurationDays: 7,
		StakeAmount:  15,
		StartDate:    dates.Format(today),
	})
	require.NoError(t, err)
}

func TestPaymentFailureKeepsChallengePending(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	challengeService := services.NewChallengeService(pool, nil)

	clerkID := "user_payfail_" + time.Now().Format("20060102150405")
	helpers.CreateTestUser(t, pool, clerkID)

	ctx := context.Background()
	today := dates.Today(time.UTC)

	created, err := challengeService.CreateChallenge(ctx, clerkID, &challenge.CreateRequest{
		Title:        "No late-night snacks",
		DurationDays: 30,
		StakeAmount:  100,
		StartDate:    dates.Format(today),
	})
	require.NoError(t, err)

	intentID := fmt.Sprintf("pi_fail_%d", time.Now().UnixNano())
	_, err = pool.Exec(ctx,
		`UPDATE challenges SET stripe_payment_intent_id = $1 WHERE id = $2`, intentID, created.ID)
	require.NoError(t, err)

	require.NoError(t, challengeService.HandlePaymentFailed(ctx, intentID))

	var status, paymentStatus string
	err = pool.QueryRow(ctx,
		`SELECT status, payment_status FROM challenges WHERE id = $1`, created.ID).
		Scan(&status, &paymentStatus)
	require.NoError(t, err)

	// The user can retry payment; the challenge slot is not burned.
	assert.Equal(t, "pending", status)
	assert.Equal(t, "failed", paymentStatus)
}

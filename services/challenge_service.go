package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitStakeAPI/internal/apperror"
	"habitStakeAPI/internal/dates"
	"habitStakeAPI/internal/notification"
	"habitStakeAPI/internal/streak"
	"habitStakeAPI/internal/types/challenge"
	"habitStakeAPI/internal/types/checkin"
)

// ChallengeService owns the challenge lifecycle: creation, payment event
// transitions, daily check-ins and the completed/failed resolution. All
// invariants that span concurrent requests (one open challenge per user,
// one check-in per day) are backed by database constraints, not by
// read-then-write checks.
type ChallengeService struct {
	db            *pgxpool.Pool
	notifications *NotificationService
}

func NewChallengeService(db *pgxpool.Pool, notifications *NotificationService) *ChallengeService {
	return &ChallengeService{db: db, notifications: notifications}
}

const challengeColumns = `id, user_id, title, description, duration_days, stake_amount,
	start_date, end_date, status, payment_status, stripe_payment_intent_id, created_at, updated_at`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	c := &challenge.Challenge{}
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Description,
		&c.DurationDays,
		&c.StakeAmount,
		&c.StartDate,
		&c.EndDate,
		&c.Status,
		&c.PaymentStatus,
		&c.PaymentIntentID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.StartDate = dates.Canonical(c.StartDate)
	c.EndDate = dates.Canonical(c.EndDate)
	return c, nil
}

// resolveUser maps a Clerk subject to the internal user id and timezone.
func (s *ChallengeService) resolveUser(ctx context.Context, clerkID string) (uuid.UUID, *time.Location, error) {
	var (
		userID uuid.UUID
		tz     string
	)
	err := s.db.QueryRow(ctx, `SELECT id, timezone FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil, &apperror.NotFoundError{Resource: "user"}
		}
		return uuid.Nil, nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, dates.Location(tz), nil
}

// CreateChallenge validates the request and persists a pending challenge.
// The one-open-challenge-per-user invariant is enforced by a partial
// unique index; a violation surfaces as ConflictError no matter how the
// concurrent requests interleave.
func (s *ChallengeService) CreateChallenge(ctx context.Context, clerkID string, req *challenge.CreateRequest) (*challenge.WithProgress, error) {
	userID, loc, err := s.resolveUser(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	today := dates.Today(loc)
	start, err := req.Validate(today)
	if err != nil {
		return nil, err
	}
	end := challenge.EndDate(start, req.DurationDays)

	query := `
	INSERT INTO challenges (id, user_id, title, description, duration_days, stake_amount,
		start_date, end_date, status, payment_status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 'pending', NOW(), NOW())
	RETURNING ` + challengeColumns

	c, err := scanChallenge(s.db.QueryRow(ctx, query,
		uuid.New(), userID, req.Title, req.Description, req.DurationDays, req.StakeAmount,
		start, end,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, &apperror.ConflictError{
				Msg: "you already have an open challenge; complete or cancel it before creating a new one",
			}
		}
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	return &challenge.WithProgress{Challenge: *c, RemainingDays: c.DurationDays}, nil
}

// ListChallenges returns the user's challenges newest first, each
// annotated with the evaluator's derived progress. A challenge whose
// streak already satisfies the duration but whose completion transition
// was lost earlier is reconciled here.
func (s *ChallengeService) ListChallenges(ctx context.Context, clerkID string) ([]*challenge.WithProgress, error) {
	userID, loc, err := s.resolveUser(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	today := dates.Today(loc)

	rows, err := s.db.Query(ctx, `
	SELECT `+challengeColumns+`
	FROM challenges
	WHERE user_id = $1
	ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var list []*challenge.WithProgress
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		list = append(list, &challenge.WithProgress{Challenge: *c})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	checkinsByChallenge, err := s.checkinDatesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, cw := range list {
		p := streak.Evaluate(cw.DurationDays, checkinsByChallenge[cw.ID], today)
		cw.CurrentStreak = p.CurrentStreak
		cw.HasCheckedInToday = p.HasCheckedInToday
		cw.RemainingDays = p.RemainingDays

		if cw.Status == challenge.StatusActive && p.IsComplete {
			if err := s.markCompleted(ctx, cw.ID); err != nil {
				log.Printf("Lazy completion of challenge %s failed: %v", cw.ID, err)
				continue
			}
			cw.Status = challenge.StatusCompleted
		}
	}

	return list, nil
}

func (s *ChallengeService) checkinDatesForUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]time.Time, error) {
	rows, err := s.db.Query(ctx,
		`SELECT challenge_id, checkin_date FROM checkins WHERE user_id = $1 ORDER BY checkin_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]time.Time)
	for rows.Next() {
		var (
			challengeID uuid.UUID
			d           time.Time
		)
		if err := rows.Scan(&challengeID, &d); err != nil {
			return nil, err
		}
		out[challengeID] = append(out[challengeID], dates.Canonical(d))
	}
	return out, rows.Err()
}

// SubmitCheckin records today's check-in for the challenge. The row is
// locked for the duration of the transaction so a check-in cannot race a
// payment event or a cancellation, and the (challenge_id, checkin_date)
// unique key decides the winner between concurrent duplicates. The
// completion transition runs after commit; if it fails the check-in
// stands and is reconciled on the next read or sweep.
func (s *ChallengeService) SubmitCheckin(ctx context.Context, clerkID, challengeID, notes string) (*checkin.Result, error) {
	userID, loc, err := s.resolveUser(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	today := dates.Today(loc)

	id, err := uuid.Parse(challengeID)
	if err != nil {
		return nil, &apperror.NotFoundError{Resource: "challenge"}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := scanChallenge(tx.QueryRow(ctx, `
	SELECT `+challengeColumns+`
	FROM challenges
	WHERE id = $1 AND user_id = $2
	FOR UPDATE`, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperror.NotFoundError{Resource: "challenge"}
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if c.Status != challenge.StatusActive {
		return nil, &apperror.InvalidStateError{Op: "check-in", State: string(c.Status)}
	}
	if !dates.InRange(today, c.StartDate, c.EndDate) {
		return nil, &apperror.OutOfRangeError{Date: dates.Format(today)}
	}

	rec := &checkin.Checkin{
		ID:          uuid.New(),
		ChallengeID: c.ID,
		UserID:      userID,
		CheckinDate: today,
		Notes:       notes,
		CompletedAt: time.Now(),
	}
	_, err = tx.Exec(ctx, `
	INSERT INTO checkins (id, challenge_id, user_id, checkin_date, notes, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.ChallengeID, rec.UserID, rec.CheckinDate, rec.Notes, rec.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, &apperror.DuplicateError{Date: dates.Format(today)}
		}
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM checkins WHERE challenge_id = $1`, c.ID).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count check-ins: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit check-in: %w", err)
	}

	result := &checkin.Result{
		Checkin:       rec,
		CurrentStreak: count,
		IsComplete:    count >= c.DurationDays,
	}

	if result.IsComplete {
		// The check-in is already durable. A failure here is logged and
		// healed lazily on the next list or sweep.
		if err := s.markCompleted(ctx, c.ID); err != nil {
			log.Printf("Completion transition for challenge %s failed after check-in: %v", c.ID, err)
			return result, nil
		}
		s.notify(ctx, userID, notification.NotificationChallengeCompleted,
			"Challenge complete!",
			fmt.Sprintf("You finished all %d days of %q. Your stake is coming back to you.", c.DurationDays, c.Title),
			map[string]any{"challengeId": c.ID.String()})
	}

	return result, nil
}

// markCompleted applies active -> completed. The status guard in the
// WHERE clause makes it a no-op if something else already moved the
// challenge out of active.
func (s *ChallengeService) markCompleted(ctx context.Context, challengeID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
	UPDATE challenges SET status = 'completed', updated_at = NOW()
	WHERE id = $1 AND status = 'active'`, challengeID)
	return err
}

// CancelChallenge abandons a pending or active challenge. It returns the
// payment intent reference when one exists and was never captured, so
// the caller can void it at the processor.
func (s *ChallengeService) CancelChallenge(ctx context.Context, clerkID, challengeID string) (*string, error) {
	userID, _, err := s.resolveUser(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(challengeID)
	if err != nil {
		return nil, &apperror.NotFoundError{Resource: "challenge"}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := scanChallenge(tx.QueryRow(ctx, `
	SELECT `+challengeColumns+`
	FROM challenges
	WHERE id = $1 AND user_id = $2
	FOR UPDATE`, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperror.NotFoundError{Resource: "challenge"}
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if !challenge.CanTransition(c.Status, challenge.StatusCancelled) {
		return nil, &apperror.InvalidStateError{Op: "cancel", State: string(c.Status)}
	}

	if _, err := tx.Exec(ctx, `
	UPDATE challenges SET status = 'cancelled', updated_at = NOW()
	WHERE id = $1`, c.ID); err != nil {
		return nil, fmt.Errorf("failed to cancel challenge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	if c.PaymentIntentID != nil && c.PaymentStatus == challenge.PaymentPending {
		return c.PaymentIntentID, nil
	}
	return nil, nil
}

// HandlePaymentSucceeded moves pending -> active for the challenge that
// owns the payment intent. Redelivered events find zero pending rows and
// ack without side effects.
func (s *ChallengeService) HandlePaymentSucceeded(ctx context.Context, intentID string) error {
	tag, err := s.db.Exec(ctx, `
	UPDATE challenges
	SET status = 'active', payment_status = 'succeeded', updated_at = NOW()
	WHERE stripe_payment_intent_id = $1 AND status = 'pending'`, intentID)
	if err != nil {
		return fmt.Errorf("failed to activate challenge for intent %s: %w", intentID, err)
	}

	if tag.RowsAffected() == 0 {
		var st challenge.Status
		err := s.db.QueryRow(ctx,
			`SELECT status FROM challenges WHERE stripe_payment_intent_id = $1`, intentID).Scan(&st)
		if errors.Is(err, pgx.ErrNoRows) {
			log.Printf("Payment succeeded for unknown intent %s, ignoring", intentID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check challenge for intent %s: %w", intentID, err)
		}
		log.Printf("Duplicate payment_intent.succeeded for intent %s (challenge already %s)", intentID, st)
		return nil
	}

	if _, err := s.db.Exec(ctx, `
	UPDATE payments SET status = 'succeeded', updated_at = NOW()
	WHERE stripe_payment_intent_id = $1`, intentID); err != nil {
		log.Printf("Failed to update payment ledger for intent %s: %v", intentID, err)
	}

	var (
		userID uuid.UUID
		title  string
	)
	if err := s.db.QueryRow(ctx, `
	SELECT user_id, title FROM challenges WHERE stripe_payment_intent_id = $1`, intentID).
		Scan(&userID, &title); err == nil {
		s.notify(ctx, userID, notification.NotificationPaymentReceived,
			"Stake received",
			fmt.Sprintf("Your challenge %q is now active. Day 1 starts now.", title),
			map[string]any{"paymentIntentId": intentID})
	}

	return nil
}

// HandlePaymentFailed marks the payment attempt failed. The challenge
// stays pending so the user can retry with a fresh payment.
func (s *ChallengeService) HandlePaymentFailed(ctx context.Context, intentID string) error {
	if _, err := s.db.Exec(ctx, `
	UPDATE challenges SET payment_status = 'failed', updated_at = NOW()
	WHERE stripe_payment_intent_id = $1 AND status = 'pending'`, intentID); err != nil {
		return fmt.Errorf("failed to mark payment failed for intent %s: %w", intentID, err)
	}

	if _, err := s.db.Exec(ctx, `
	UPDATE payments SET status = 'failed', updated_at = NOW()
	WHERE stripe_payment_intent_id = $1`, intentID); err != nil {
		log.Printf("Failed to update payment ledger for intent %s: %v", intentID, err)
	}
	return nil
}

// SweepMissedDays resolves every active challenge with a fully elapsed,
// unchecked day to failed, and promotes challenges whose streak already
// satisfies the duration. Both updates are guarded on status = 'active'
// so the sweep can safely race user requests.
func (s *ChallengeService) SweepMissedDays(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `
	SELECT c.id, c.user_id, c.title, c.duration_days, c.start_date, u.timezone
	FROM challenges c
	JOIN users u ON u.id = c.user_id
	WHERE c.status = 'active'`)
	if err != nil {
		return fmt.Errorf("failed to load active challenges: %w", err)
	}
	defer rows.Close()

	type sweepRow struct {
		id       uuid.UUID
		userID   uuid.UUID
		title    string
		duration int
		start    time.Time
		tz       string
	}
	var active []sweepRow
	for rows.Next() {
		var r sweepRow
		if err := rows.Scan(&r.id, &r.userID, &r.title, &r.duration, &r.start, &r.tz); err != nil {
			return err
		}
		r.start = dates.Canonical(r.start)
		active = append(active, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range active {
		checkins, err := s.checkinDates(ctx, r.id)
		if err != nil {
			log.Printf("Sweep: failed to load check-ins for challenge %s: %v", r.id, err)
			continue
		}
		today := dates.Today(dates.Location(r.tz))

		if len(checkins) >= r.duration {
			if err := s.markCompleted(ctx, r.id); err != nil {
				log.Printf("Sweep: completion of challenge %s failed: %v", r.id, err)
			}
			continue
		}

		if streak.MissedDay(r.start, r.duration, checkins, today) {
			tag, err := s.db.Exec(ctx, `
			UPDATE challenges SET status = 'failed', updated_at = NOW()
			WHERE id = $1 AND status = 'active'`, r.id)
			if err != nil {
				log.Printf("Sweep: failing challenge %s errored: %v", r.id, err)
				continue
			}
			if tag.RowsAffected() == 1 {
				log.Printf("Sweep: challenge %s failed (missed a day)", r.id)
				s.notify(ctx, r.userID, notification.NotificationChallengeFailed,
					"Challenge failed",
					fmt.Sprintf("You missed a day of %q. Your stake has been forfeited.", r.title),
					map[string]any{"challengeId": r.id.String()})
			}
		}
	}

	return nil
}

func (s *ChallengeService) checkinDates(ctx context.Context, challengeID uuid.UUID) ([]time.Time, error) {
	rows, err := s.db.Query(ctx,
		`SELECT checkin_date FROM checkins WHERE challenge_id = $1 ORDER BY checkin_date`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, dates.Canonical(d))
	}
	return out, rows.Err()
}

func (s *ChallengeService) notify(ctx context.Context, userID uuid.UUID, t notification.NotificationType, title, message string, data map[string]any) {
	if s.notifications == nil {
		return
	}
	_, err := s.notifications.CreateNotification(ctx, &notification.CreateNotificationRequest{
		UserID:  userID,
		Type:    t,
		Title:   title,
		Message: message,
		Data:    data,
	})
	if err != nil {
		log.Printf("Failed to create %s notification for user %s: %v", t, userID, err)
	}
}

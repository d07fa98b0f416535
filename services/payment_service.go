package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"habitStakeAPI/internal/apperror"
	"habitStakeAPI/internal/types/challenge"
)

// PaymentService talks to Stripe for the stake escrow. A challenge gets
// exactly one payment intent; the reference is attached with a guarded
// update so a retried request or a race cannot attach a second one.
type PaymentService struct {
	db *pgxpool.Pool
}

func NewPaymentService(db *pgxpool.Pool) *PaymentService {
	return &PaymentService{db: db}
}

type IntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
}

// stakeCents converts a decimal dollar stake to the integer cents Stripe
// expects. Rounded, not truncated: 16.08 * 100 is 1607.999... in
// floating point.
func stakeCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateIntentForChallenge creates a Stripe payment intent for the
// challenge's stake and records its reference on the challenge and in
// the payments ledger.
func (s *PaymentService) CreateIntentForChallenge(ctx context.Context, clerkID, challengeID string) (*IntentResponse, error) {
	id, err := uuid.Parse(challengeID)
	if err != nil {
		return nil, &apperror.NotFoundError{Resource: "challenge"}
	}

	var (
		userID uuid.UUID
		email  string
		c      challenge.Challenge
	)
	err = s.db.QueryRow(ctx, `
	SELECT c.id, c.user_id, c.title, c.stake_amount, c.status, c.payment_status, c.stripe_payment_intent_id, u.email
	FROM challenges c
	JOIN users u ON u.id = c.user_id
	WHERE c.id = $1 AND u.clerk_id = $2`, id, clerkID).
		Scan(&c.ID, &userID, &c.Title, &c.StakeAmount, &c.Status, &c.PaymentStatus, &c.PaymentIntentID, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperror.NotFoundError{Resource: "challenge"}
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if c.Status != challenge.StatusPending {
		return nil, &apperror.InvalidStateError{Op: "payment", State: string(c.Status)}
	}
	if c.PaymentIntentID != nil {
		return nil, &apperror.ConflictError{Msg: "challenge already has a payment intent"}
	}

	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(stakeCents(c.StakeAmount)),
		Currency:     stripe.String(string(stripe.CurrencyUSD)),
		Description:  stripe.String(fmt.Sprintf("Stake for challenge: %s", c.Title)),
		ReceiptEmail: stripe.String(email),
	}
	params.AddMetadata("challengeId", c.ID.String())
	params.AddMetadata("userId", userID.String())
	params.AddMetadata("challengeTitle", c.Title)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
	UPDATE challenges SET stripe_payment_intent_id = $2, updated_at = NOW()
	WHERE id = $1 AND stripe_payment_intent_id IS NULL`, c.ID, pi.ID)
	if err != nil || tag.RowsAffected() == 0 {
		// Lost the attach race or the write failed. The intent must not
		// be left collectible.
		if cancelErr := s.CancelIntent(ctx, pi.ID); cancelErr != nil {
			log.Printf("Failed to cancel orphaned intent %s: %v", pi.ID, cancelErr)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to attach payment intent: %w", err)
		}
		return nil, &apperror.ConflictError{Msg: "challenge already has a payment intent"}
	}

	if _, err := s.db.Exec(ctx, `
	INSERT INTO payments (id, challenge_id, user_id, stripe_payment_intent_id, amount, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, 'pending', NOW(), NOW())`,
		uuid.New(), c.ID, userID, pi.ID, c.StakeAmount); err != nil {
		// Ledger row is informational; the intent reference on the
		// challenge is authoritative.
		log.Printf("Failed to insert payment ledger row for intent %s: %v", pi.ID, err)
	}

	return &IntentResponse{PaymentIntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CancelIntent voids a payment intent at Stripe.
func (s *PaymentService) CancelIntent(ctx context.Context, intentID string) error {
	_, err := paymentintent.Cancel(intentID, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel payment intent %s: %w", intentID, err)
	}

	if _, err := s.db.Exec(ctx, `
	UPDATE payments SET status = 'cancelled', updated_at = NOW()
	WHERE stripe_payment_intent_id = $1`, intentID); err != nil {
		log.Printf("Failed to update payment ledger for cancelled intent %s: %v", intentID, err)
	}
	return nil
}

package challenge

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"habitStakeAPI/internal/apperror"
	"habitStakeAPI/internal/dates"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// transitions is the complete state machine. Anything not listed here is
// an invalid transition.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is
// allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type Challenge struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"userId"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	DurationDays    int           `json:"durationDays"`
	StakeAmount     float64       `json:"stakeAmount"`
	StartDate       time.Time     `json:"startDate"`
	EndDate         time.Time     `json:"endDate"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	PaymentIntentID *string       `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// WithProgress decorates a challenge with the evaluator's derived fields
// for list responses.
type WithProgress struct {
	Challenge
	CurrentStreak     int  `json:"currentStreak"`
	HasCheckedInToday bool `json:"hasCheckedInToday"`
	RemainingDays     int  `json:"remainingDays"`
}

type CreateRequest struct {
	Title        string  `json:"title" validate:"required,max=100"`
	Description  string  `json:"description" validate:"max=500"`
	DurationDays int     `json:"durationDays" validate:"required,oneof=7 14 30"`
	StakeAmount  float64 `json:"stakeAmount" validate:"required,gte=15,lte=100"`
	StartDate    string  `json:"startDate" validate:"required"`
}

var validate = validator.New()

// Validate checks the request against the creation guards and resolves
// the start date. today must be the caller's canonical current date.
func (r *CreateRequest) Validate(today time.Time) (time.Time, error) {
	if err := validate.Struct(r); err != nil {
		return time.Time{}, apperror.FromValidator(err)
	}

	start, err := dates.Parse(r.StartDate)
	if err != nil {
		return time.Time{}, apperror.NewValidationError("startDate", "must be a date in YYYY-MM-DD format")
	}
	if start.Before(today) {
		return time.Time{}, apperror.NewValidationError("startDate", "must be today or in the future")
	}
	return start, nil
}

// EndDate computes the inclusive last day of a challenge window. This is
// the only place the identity endDate = startDate + durationDays - 1
// lives.
func EndDate(start time.Time, durationDays int) time.Time {
	return dates.AddDays(start, durationDays-1)
}

package checkin

import (
	"time"

	"github.com/google/uuid"
)

type Checkin struct {
	ID          uuid.UUID `json:"id"`
	ChallengeID uuid.UUID `json:"challengeId"`
	UserID      uuid.UUID `json:"userId"`
	CheckinDate time.Time `json:"checkinDate"`
	Notes       string    `json:"notes,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

type SubmitRequest struct {
	Notes string `json:"notes"`
}

type Result struct {
	Checkin       *Checkin `json:"checkin"`
	CurrentStreak int      `json:"currentStreak"`
	IsComplete    bool     `json:"isComplete"`
}

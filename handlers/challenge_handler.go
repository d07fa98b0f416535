package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"habitStakeAPI/internal/types/challenge"
	"habitStakeAPI/internal/types/checkin"
	"habitStakeAPI/middleware"
	"habitStakeAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	paymentService   *services.PaymentService
}

func NewChallengeHandler(challengeService *services.ChallengeService, paymentService *services.PaymentService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		paymentService:   paymentService,
	}
}

func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req challenge.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.challengeService.CreateChallenge(ctx, clerkID, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challenges, err := h.challengeService.ListChallenges(ctx, clerkID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if challenges == nil {
		challenges = []*challenge.WithProgress{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"challenges": challenges})
}

func (h *ChallengeHandler) SubmitCheckin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID := mux.Vars(r)["id"]

	var req checkin.SubmitRequest
	if r.Body != nil {
		// Notes are optional; an empty body is a valid check-in.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.challengeService.SubmitCheckin(ctx, clerkID, challengeID, req.Notes)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *ChallengeHandler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID := mux.Vars(r)["id"]

	intentToVoid, err := h.challengeService.CancelChallenge(ctx, clerkID, challengeID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	if intentToVoid != nil {
		if err := h.paymentService.CancelIntent(ctx, *intentToVoid); err != nil {
			// Challenge is already cancelled; the uncaptured intent just
			// expires at Stripe if voiding fails.
			log.Printf("Failed to void intent %s for cancelled challenge %s: %v", *intentToVoid, challengeID, err)
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

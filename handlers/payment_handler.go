package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"habitStakeAPI/middleware"
	"habitStakeAPI/services"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreatePaymentIntent creates the Stripe intent for a pending
// challenge's stake and returns the client secret the app needs to
// collect the payment.
func (h *PaymentHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID := mux.Vars(r)["id"]

	intent, err := h.paymentService.CreateIntentForChallenge(ctx, clerkID, challengeID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, intent)
}

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStakeAPI/handlers"
	"habitStakeAPI/internal/types/user"
	"habitStakeAPI/middleware"
	"habitStakeAPI/services"
	"habitStakeAPI/tests/helpers"
)

func authedRequest(method, target string, body string, clerkID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, clerkID)
	return req.WithContext(ctx)
}

func TestProfileFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	userService := services.NewUserService(pool)
	userHandler := handlers.NewUserHandler(userService)

	clerkID := "user_profile_" + time.Now().Format("20060102150405")
	helpers.CreateTestUser(t, pool, clerkID)

	// Get profile
	rr := httptest.NewRecorder()
	userHandler.GetProfile(rr, authedRequest(http.MethodGet, "/api/v1/user", "", clerkID))
	require.Equal(t, http.StatusOK, rr.Code)

	var profile user.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, clerkID, profile.ClerkID)
	assert.Equal(t, "UTC", profile.Timezone)

	// Update profile, including the timezone that decides when a
	// calendar day rolls over for check-ins.
	update := `{"firstName": "NewFirst", "username": "newusername123", "timezone": "Asia/Tokyo"}`
	rr = httptest.NewRecorder()
	userHandler.UpdateProfile(rr, authedRequest(http.MethodPut, "/api/v1/user/update-profile", update, clerkID))
	require.Equal(t, http.StatusOK, rr.Code)

	updated, err := userService.GetUserByClerkID(context.Background(), clerkID)
	require.NoError(t, err)
	assert.Equal(t, "NewFirst", updated.FirstName)
	assert.Equal(t, "newusername123", updated.Username)
	assert.Equal(t, "Asia/Tokyo", updated.Timezone)

	// A bogus timezone is refused.
	rr = httptest.NewRecorder()
	userHandler.UpdateProfile(rr, authedRequest(http.MethodPut, "/api/v1/user/update-profile", `{"timezone": "Not/AZone"}`, clerkID))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Delete account
	rr = httptest.NewRecorder()
	userHandler.DeleteAccount(rr, authedRequest(http.MethodDelete, "/api/v1/user/delete-account", "", clerkID))
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = userService.GetUserByClerkID(context.Background(), clerkID)
	assert.Error(t, err, "User should be deleted")
}

func TestGetProfileUnauthenticated(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	userHandler := handlers.NewUserHandler(services.NewUserService(pool))

	// No Clerk ID in the request context.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	rr := httptest.NewRecorder()

	userHandler.GetProfile(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

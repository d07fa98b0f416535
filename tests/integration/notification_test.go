package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStakeAPI/internal/notification"
	"habitStakeAPI/services"
	"habitStakeAPI/tests/helpers"
)

func TestNotificationFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)

	clerkID := "user_notif_" + time.Now().Format("20060102150405")
	userID := helpers.CreateTestUser(t, pool, clerkID)

	ctx := context.Background()

	first, err := notificationService.CreateNotification(ctx, &notification.CreateNotificationRequest{
		UserID:  userID,
		Type:    notification.NotificationCheckinReminder,
		Title:   "Don't lose your streak",
		Message: "You haven't checked in today.",
	})
	require.NoError(t, err)

	_, err = notificationService.CreateNotification(ctx, &notification.CreateNotificationRequest{
		UserID:  userID,
		Type:    notification.NotificationChallengeCompleted,
		Title:   "Challenge complete!",
		Message: "All 7 days done.",
		Data:    map[string]any{"challengeId": "abc"},
	})
	require.NoError(t, err)

	count, err := notificationService.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := notificationService.GetNotifications(ctx, clerkID, 50)
	require.NoError(t, err)
	assert.Len(t, list.Notifications, 2)
	assert.Equal(t, 2, list.UnreadCount)

	require.NoError(t, notificationService.MarkAsRead(ctx, clerkID, first.ID))

	count, err = notificationService.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, notificationService.MarkAllAsRead(ctx, clerkID))

	count, err = notificationService.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRegisterDeviceIsIdempotent(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)

	clerkID := "user_device_" + time.Now().Format("20060102150405")
	helpers.CreateTestUser(t, pool, clerkID)

	ctx := context.Background()
	req := &notification.RegisterDeviceRequest{
		Token:    "fcm_token_" + clerkID,
		Platform: "android",
	}

	require.NoError(t, notificationService.RegisterDevice(ctx, clerkID, req))
	// Re-registering the same token must not fail.
	require.NoError(t, notificationService.RegisterDevice(ctx, clerkID, req))
}

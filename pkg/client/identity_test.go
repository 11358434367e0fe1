package client

import (
	"testing"
	"time"

	"chatboard/models"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUserIdentifierIsStable(t *testing.T) {
	require.Equal(t, "User-OWMRNH", UserIdentifier("127.0.0.1"))
	require.Equal(t, "User-8GKC6K", UserIdentifier("10.0.0.7"))
	require.Equal(t, "Anonymous", UserIdentifier(""))
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Alice", DisplayName(models.Message{Name: strPtr("Alice")}))
	require.Equal(t, "User-OWMRNH", DisplayName(models.Message{IPAddress: strPtr("127.0.0.1")}))
	require.Equal(t, "Anonymous", DisplayName(models.Message{}))
}

func TestAvatar(t *testing.T) {
	require.Equal(t, "#e83e8c", AvatarColor(models.Message{Name: strPtr("Alice")}))
	require.Equal(t, "#6f42c1", AvatarColor(models.Message{}))
	require.Equal(t, "#28a745", AvatarColor(models.Message{IPAddress: strPtr("127.0.0.1")}))
	require.Equal(t, "#343a40", AvatarColor(models.Message{Name: strPtr("Bartholomew Featherstonehaugh")}))

	require.Equal(t, "É", AvatarInitial(models.Message{Name: strPtr("élodie")}))
	require.Equal(t, "Z", AvatarInitial(models.Message{IPAddress: strPtr("127.0.0.1")}))
	require.Equal(t, "O", AvatarInitial(models.Message{IPAddress: strPtr("10.0.0.7")}))
	require.Equal(t, "?", AvatarInitial(models.Message{}))
}

func TestFormatTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "Just now", FormatTime(now.Add(-30*time.Second), now))
	require.Equal(t, "5m ago", FormatTime(now.Add(-5*time.Minute), now))
	require.Equal(t, "3h ago", FormatTime(now.Add(-3*time.Hour), now))
	require.NotContains(t, FormatTime(now.Add(-48*time.Hour), now), "ago")
	require.Empty(t, FormatTime(time.Time{}, now))
}

package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/devices"
)

func TestWelcomeMarshalsExpectedType(t *testing.T) {
	msg := Welcome("Alice", "session-1", devices.DefaultReconnectionPolicy())
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "welcome", decoded["type"])
	assert.Equal(t, "Alice", decoded["profile_name"])
	assert.Equal(t, "session-1", decoded["session_id"])
	assert.NotContains(t, decoded, "token")
}

func TestCriticalAlertCarriesDetail(t *testing.T) {
	related := "doc-42"
	msg := CriticalAlert("alert-1", "Please review a recent result", AlertDetail{
		Summary:         "Potassium is elevated",
		RelatedDocument: &related,
		Severity:        "high",
	})
	assert.Equal(t, "critical_alert", msg.Type)
	require.NotNil(t, msg.Detail)
	assert.Equal(t, "high", msg.Detail.Severity)
	assert.Equal(t, "doc-42", *msg.Detail.RelatedDocument)
}

func TestHeartbeatFormatsRFC3339(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := Heartbeat(at)
	assert.Equal(t, "heartbeat", msg.Type)
	assert.Equal(t, "2026-01-02T03:04:05Z", msg.ServerTime)
}

func TestParseIncomingChatQuery(t *testing.T) {
	raw := []byte(`{"type":"chat_query","message":"how is my potassium trending?"}`)
	in, err := ParseIncoming(raw)
	require.NoError(t, err)
	assert.Equal(t, IncomingChatQuery, in.Type)
	assert.Equal(t, "how is my potassium trending?", in.Message)
	assert.Nil(t, in.ConversationID)
}

func TestParseIncomingRejectsGarbage(t *testing.T) {
	_, err := ParseIncoming([]byte("not json"))
	assert.Error(t, err)
}

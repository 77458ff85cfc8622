// Package ws implements C11: the per-device WebSocket fan-out that
// pushes server-initiated events (chat streaming, critical alerts,
// document processing status, sync availability) to paired phones and
// accepts a small set of phone-initiated messages in return. Grounded on
// original_source/src-tauri/src/device_manager.rs's WsOutgoing/WsIncoming
// tagged unions and SAGE-X-project-sage's
// pkg/agent/transport/websocket/server.go upgrade-then-read-loop shape.
package ws

import (
	"encoding/json"
	"time"

	"github.com/ktiyab/coheara/internal/devices"
)

// CitationRef points a chat answer back at the document it was drawn from.
type CitationRef struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkID       *string `json:"chunk_id,omitempty"`
}

// AlertDetail is the in-app detail behind a vague push notification, kept
// out of the OS notification body itself (spec §4.10).
type AlertDetail struct {
	Summary         string  `json:"summary"`
	RelatedDocument *string `json:"related_document,omitempty"`
	Severity        string  `json:"severity"`
	ActionText      *string `json:"action_text,omitempty"`
}

// Outgoing is any server→phone message. Each constructor stamps the
// "type" discriminant expected by the phone's tagged-union decoder.
type Outgoing struct {
	Type string `json:"type"`

	// Welcome
	ProfileName     string                      `json:"profile_name,omitempty"`
	SessionID       string                      `json:"session_id,omitempty"`
	ReconnectPolicy *devices.ReconnectionPolicy `json:"reconnect_policy,omitempty"`

	// SessionExpiring
	SecondsRemaining *uint32 `json:"seconds_remaining,omitempty"`

	// ChatToken / ChatComplete / ChatError
	ConversationID string        `json:"conversation_id,omitempty"`
	Token          string        `json:"token,omitempty"`
	Content        string        `json:"content,omitempty"`
	Citations      []CitationRef `json:"citations,omitempty"`
	Error          string        `json:"error,omitempty"`

	// CriticalAlert
	AlertID          string       `json:"alert_id,omitempty"`
	NotificationText string       `json:"notification_text,omitempty"`
	Detail           *AlertDetail `json:"detail,omitempty"`

	// DocumentProcessing / DocumentComplete / DocumentError
	DocumentID string `json:"document_id,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Title      string `json:"title,omitempty"`

	// SyncAvailable
	ChangedTypes []string `json:"changed_types,omitempty"`

	// Heartbeat
	ServerTime string `json:"server_time,omitempty"`
}

func Welcome(profileName, sessionID string, policy devices.ReconnectionPolicy) Outgoing {
	return Outgoing{Type: "welcome", ProfileName: profileName, SessionID: sessionID, ReconnectPolicy: &policy}
}

func SessionExpiring(secondsRemaining uint32) Outgoing {
	return Outgoing{Type: "session_expiring", SecondsRemaining: &secondsRemaining}
}

func Revoked() Outgoing { return Outgoing{Type: "revoked"} }

func ChatToken(conversationID, token string) Outgoing {
	return Outgoing{Type: "chat_token", ConversationID: conversationID, Token: token}
}

func ChatComplete(conversationID, content string, citations []CitationRef) Outgoing {
	return Outgoing{Type: "chat_complete", ConversationID: conversationID, Content: content, Citations: citations}
}

func ChatError(conversationID, errMsg string) Outgoing {
	return Outgoing{Type: "chat_error", ConversationID: conversationID, Error: errMsg}
}

func CriticalAlert(alertID, notificationText string, detail AlertDetail) Outgoing {
	return Outgoing{Type: "critical_alert", AlertID: alertID, NotificationText: notificationText, Detail: &detail}
}

func DocumentProcessing(documentID, stage string) Outgoing {
	return Outgoing{Type: "document_processing", DocumentID: documentID, Stage: stage}
}

func DocumentComplete(documentID, title string) Outgoing {
	return Outgoing{Type: "document_complete", DocumentID: documentID, Title: title}
}

func DocumentError(documentID, errMsg string) Outgoing {
	return Outgoing{Type: "document_error", DocumentID: documentID, Error: errMsg}
}

func SyncAvailable(changedTypes []string) Outgoing {
	return Outgoing{Type: "sync_available", ChangedTypes: changedTypes}
}

func Heartbeat(serverTime time.Time) Outgoing {
	return Outgoing{Type: "heartbeat", ServerTime: serverTime.UTC().Format(time.RFC3339)}
}

func ProfileChanged(profileName string) Outgoing {
	return Outgoing{Type: "profile_changed", ProfileName: profileName}
}

// Incoming is any phone→server message.
type Incoming struct {
	Type string `json:"type"`

	// ChatQuery
	ConversationID *string `json:"conversation_id,omitempty"`
	Message        string  `json:"message,omitempty"`

	// ChatFeedback
	MessageID string `json:"message_id,omitempty"`
	Helpful   bool   `json:"helpful,omitempty"`
}

// ParseIncoming decodes one phone→server frame.
func ParseIncoming(raw []byte) (Incoming, error) {
	var in Incoming
	err := json.Unmarshal(raw, &in)
	return in, err
}

const (
	IncomingReady        = "ready"
	IncomingPong         = "pong"
	IncomingChatQuery    = "chat_query"
	IncomingChatFeedback = "chat_feedback"
)

package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/corestate"
	"github.com/ktiyab/coheara/internal/db"
	"github.com/ktiyab/coheara/internal/pairing"
)

// Handlers implements every route enumerated in spec.md §4.8. Each method
// is a plain http.HandlerFunc-compatible method so router.go can register
// them directly or through the protected middleware chain.
type Handlers struct {
	State *corestate.State

	// ServerURL and CertFingerprint are not read by any handler, and
	// NewRouter leaves them empty; the pairing QR payload is built from
	// the arguments passed to pairing.Coordinator.Start.
	ServerURL       string
	CertFingerprint string
}

type healthResponse struct {
	Status        string `json:"status"`
	ProfileActive bool   `json:"profile_active"`
	Version       string `json:"version"`
}

// Version is the build's reported API version (spec §6: GET /health body
// carries version).
var Version = "0.1.0"

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	_, err := h.State.Active()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		ProfileActive: err == nil,
		Version:       Version,
	})
}

type pairRequest struct {
	Token       string `json:"token"`
	PhonePubKey string `json:"phone_pubkey"`
	DeviceName  string `json:"device_name"`
	DeviceModel string `json:"device_model"`
}

type pairResponse struct {
	SessionToken      string `json:"session_token"`
	CacheKeyEncrypted string `json:"cache_key_encrypted"`
	ProfileName       string `json:"profile_name"`
}

// pair implements POST /auth/pair, the unprotected route: decode the
// phone's submission, forward it to the pairing coordinator's long-poll
// Submit, and translate the outcome (spec §4.6/§6).
func (h *Handlers) pair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, coherr.NewValidation("invalid request body"))
		return
	}
	pubKey, err := base64.StdEncoding.DecodeString(req.PhonePubKey)
	if err != nil {
		writeError(w, coherr.NewValidation("phone_pubkey must be base64"))
		return
	}

	coordinator, err := h.State.Pairing()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := coordinator.Submit(req.Token, pairing.DeviceInfo{
		DeviceName:  req.DeviceName,
		DeviceModel: req.DeviceModel,
	}, pubKey)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pairResponse{
		SessionToken:      result.SessionToken,
		CacheKeyEncrypted: base64.StdEncoding.EncodeToString(result.WrappedMasterKey),
		ProfileName:       result.ProfileName,
	})
}

type wsTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

func (h *Handlers) wsTicket(w http.ResponseWriter, r *http.Request) {
	dc, _ := DeviceFromContext(r.Context())
	ticket, ttl, err := IssueTicket(dc.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wsTicketResponse{Ticket: ticket, ExpiresIn: int(ttl.Seconds())})
}

func (h *Handlers) home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"widgets": []any{}})
}

func (h *Handlers) medicationsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"medications": []any{}})
}

func (h *Handlers) medicationDetail(w http.ResponseWriter, r *http.Request) {
	writeError(w, coherr.NewValidation("medication not found"))
}

func (h *Handlers) labsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"labs": []any{}})
}

func (h *Handlers) labsRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"labs": []any{}})
}

func (h *Handlers) labsHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"labs": []any{}})
}

func (h *Handlers) withDB(w http.ResponseWriter) (*db.DB, bool) {
	handle, err := h.State.OpenDB()
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return handle, true
}

func (h *Handlers) criticalAlerts(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.withDB(w)
	if !ok {
		return
	}
	alerts, err := handle.FetchCriticalAlerts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

type dismissAlertRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) dismissAlert(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.withDB(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	var req dismissAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, coherr.NewValidation("reason is required"))
		return
	}
	if err := handle.DismissCriticalAlert(id, req.Reason); err != nil {
		writeError(w, coherr.NewValidation(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) chatSend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": uuid.NewString()})
}

func (h *Handlers) chatSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": []any{}})
}

func (h *Handlers) chatConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"conversations": []any{}})
}

func (h *Handlers) chatConversationDetail(w http.ResponseWriter, r *http.Request) {
	writeError(w, coherr.NewValidation("conversation not found"))
}

type journalRecordRequest struct {
	Body string `json:"body"`
}

func (h *Handlers) journalRecord(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.withDB(w)
	if !ok {
		return
	}
	var req journalRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		writeError(w, coherr.NewValidation("body is required"))
		return
	}
	source := "desktop"
	if dc, authenticated := DeviceFromContext(r.Context()); authenticated {
		source = "mobile:" + dc.DeviceID
	}
	entry := db.JournalEntry{ID: uuid.NewString(), Body: req.Body, RecordedAt: time.Now().UTC(), Source: source}
	if err := handle.InsertJournalEntry(entry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handlers) journalHistory(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.withDB(w)
	if !ok {
		return
	}
	entries, err := handle.JournalHistory(100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handlers) timeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": []any{}})
}

func (h *Handlers) appointmentsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"appointments": []any{}})
}

func (h *Handlers) appointmentPrep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prep_notes": []any{}})
}

func (h *Handlers) documentsUpload(w http.ResponseWriter, r *http.Request) {
	writeError(w, coherr.NewValidation("multipart document upload not provided"))
}

func (h *Handlers) sync(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

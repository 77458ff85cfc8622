package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/corestate"
	"github.com/ktiyab/coheara/internal/obslog"
	"github.com/ktiyab/coheara/internal/profilestore"
)

func newUnlockedHandlers(t *testing.T) *Handlers {
	t.Helper()
	store, err := profilestore.New(t.TempDir())
	require.NoError(t, err)

	_, phrase, err := store.Create("TestPatient", "test-password-123", nil, nil)
	require.NoError(t, err)
	phrase.Close()

	infos, err := store.ListProfiles()
	require.NoError(t, err)
	opened, err := store.Open(infos[0].ID, "test-password-123")
	require.NoError(t, err)

	cfg := config.Default()
	state := corestate.New(*cfg, store, obslog.NewDefault())
	require.NoError(t, state.Unlock(opened))
	t.Cleanup(state.Lock)

	return &Handlers{State: state}
}

func TestHealthReportsActiveProfile(t *testing.T) {
	h := newUnlockedHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.ProfileActive)
	assert.Equal(t, Version, resp.Version)
}

func TestJournalRecordThenHistory(t *testing.T) {
	h := newUnlockedHandlers(t)

	body, err := json.Marshal(journalRecordRequest{Body: "felt better today"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/journal", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.journalRecord(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	historyReq := httptest.NewRequest(http.MethodGet, "/api/journal", nil)
	historyRec := httptest.NewRecorder()
	h.journalHistory(historyRec, historyReq)
	require.Equal(t, http.StatusOK, historyRec.Code)
	assert.Contains(t, historyRec.Body.String(), "felt better today")
}

func TestJournalRecordTagsMobileSource(t *testing.T) {
	h := newUnlockedHandlers(t)

	body, err := json.Marshal(journalRecordRequest{Body: "entry from phone"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/journal", bytes.NewReader(body))
	req = withDeviceContext(req, DeviceContext{DeviceID: "device-1", DeviceName: "Phone"})
	rec := httptest.NewRecorder()
	h.journalRecord(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	historyRec := httptest.NewRecorder()
	h.journalHistory(historyRec, httptest.NewRequest(http.MethodGet, "/api/journal", nil))
	require.Equal(t, http.StatusOK, historyRec.Code)
	assert.Contains(t, historyRec.Body.String(), "mobile:device-1")
}

func TestCriticalAlertsEmptyByDefault(t *testing.T) {
	h := newUnlockedHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/critical", nil)
	rec := httptest.NewRecorder()
	h.criticalAlerts(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "alerts")
	assert.Nil(t, resp["alerts"])
}

func TestDismissAlertRequiresReason(t *testing.T) {
	h := newUnlockedHandlers(t)

	body, err := json.Marshal(dismissAlertRequest{Reason: ""})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/critical/{id}/dismiss", bytes.NewReader(body))
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()
	h.dismissAlert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

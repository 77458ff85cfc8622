package lan

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/obslog"
)

func newTestTransferServer(t *testing.T) *TransferServer {
	t.Helper()
	cfg := config.LANConfig{
		TransferMaxUploads:     20,
		TransferMaxUploadBytes: 50 * 1024 * 1024,
		TransferMaxFailedPINs:  MaxFailedPINAttempts,
	}
	s, err := NewTransferServer(cfg, t.TempDir(), obslog.New(io.Discard, obslog.ErrorLevel))
	require.NoError(t, err)
	return s
}

func multipartUploadRequest(t *testing.T, pin, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("pin", pin))
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.RemoteAddr = "192.168.1.50:12345"
	return req
}

func TestHandleUploadWrongPINIncrementsFailures(t *testing.T) {
	s := newTestTransferServer(t)
	req := multipartUploadRequest(t, "000000", "doc.pdf", []byte("%PDF-1.4 fake"))

	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	count, _ := s.Status()
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, s.failedAttempts["192.168.1.50"])
}

func TestHandleUploadLocksOutAfterMaxFailures(t *testing.T) {
	s := newTestTransferServer(t)
	for i := 0; i < MaxFailedPINAttempts; i++ {
		req := multipartUploadRequest(t, "000000", "doc.pdf", []byte("%PDF-1.4 fake"))
		rec := httptest.NewRecorder()
		s.handleUpload(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	req := multipartUploadRequest(t, s.Session.PIN, "doc.pdf", []byte("%PDF-1.4 fake"))
	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleUploadRejectsDisallowedMIME(t *testing.T) {
	s := newTestTransferServer(t)
	req := multipartUploadRequest(t, s.Session.PIN, "payload.exe", []byte("MZ\x90\x00not really an exe"))

	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandleUploadSucceedsAndStagesFile(t *testing.T) {
	s := newTestTransferServer(t)
	req := multipartUploadRequest(t, s.Session.PIN, "../../etc/report.pdf", []byte("%PDF-1.4 real content"))

	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	count, received := s.Status()
	require.Equal(t, 1, count)
	require.Len(t, received, 1)
	assert.Equal(t, "etcreport.pdf", received[0].Filename)
	assert.Equal(t, "application/pdf", received[0].MimeType)
}

func TestHandleUploadRejectsOverUploadCap(t *testing.T) {
	cfg := config.LANConfig{TransferMaxUploads: 1, TransferMaxUploadBytes: 50 * 1024 * 1024}
	s, err := NewTransferServer(cfg, t.TempDir(), obslog.New(io.Discard, obslog.ErrorLevel))
	require.NoError(t, err)

	first := multipartUploadRequest(t, s.Session.PIN, "a.pdf", []byte("%PDF-1.4 one"))
	s.handleUpload(httptest.NewRecorder(), first)

	second := multipartUploadRequest(t, s.Session.PIN, "b.pdf", []byte("%PDF-1.4 two"))
	rec := httptest.NewRecorder()
	s.handleUpload(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

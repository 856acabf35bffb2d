package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naskahlive/config"
	"naskahlive/socket"
)

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Auth:   config.AuthConfig{TokenTTL: 0},
		Socket: config.SocketConfig{SendBuffer: 4},
	}
	h, err := Setup(cfg, db, socket.NewRegistry(nil))
	require.NoError(t, err)
	return h, mock
}

func TestHealthz(t *testing.T) {
	h, mock := newTestRouter(t)
	mock.ExpectPing()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentsRequireAuthentication(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, path := range []string{"/api/documents", "/api/documents/", "/api/documents/abc/collaborators/"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestAnonymousWebSocketIsRejected(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/documents/abc", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "naskahlive_ws_sessions_active")
}

package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/logger"
)

func TestNewServerDefaultsHeaderTimeout(t *testing.T) {
	srv := NewServer(ServerConfig{Address: ":0", ReadTimeout: 3 * time.Second}, http.NotFoundHandler())
	require.Equal(t, 3*time.Second, srv.ReadHeaderTimeout)

	srv = NewServer(ServerConfig{ReadTimeout: 3 * time.Second, ReadHeaderTimeout: time.Second}, http.NotFoundHandler())
	require.Equal(t, time.Second, srv.ReadHeaderTimeout)
}

func TestRequestLogPassesThrough(t *testing.T) {
	h := RequestLog(logger.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
}

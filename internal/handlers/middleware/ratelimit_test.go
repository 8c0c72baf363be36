package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	request := func(h http.Handler, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	t.Run("disabled limiter lets everything through", func(t *testing.T) {
		rl := NewRateLimiter(0)
		require.Nil(t, rl)

		h := rl.Limit(ok)
		for range 100 {
			require.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:1000").Code)
		}
	})

	t.Run("burst then throttle", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(60) // one per second, burst 6
		rl.now = func() time.Time { return now }
		h := rl.Limit(ok)

		for i := range 6 {
			require.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:1000").Code, "request %d within burst", i)
		}

		rr := request(h, "10.0.0.1:2000")
		require.Equal(t, http.StatusTooManyRequests, rr.Code, "same ip with other port is the same client")
		require.Equal(t, "60", rr.Header().Get("Retry-After"))
		require.JSONEq(t, `{"error": "service_error", "message": "Too many requests"}`, rr.Body.String())

		require.Equal(t, http.StatusNoContent, request(h, "10.0.0.2:1000").Code, "other client has own budget")

		now = now.Add(time.Second)
		require.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:1000").Code, "token refilled after a second")
	})

	t.Run("idle clients forgotten", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(1)
		rl.now = func() time.Time { return now }

		require.True(t, rl.allow("10.0.0.1"))
		require.Len(t, rl.clients, 1)

		now = now.Add(idleClientWindow + time.Second)
		require.True(t, rl.allow("10.0.0.2"))

		require.Len(t, rl.clients, 1, "idle client must be dropped")
		require.Contains(t, rl.clients, "10.0.0.2")
	})
}

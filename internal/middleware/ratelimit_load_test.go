//go:build load

// Load tests are excluded from regular runs.
// Run with: go test -tags load -count=1 -timeout 60s ./internal/middleware/
package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Strob0t/AgentForge/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hammer(handler http.Handler, goroutines, perGoroutine int, addr func(g int) string) (ok, limited int64) {
	var okN, limitedN atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", http.NoBody)
				req.RemoteAddr = addr(g)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				switch rec.Code {
				case http.StatusOK:
					okN.Add(1)
				case http.StatusTooManyRequests:
					limitedN.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return okN.Load(), limitedN.Load()
}

// One client firing 1000 requests near-instantly against rate=10 burst=10
// should see most of them rejected.
func TestRateLimitSustainedLoad(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10)
	ok, limited := hammer(rl.Handler(okHandler()), 10, 100, func(int) string { return "10.0.0.1:5000" })

	pct := float64(limited) / float64(ok+limited) * 100
	t.Logf("ok=%d limited=%d (%.1f%% rejected)", ok, limited, pct)
	if pct < 80 {
		t.Errorf("expected >80%% rejected under sustained load, got %.1f%%", pct)
	}
}

// Concurrent burst-sized traffic from one client is absorbed completely.
func TestRateLimitBurstAbsorption(t *testing.T) {
	const burst = 50
	rl := middleware.NewRateLimiter(1, burst)
	handler := rl.Handler(okHandler())

	ok, limited := hammer(handler, burst, 1, func(int) string { return "10.0.0.1:5000" })
	if ok != burst || limited != 0 {
		t.Fatalf("burst phase: ok=%d limited=%d", ok, limited)
	}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("burst+1: expected 429, got %d", rec.Code)
	}
}

// Many distinct clients each stay within their own bucket.
func TestRateLimitManyClients(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 5)
	ok, limited := hammer(rl.Handler(okHandler()), 200, 5, func(g int) string {
		return fmt.Sprintf("10.%d.%d.1:5000", g/250, g%250)
	})
	if ok != 1000 || limited != 0 {
		t.Errorf("ok=%d limited=%d", ok, limited)
	}
	if rl.Len() != 200 {
		t.Errorf("tracked clients = %d", rl.Len())
	}
}

package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CheckAll runs every checker in parallel and returns the failures by
// component name. An empty map means everything is up.
func CheckAll(ctx context.Context, checkers []Checker) map[string]error {
	failures := make(map[string]error)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, c := range checkers {
		g.Go(func() error {
			if err := c.Check(ctx); err != nil {
				mu.Lock()
				failures[c.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness returns 200 only if every checker passes within the readiness
// timeout. The JSON body is for humans; orchestrators read the status code.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	timeout := s.cfg.ReadinessTimeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	failures := CheckAll(ctx, s.checkers)

	statusMap := make(map[string]string, len(s.checkers))
	for _, c := range s.checkers {
		err, failed := failures[c.Name()]
		if !failed {
			statusMap[c.Name()] = "up"
			continue
		}
		// WARN, not ERROR: the orchestrator retries.
		s.logger.Warn("health probe failed",
			slog.String("component", c.Name()),
			slog.String("error", err.Error()),
		)
		statusMap[c.Name()] = fmt.Sprintf("down: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": statusMap,
	})
}

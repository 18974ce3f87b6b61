package health

import (
	"context"
	"net/http"
	"time"

	"github.com/corray333/backend-labs/saga/internal/transport/http/response"
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Response lists the status of every checked dependency.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health answers 200 when every dependency responds within a second, 503 otherwise.
func Health(w http.ResponseWriter, r *http.Request, deps map[string]Pinger) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	resp := Response{Status: "ok", Checks: make(map[string]string, len(deps))}
	status := http.StatusOK
	for name, dep := range deps {
		if err := dep.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable

			continue
		}
		resp.Checks[name] = "ok"
	}

	response.JSON(w, status, resp)
}

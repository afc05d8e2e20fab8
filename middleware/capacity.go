package middleware

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"

	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/metrics"
	"github.com/subvoxlabs/transcribe-api/requests"
)

// Capacity gates requests against a soft concurrency cap,
// mirroring the teacher's CapacityMiddleware -- simplified to the single
// counter this service needs (no separate clip/vod job classes).
type Capacity struct {
	maxInFlight int
	inFlight    atomic.Int64
}

func NewCapacity(maxInFlight int) *Capacity {
	return &Capacity{maxInFlight: maxInFlight}
}

// Gate rejects with 429 once maxInFlight concurrent requests through
// this Capacity are already being processed, so a burst of callers can't pile up more
// work than the dispatcher/executor pool is sized for.
func (c *Capacity) Gate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.Metrics.HTTPRequestsInFlight.Add(1)
		defer metrics.Metrics.HTTPRequestsInFlight.Add(-1)

		n := c.inFlight.Add(1)
		defer c.inFlight.Add(-1)

		if c.maxInFlight > 0 && int(n) > c.maxInFlight {
			requestID := requests.GetRequestId(r)
			log.Log(requestID, "rejecting request, at capacity", "max_in_flight", c.maxInFlight)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "INTERNAL_ERROR", "error": "server at capacity"})
			return
		}

		next(w, r, ps)
	}
}

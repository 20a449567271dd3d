package middleware

import (
	"fmt"
	"log"
	"math"
	"net/http"

	"github.com/skillforge/server/internal/ratelimit"
)

// RateLimitMiddleware rejects requests over the limiter's tier before any
// business logic runs. Rejections carry a Retry-After header and a message
// naming the configured limit. A store outage fails open: the request is
// admitted and the error logged.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.ClientKey(r)

			decision, err := limiter.Admit(r.Context(), key)
			if err != nil {
				log.Printf("rate limit store error, failing open: key=%s err=%v", key, err)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				retrySecs := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retrySecs < 1 {
					retrySecs = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySecs))
				respondWithError(w, http.StatusTooManyRequests,
					fmt.Sprintf("rate limit exceeded: %s", limiter.Policy()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

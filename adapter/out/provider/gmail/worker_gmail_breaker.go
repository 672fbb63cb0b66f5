package gmail

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("gmail circuit breaker open")

// Breaker guards Gmail API calls. It is shared by every mailbox client in the process.
type Breaker struct {
	cb  *gobreaker.CircuitBreaker
	log zerolog.Logger
}

func NewBreaker(log zerolog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// more than 5 consecutive failures, or >=60% failures over at least 10 requests
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit_state_changed")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

// Execute runs fn under the breaker. Client errors (400, 401, 403, 404) are
// passed through without counting as failures.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.log.Warn().Str("operation", operation).Str("state", b.cb.State().String()).Msg("gmail_call_rejected")
		return ErrCircuitOpen
	}
	if err != nil && ctx.Err() == nil {
		b.log.Debug().Err(err).Str("operation", operation).Str("state", b.cb.State().String()).Msg("gmail_call_failed")
	}
	return err
}

// State reports the breaker state for readiness checks.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// nonCircuitError marks an error the breaker should count as a success.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

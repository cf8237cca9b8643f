// Package circuitbreaker wraps gobreaker with the service's defaults and
// state-change logging.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

type Settings struct {
	Name string
	// MaxRequests is how many calls are let through while half-open
	MaxRequests uint32
	// Interval is the closed-state window after which counts reset
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open
	Timeout time.Duration
	// MinRequests and FailureRatio decide when a closed breaker trips
	MinRequests  uint32
	FailureRatio float64
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:         name,
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// StateValue encodes a state for gauges: 0=closed, 1=open, 2=half-open.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// New builds a breaker. onChange, if set, is called after every state change.
func New(s Settings, log logrus.FieldLogger, onChange func(name string, to gobreaker.State)) *Breaker {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
			if onChange != nil {
				onChange(name, to)
			}
		},
	})
	return &Breaker{cb: cb}
}

func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker %s: %w", b.cb.Name(), err)
	}
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

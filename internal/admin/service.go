package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/userhub/userhub-web/internal/backend"
)

// API is the slice of the backend client used by the admin panel.
type API interface {
	ListUsers(ctx context.Context, token string, page, perPage int) (*backend.UserPage, error)
	ActivateUser(ctx context.Context, token string, id int64) error
	DeactivateUser(ctx context.Context, token string, id int64) error
}

// Observer is notified of every admin action outcome.
type Observer interface {
	ObserveAdminAction(kind, outcome string)
}

// Action outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeIgnored = "ignored"
)

// Config tunes the admin flow.
type Config struct {
	PageSize int
	// Lease bounds how long an action may stay in flight.
	Lease time.Duration
	// Grace keeps the in-flight guard held after the call returns.
	Grace time.Duration
	// DismissAfter hides success banners.
	DismissAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.DismissAfter <= 0 {
		c.DismissAfter = 3 * time.Second
	}
	return c
}

// Service holds the long-lived dependencies of the admin flow and builds a
// Machine for each request.
type Service struct {
	api      API
	guard    Guard
	cfg      Config
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewService constructs a Service. A nil guard falls back to MemoryGuard.
func NewService(api API, guard Guard, cfg Config, logger *slog.Logger) *Service {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, guard: guard, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// SetObserver registers an action observer, typically the metrics collector.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// SetClock overrides the time source used for banners.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Machine returns a state machine acting with token. pending restores an
// action that was awaiting confirmation in an earlier request.
func (s *Service) Machine(token string, pending *PendingAction) *Machine {
	m := &Machine{svc: s, token: token, list: Idle{}, action: NoPendingAction{}}
	if pending != nil {
		m.action = AwaitingConfirmation{Action: *pending}
	}
	return m
}

func (s *Service) observe(kind ActionKind, outcome string) {
	if s.observer != nil {
		s.observer.ObserveAdminAction(string(kind), outcome)
	}
}

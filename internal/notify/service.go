package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"neuroboost/internal/eventbus"
	logx "neuroboost/pkg/logx"
)

const historyCap = 100

// Service owns the active route, applies rate limiting and a per-send
// timeout, and keeps a short delivery history.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus

	cfg     Config
	route   Route
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply swaps route and limits at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.route = buildRoute(cfg, s.log)
	s.log.Info("notification route selected", logx.String("route", s.route.Name()))
}

func buildRoute(cfg Config, log logx.Logger) Route {
	switch cfg.Route {
	case "desktop":
		return newDesktopRoute(log)
	case "telegram":
		r, err := newTelegramRoute(cfg.Telegram, log)
		if err != nil {
			log.Warn("telegram route unavailable; using stub", logx.Err(err))
			return newStubRoute(log)
		}
		return r
	default:
		return newStubRoute(log)
	}
}

// RouteName reports the active channel (for /status/nudges).
func (s *Service) RouteName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route.Name()
}

// Send pushes one notification through the active route. Failures come
// back as *DeliveryError.
func (s *Service) Send(ctx context.Context, n Notification) error {
	s.mu.Lock()
	route := s.route
	lim := s.limiter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	err := route.Send(sctx, n)
	cancel()

	if n.At.IsZero() {
		n.At = time.Now()
	}
	item := HistoryItem{At: n.At, Key: n.Key, Title: n.Title}
	if err != nil {
		item.Error = err.Error()
	}
	s.appendHistory(item)

	if err != nil {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "notify.failed", Data: item})
		}
		return &DeliveryError{Route: route.Name(), Err: err}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "notify.sent", Data: item})
	}
	return nil
}

// History returns the most recent deliveries, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

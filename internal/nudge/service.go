package nudge

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"neuroboost/internal/eventbus"
	"neuroboost/internal/model"
	"neuroboost/internal/notify"
	"neuroboost/internal/state"
	logx "neuroboost/pkg/logx"
)

// Service is the nudge scheduler: a single long-lived timer loop per
// process, plus an every-minute cron trigger for the weekly planner.
// The dedupe map and planner acks are shared with AckPlanner callers
// and guarded by stateMu.
type Service struct {
	log   logx.Logger
	clock Clock
	src   OccurrenceSource
	sink  Sink
	bus   eventbus.Bus
	store *state.Store // nil means in-memory state only

	cfg Config
	loc *time.Location

	// Shared between the tick loop, the planner cron goroutine and
	// AckPlanner callers.
	stateMu sync.Mutex
	dedupe  map[string]time.Time
	acks    map[string]bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	cron     *cron.Cron
}

// New wires the scheduler. A nil clock means wall time; a nil store
// means dedupe/ack state lives only in memory.
func New(cfg Config, src OccurrenceSource, sink Sink, store *state.Store, clock Clock, log logx.Logger, bus eventbus.Bus) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:    log,
		clock:  clock,
		src:    src,
		sink:   sink,
		bus:    bus,
		store:  store,
		cfg:    cfg,
		loc:    loadLocation(cfg.Timezone),
		dedupe: map[string]time.Time{},
		acks:   map[string]bool{},
	}
}

// loadLocation resolves the display zone, falling back to the fixed
// UTC+3 offset this deployment assumes (MSK has no DST).
func loadLocation(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("MSK", 3*60*60)
}

// Location returns the display zone used for quiet hours and the
// planner trigger.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Config returns the effective (defaulted) configuration.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply replaces the configuration. The caller must Stop the scheduler
// first; the loop reads cfg without locking while running.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.loc = loadLocation(cfg.Timezone)
	s.mu.Unlock()
}

// Enabled reports whether the scheduler should run.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start launches the tick loop and the every-minute planner trigger.
// It is a no-op when the scheduler is disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		s.log.Info("nudge scheduler disabled")
		return
	}
	if s.cancel != nil {
		return
	}

	// Reload persisted state so a restart does not replay nudges.
	if s.store != nil {
		s.stateMu.Lock()
		if d := s.store.Dedupe(); len(d) > 0 {
			s.dedupe = d
		}
		if a := s.store.Acks(); len(a) > 0 {
			s.acks = a
		}
		s.stateMu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	s.cron = cron.New(cron.WithLocation(s.loc))
	_, err := s.cron.AddFunc("* * * * *", func() { s.evaluatePlanner(runCtx) })
	if err != nil {
		s.log.Error("planner cron registration failed", logx.Err(err))
	}
	s.cron.Start()

	go s.loop(runCtx)
	s.log.Info("nudge scheduler started",
		logx.Duration("poll", s.cfg.PollInterval),
		logx.Duration("horizon", s.cfg.Horizon),
		logx.String("quiet_hours", s.cfg.QuietHours),
		logx.String("tz", s.loc.String()),
	)
}

// Stop cancels the pending timer and waits for an in-flight tick to
// finish. No new tick is scheduled after Stop returns.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.loopDone
	c := s.cron
	s.cancel = nil
	s.loopDone = nil
	s.cron = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("nudge scheduler stopped")
}

// loop is fetch-then-reschedule: the next tick is armed only after the
// current one completes, so ticks never overlap.
func (s *Service) loop(ctx context.Context) {
	defer close(s.loopDone)
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.PollInterval):
		}
	}
}

// tick runs one poll cycle. Any fetch error skips the whole tick; the
// next one retries independently.
func (s *Service) tick(ctx context.Context) {
	now := s.clock.Now()
	start := now.Add(-s.cfg.BackwardSlack)
	end := now.Add(s.cfg.Horizon)

	occs, err := s.src.Occurrences(ctx, start, end)
	if err != nil {
		s.log.Warn("occurrence fetch failed; skipping tick", logx.Err(err))
		return
	}

	for _, occ := range occs {
		phase, ok := phaseFor(occ, now)
		if !ok {
			continue
		}
		s.maybeNotify(ctx, occ, phase, now)
	}
}

// phaseFor picks the reminder phase for an occurrence, if any, based on
// rounded minutes to start.
func phaseFor(occ model.Occurrence, now time.Time) (Phase, bool) {
	mins := int(math.Round(occ.Start.Sub(now).Minutes()))
	switch mins {
	case 5:
		return PhaseT5, true
	case 0, 1:
		return PhaseT1, true
	default:
		return "", false
	}
}

func (s *Service) maybeNotify(ctx context.Context, occ model.Occurrence, phase Phase, now time.Time) {
	key := occ.ID + ":" + string(phase)
	if s.seen(key, now) {
		s.publish("nudge.deduped", key, now)
		return
	}
	// Mark before the quiet check: a quiet-hours occurrence is decided
	// once, not reconsidered every tick until the window elapses.
	s.markFired(key, now)

	if quietActive(s.cfg.QuietHours, now.In(s.loc)) {
		s.publish("nudge.suppressed", key, now)
		return
	}

	n := notify.Notification{
		Key:   key,
		Title: phaseTitle(phase),
		Body:  fmt.Sprintf("%s • %s–%s MSK", orUntitled(occ.Title), s.hhmm(occ.Start), s.hhmm(occ.End)),
		At:    now,
	}
	if err := s.sink.Send(ctx, n); err != nil {
		// Recorded, but the dedupe write stands: a flaky sink must not
		// turn into a notification storm.
		s.log.Warn("nudge delivery failed", logx.String("key", key), logx.Err(err))
		return
	}
	s.publish("nudge.fired", key, now)
}

// evaluatePlanner runs every minute in the display zone. At Sunday
// 18:xx it raises the weekly planning nudge once per ISO week.
func (s *Service) evaluatePlanner(ctx context.Context) {
	now := s.clock.Now()
	local := now.In(s.loc)
	if local.Weekday() != time.Sunday || local.Hour() != plannerHour {
		return
	}
	week := isoWeekKey(local)
	s.stateMu.Lock()
	acked := s.acks[week]
	s.stateMu.Unlock()
	if acked {
		return
	}
	key := plannerKey(week)
	// The rolling dedupe window is too short here: cron re-evaluates
	// every minute through the whole 18:00-18:59 hour. The week-scoped
	// key must suppress for the rest of the week once it fired.
	if s.everFired(key) {
		return
	}
	s.markFired(key, now)

	if quietActive(s.cfg.QuietHours, local) {
		s.publish("nudge.suppressed", key, now)
		return
	}

	n := notify.Notification{
		Key:   key,
		Title: "Plan your week",
		Body:  "Block out next week before it starts.",
		At:    now,
	}
	if err := s.sink.Send(ctx, n); err != nil {
		s.log.Warn("planner nudge delivery failed", logx.Err(err))
		return
	}
	s.publish("nudge.planner", key, now)
}

// AckPlanner dismisses the weekly planning nudge for the given ISO
// week (current week when empty). Persisted so the ack survives
// restarts.
func (s *Service) AckPlanner(week string) string {
	if week == "" {
		week = isoWeekKey(s.clock.Now().In(s.loc))
	}
	s.stateMu.Lock()
	s.acks[week] = true
	s.stateMu.Unlock()
	if err := s.store.AckPlanner(week); err != nil {
		s.log.Warn("planner ack persist failed", logx.String("week", week), logx.Err(err))
	}
	return week
}

// seen reports whether key fired within the dedupe window.
func (s *Service) seen(key string, now time.Time) bool {
	s.stateMu.Lock()
	last, ok := s.dedupe[key]
	s.stateMu.Unlock()
	return ok && now.Sub(last) < s.cfg.DedupeWindow
}

// everFired reports whether key is on record at all, ignoring the
// dedupe window. Planner keys carry the ISO week, so this bounds the
// planner nudge to one fire per week.
func (s *Service) everFired(key string) bool {
	s.stateMu.Lock()
	_, ok := s.dedupe[key]
	s.stateMu.Unlock()
	return ok
}

// markFired stamps the key in memory and mirrors it best-effort into
// the state file. A persist failure never fails the tick.
func (s *Service) markFired(key string, now time.Time) {
	s.stateMu.Lock()
	s.dedupe[key] = now
	s.stateMu.Unlock()
	if err := s.store.PutDedupe(key, now); err != nil {
		s.log.Warn("dedupe persist failed", logx.String("key", key), logx.Err(err))
	}
}

func (s *Service) publish(typ, key string, at time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: key})
}

func (s *Service) hhmm(t time.Time) string { return t.In(s.loc).Format("15:04") }

func phaseTitle(p Phase) string {
	if p == PhaseT5 {
		return "Upcoming (5 min)"
	}
	return "Starting now"
}

func orUntitled(title string) string {
	if title == "" {
		return "(no title)"
	}
	return title
}

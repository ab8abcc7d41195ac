package notify

import (
	"context"

	logx "neuroboost/pkg/logx"
)

// stubRoute is the disabled channel: it logs what it would have sent
// and succeeds. Used when no real route is configured.
type stubRoute struct {
	log logx.Logger
}

func newStubRoute(log logx.Logger) Route { return &stubRoute{log: log} }

func (r *stubRoute) Name() string { return "none" }

func (r *stubRoute) Send(_ context.Context, n Notification) error {
	r.log.Info("nudge (route disabled, not delivered)",
		logx.String("key", n.Key),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
	)
	return nil
}

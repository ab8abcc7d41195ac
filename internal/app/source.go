package app

import (
	"context"
	"time"

	"neuroboost/internal/expand"
	"neuroboost/internal/model"
	"neuroboost/internal/store"
	logx "neuroboost/pkg/logx"
)

// storeOccurrences feeds the nudge scheduler by expanding every stored
// event against the tick window. A malformed rule on one event is
// logged and skipped; it never blinds the scheduler to the rest.
type storeOccurrences struct {
	st  store.Store
	log logx.Logger
}

func (s *storeOccurrences) Occurrences(ctx context.Context, start, end time.Time) ([]model.Occurrence, error) {
	if s.st == nil {
		return nil, store.ErrDisabled
	}
	events, err := s.st.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.st.ListExceptions(ctx)
	if err != nil {
		return nil, err
	}
	occs, errs := expand.All(events, exceptions, start, end)
	for _, e := range errs {
		s.log.Warn("event failed to expand",
			logx.String("event_id", e.EventID), logx.Err(e.Err))
	}
	return occs, nil
}

package reconcile

import (
	"go.uber.org/zap"

	"fixcal/internal/model"
)

// KnownDates is the set of calendar dates already occupied by a real
// fixture within one reconciliation run. It is owned by a single run and
// is not safe for concurrent use.
type KnownDates struct {
	dates  map[model.Date]struct{}
	logger *zap.Logger
}

// NewKnownDates returns an empty set.
func NewKnownDates(logger *zap.Logger) *KnownDates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnownDates{dates: make(map[model.Date]struct{}), logger: logger}
}

// Record adds the start date of a real event. Placeholders are ignored and
// events without a resolvable start are skipped with a warning.
func (k *KnownDates) Record(ev model.ResolvedEvent) {
	if ev.Placeholder {
		return
	}
	start := ev.Start()
	if start.IsZero() {
		k.logger.Warn("known date skipped: event has no resolvable start",
			zap.String("uid", ev.UID), zap.String("summary", ev.Summary))
		return
	}
	k.dates[model.DateOf(start)] = struct{}{}
}

// Contains reports whether d already has a real fixture.
func (k *KnownDates) Contains(d model.Date) bool {
	_, ok := k.dates[d]
	return ok
}

// Len returns the number of distinct known dates.
func (k *KnownDates) Len() int {
	return len(k.dates)
}

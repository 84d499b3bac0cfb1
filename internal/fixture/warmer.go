package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fixcal/internal/config"
	"fixcal/internal/model"
)

// Refresher is the part of Service the warmer drives.
type Refresher interface {
	Refresh(ctx context.Context, centreID, teamID string) (model.TeamDetails, error)
}

// Warmer refreshes a fixed list of teams on a cron schedule so their feeds
// are served from cache.
type Warmer struct {
	svc     Refresher
	teams   []config.TeamRef
	timeout time.Duration
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewWarmer parses spec (standard 5-field cron) and prepares the job. The
// schedule does not run until Start.
func NewWarmer(svc Refresher, spec string, teams []config.TeamRef, logger *zap.Logger) (*Warmer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger}
	w := &Warmer{
		svc:     svc,
		teams:   teams,
		timeout: time.Minute,
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
	if _, err := w.cron.AddFunc(spec, func() { w.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("warm.cron %q: %w", spec, err)
	}
	return w, nil
}

func (w *Warmer) Start() {
	if len(w.teams) == 0 {
		w.logger.Info("cache warmer idle: no teams configured")
		return
	}
	w.cron.Start()
	w.logger.Info("cache warmer started", zap.Int("teams", len(w.teams)))
}

// Stop halts the schedule and waits for a running job to finish or ctx to
// expire.
func (w *Warmer) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce refreshes every configured team sequentially and returns the
// number refreshed successfully.
func (w *Warmer) RunOnce(ctx context.Context) int {
	ok := 0
	for _, t := range w.teams {
		if ctx.Err() != nil {
			break
		}
		tctx, cancel := context.WithTimeout(ctx, w.timeout)
		_, err := w.svc.Refresh(tctx, t.CentreID, t.TeamID)
		cancel()
		if err != nil {
			w.logger.Warn("cache warm failed",
				zap.String("centre_id", t.CentreID), zap.String("team_id", t.TeamID), zap.Error(err))
			continue
		}
		ok++
	}
	w.logger.Debug("cache warm pass complete", zap.Int("refreshed", ok), zap.Int("teams", len(w.teams)))
	return ok
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Sugar().Errorw("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}

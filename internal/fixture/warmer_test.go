package fixture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fixcal/internal/apperr"
	"fixcal/internal/cache"
	"fixcal/internal/config"
)

func TestWarmerRunOnceCountsSuccesses(t *testing.T) {
	clk := start()
	src := &stubSource{name: "Spikers"}
	store := cache.NewMemory(clk)
	svc, _ := newTestService(src, store, clk)

	teams := []config.TeamRef{{CentreID: "1720", TeamID: "42"}, {CentreID: "1720", TeamID: "43"}}
	w, err := NewWarmer(svc, "*/30 * * * *", teams, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, w.RunOnce(context.Background()))
	assert.Equal(t, 2, src.Calls())

	var entry cachedTeam
	assert.NoError(t, store.Get(context.Background(), Key("1720", "43"), &entry))
}

func TestWarmerRunOnceSkipsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := &stubSource{err: apperr.ErrUpstream}
	svc, _ := newTestService(src, cache.NewMemory(start()), start())

	w, err := NewWarmer(svc, "@hourly", []config.TeamRef{{CentreID: "1", TeamID: "2"}}, zap.New(core))
	require.NoError(t, err)

	assert.Zero(t, w.RunOnce(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("cache warm failed").Len())
}

func TestWarmerRejectsBadSchedule(t *testing.T) {
	svc, _ := newTestService(&stubSource{}, cache.NewMemory(nil), start())
	_, err := NewWarmer(svc, "every tuesday", nil, nil)
	assert.Error(t, err)
}

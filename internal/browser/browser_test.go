package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bwhelper/internal/config"
	"bwhelper/internal/pipeline"
	"bwhelper/internal/writer"
)

var (
	_ writer.Surface    = (*Session)(nil)
	_ pipeline.LivePage = (*Session)(nil)
)

func TestCallExprEncodesArguments(t *testing.T) {
	expr, err := callExpr(`(function(a, b) { return a; })`, `div > p:nth-child(2)`, `say "hi" </script>`)
	require.NoError(t, err)
	assert.Equal(t,
		`((function(a, b) { return a; }))("div > p:nth-child(2)", "say \"hi\" </script>")`,
		expr)

	expr, err = callExpr(`f`, markerArg{Title: "BW: x", Color: "#fff", Size: 8})
	require.NoError(t, err)
	assert.Equal(t, `(f)({"title":"BW: x","color":"#fff","size":8})`, expr)

	_, err = callExpr(`f`, make(chan int))
	assert.Error(t, err)
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, "#e53935", statusColor(pipeline.StatusNoQuestion))
	assert.Equal(t, "#e53935", statusColor(pipeline.StatusAIFailed))
	assert.Equal(t, "#43a047", statusColor(pipeline.StatusFilled))
	assert.Equal(t, "#43a047", statusColor(pipeline.StatusMarked))
	assert.Equal(t, "#ff9800", statusColor(pipeline.StatusBusy))
	assert.Equal(t, "#333", statusColor(pipeline.StatusScanning))
}

func TestObserveNavigation(t *testing.T) {
	s := NewSession(config.Browser{})

	changed, reinstall := s.observe(navState{Hooked: true, Count: 0})
	assert.False(t, changed)
	assert.False(t, reinstall)

	changed, _ = s.observe(navState{Hooked: true, Count: 2})
	assert.True(t, changed)
	changed, _ = s.observe(navState{Hooked: true, Count: 2})
	assert.False(t, changed)

	changed, reinstall = s.observe(navState{Hooked: false})
	assert.True(t, changed)
	assert.True(t, reinstall)
}

func TestSessionNotStarted(t *testing.T) {
	s := NewSession(config.Browser{Headless: true})
	assert.False(t, s.Running())

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, s.SetStatus(context.Background(), "Ready"), ErrNotStarted)
	assert.ErrorIs(t, s.WaitNavigation(canceled()), context.Canceled)
}

func TestAllocatorOptions(t *testing.T) {
	base := len(NewSession(config.Browser{}).allocatorOptions())
	full := len(NewSession(config.Browser{ChromeBinaryPath: "/usr/bin/chromium", UserDataDir: "/tmp/bwh"}).allocatorOptions())
	assert.Equal(t, base+2, full)
}

func canceled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

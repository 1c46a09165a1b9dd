package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publicq/examguard/internal/lockdown"
	"github.com/publicq/examguard/internal/model"
)

func TestMonitorHandleSignalRecordsViolations(t *testing.T) {
	exam := testExam() // blocks tab switch and clipboard
	store := newMemStore(exam)
	mon := NewMonitor(startController(t, store, exam))

	verdict, count, terminated := mon.HandleSignal(context.Background(), lockdown.Signal{
		Kind:      lockdown.SignalClipboardAttempt,
		Clipboard: lockdown.ClipboardPaste,
	})
	assert.Equal(t, model.ViolationCopyPaste, verdict.Violation)
	assert.True(t, verdict.Suppress)
	assert.Equal(t, 1, count)
	assert.False(t, terminated)

	// Benign under this policy: right-click is not blocked.
	verdict, count, terminated = mon.HandleSignal(context.Background(), lockdown.Signal{
		Kind: lockdown.SignalContextMenu,
	})
	assert.False(t, verdict.Violated())
	assert.Equal(t, 1, count, "benign signals leave the counter alone")
	assert.False(t, terminated)
}

func TestMonitorHandleSignalReportsTermination(t *testing.T) {
	exam := testExam() // MaxViolations: 3
	store := newMemStore(exam)
	mon := NewMonitor(startController(t, store, exam))

	hidden := lockdown.Signal{Kind: lockdown.SignalVisibilityChanged, Hidden: true}
	mon.HandleSignal(context.Background(), hidden)
	mon.HandleSignal(context.Background(), hidden)
	_, count, terminated := mon.HandleSignal(context.Background(), hidden)

	assert.Equal(t, 3, count)
	assert.True(t, terminated)
	assert.Equal(t, model.AttemptStatusTerminated, mon.Controller().Status())
}

func TestMonitorBindConsumesSignalSource(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)
	mon := NewMonitor(ctrl)

	src := lockdown.NewChannelSource(8)
	mon.Bind(context.Background(), src)

	src.Emit(lockdown.Signal{Kind: lockdown.SignalVisibilityChanged, Hidden: true})
	src.Emit(lockdown.Signal{Kind: lockdown.SignalClipboardAttempt, Clipboard: lockdown.ClipboardCopy})
	src.Emit(lockdown.Signal{Kind: lockdown.SignalFullscreenChanged, IsFullscreen: false}) // benign: fullscreen not required
	src.Close()
	src.Run()

	assert.Equal(t, 2, ctrl.ViolationCount())
	require.Len(t, store.violations, 2)
}

func TestMonitorBindUnsubscribeStopsDelivery(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)
	mon := NewMonitor(ctrl)

	src := lockdown.NewChannelSource(4)
	unsubscribe := mon.Bind(context.Background(), src)
	unsubscribe()

	src.Emit(lockdown.Signal{Kind: lockdown.SignalVisibilityChanged, Hidden: true})
	src.Close()
	src.Run()

	assert.Zero(t, ctrl.ViolationCount())
}

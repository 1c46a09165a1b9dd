package lockdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publicq/examguard/internal/model"
)

func fullPolicy() model.AntiCheatPolicy {
	return model.AntiCheatPolicy{
		FullscreenRequired: true,
		BlockTabSwitch:     true,
		BlockClipboard:     true,
		BlockRightClick:    true,
		BlockDevTools:      true,
		MaxViolations:      3,
	}
}

func TestEngineClassification(t *testing.T) {
	e := NewEngine(fullPolicy())

	tests := []struct {
		name      string
		sig       Signal
		violation model.ViolationType
		suppress  bool
		reenter   bool
	}{
		{
			name:      "hidden tab",
			sig:       Signal{Kind: SignalVisibilityChanged, Hidden: true},
			violation: model.ViolationTabSwitch,
		},
		{
			name: "tab visible again is benign",
			sig:  Signal{Kind: SignalVisibilityChanged, Hidden: false},
		},
		{
			name:      "copy attempt suppressed",
			sig:       Signal{Kind: SignalClipboardAttempt, Clipboard: ClipboardCopy},
			violation: model.ViolationCopyPaste,
			suppress:  true,
		},
		{
			name:      "context menu suppressed",
			sig:       Signal{Kind: SignalContextMenu},
			violation: model.ViolationRightClick,
			suppress:  true,
		},
		{
			name:      "leaving fullscreen requests re-entry",
			sig:       Signal{Kind: SignalFullscreenChanged, IsFullscreen: false},
			violation: model.ViolationFullscreenExit,
			reenter:   true,
		},
		{
			name: "entering fullscreen is benign",
			sig:  Signal{Kind: SignalFullscreenChanged, IsFullscreen: true},
		},
		{
			name:      "denied fullscreen request",
			sig:       Signal{Kind: SignalFullscreenDenied},
			violation: model.ViolationFullscreenFailed,
		},
		{
			name:      "window blur",
			sig:       Signal{Kind: SignalWindowBlur},
			violation: model.ViolationWindowBlur,
		},
		{
			name:      "ctrl+c",
			sig:       Signal{Kind: SignalKeyPressed, Key: "c", Ctrl: true},
			violation: model.ViolationKeyboardShortcut,
			suppress:  true,
		},
		{
			name:      "meta+v",
			sig:       Signal{Kind: SignalKeyPressed, Key: "V", Meta: true},
			violation: model.ViolationKeyboardShortcut,
			suppress:  true,
		},
		{
			name: "plain c is benign",
			sig:  Signal{Kind: SignalKeyPressed, Key: "c"},
		},
		{
			name:      "F12 opens devtools",
			sig:       Signal{Kind: SignalKeyPressed, Key: "F12"},
			violation: model.ViolationDevTools,
			suppress:  true,
		},
		{
			name:      "alt+tab observed but not suppressible",
			sig:       Signal{Kind: SignalKeyPressed, Key: "Tab", Alt: true},
			violation: model.ViolationAltTab,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Evaluate(tt.sig)
			assert.Equal(t, tt.violation, v.Violation)
			assert.Equal(t, tt.violation != "", v.Violated())
			assert.Equal(t, tt.suppress, v.Suppress)
			assert.Equal(t, tt.reenter, v.ReenterFullscreen)
		})
	}
}

func TestEngineDisabledDetectorsStaySilent(t *testing.T) {
	e := NewEngine(model.AntiCheatPolicy{MaxViolations: 3}) // everything off

	signals := []Signal{
		{Kind: SignalVisibilityChanged, Hidden: true},
		{Kind: SignalClipboardAttempt, Clipboard: ClipboardPaste},
		{Kind: SignalContextMenu},
		{Kind: SignalFullscreenChanged, IsFullscreen: false},
		{Kind: SignalFullscreenDenied},
		{Kind: SignalWindowBlur},
		{Kind: SignalKeyPressed, Key: "c", Ctrl: true},
		{Kind: SignalKeyPressed, Key: "F12"},
		{Kind: SignalKeyPressed, Key: "Tab", Alt: true},
	}
	for _, sig := range signals {
		v := e.Evaluate(sig)
		assert.False(t, v.Violated(), "signal %s should be silent", sig.Kind)
	}
}

func TestEngineIsStateless(t *testing.T) {
	e := NewEngine(fullPolicy())
	sig := Signal{Kind: SignalVisibilityChanged, Hidden: true}

	first := e.Evaluate(sig)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(sig))
	}
}

func TestChannelSourceDeliversAndUnsubscribes(t *testing.T) {
	src := NewChannelSource(4)

	var got []SignalKind
	unsub := src.Subscribe(func(s Signal) { got = append(got, s.Kind) })

	var other int
	src.Subscribe(func(Signal) { other++ })

	src.Emit(Signal{Kind: SignalWindowBlur})
	src.Emit(Signal{Kind: SignalContextMenu})
	src.Close()
	src.Run()

	require.Equal(t, []SignalKind{SignalWindowBlur, SignalContextMenu}, got)
	require.Equal(t, 2, other)

	// After unsubscribe no further delivery.
	src2 := NewChannelSource(1)
	count := 0
	unsub = src2.Subscribe(func(Signal) { count++ })
	unsub()
	src2.Emit(Signal{Kind: SignalWindowBlur})
	src2.Close()
	src2.Run()
	require.Zero(t, count)
}

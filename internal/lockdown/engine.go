package lockdown

import (
	"strings"

	"github.com/publicq/examguard/internal/model"
)

// Verdict is the engine's classification of one signal. A zero Verdict
// (Violation == "") means the signal is benign under the active policy.
type Verdict struct {
	// Violation is the classified violation type, empty if none.
	Violation model.ViolationType
	// Suppress instructs the client to prevent the underlying browser
	// action (clipboard write, context menu, key default).
	Suppress bool
	// ReenterFullscreen instructs the client to request fullscreen again.
	// Advisory and fire-and-forget; it may race with the student's next
	// interaction.
	ReenterFullscreen bool
	// Details is a short free-text annotation for the ledger.
	Details string
}

// Violated reports whether the verdict carries a violation.
func (v Verdict) Violated() bool { return v.Violation != "" }

// Engine translates raw environment signals into violation classifications
// under a configured AntiCheatPolicy. It is purely reactive and stateless:
// it holds no counters, and all accumulation is the session controller's
// responsibility. This keeps the classification rules testable without any
// session or network dependency.
type Engine struct {
	policy model.AntiCheatPolicy
}

// NewEngine creates an Engine for the given policy.
func NewEngine(policy model.AntiCheatPolicy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the active policy.
func (e *Engine) Policy() model.AntiCheatPolicy { return e.policy }

// clipboardKeys are the ctrl/meta combinations treated as clipboard
// shortcuts (copy, paste, cut, select-all).
var clipboardKeys = map[string]struct{}{
	"c": {}, "v": {}, "x": {}, "a": {},
}

// Evaluate classifies a single signal. No violation is emitted when the
// corresponding policy flag is disabled.
func (e *Engine) Evaluate(sig Signal) Verdict {
	switch sig.Kind {
	case SignalVisibilityChanged:
		if e.policy.BlockTabSwitch && sig.Hidden {
			return Verdict{Violation: model.ViolationTabSwitch}
		}

	case SignalClipboardAttempt:
		if e.policy.BlockClipboard {
			return Verdict{
				Violation: model.ViolationCopyPaste,
				Suppress:  true,
				Details:   string(sig.Clipboard),
			}
		}

	case SignalContextMenu:
		if e.policy.BlockRightClick {
			return Verdict{Violation: model.ViolationRightClick, Suppress: true}
		}

	case SignalFullscreenChanged:
		if e.policy.FullscreenRequired && !sig.IsFullscreen {
			return Verdict{
				Violation:         model.ViolationFullscreenExit,
				ReenterFullscreen: true,
			}
		}

	case SignalFullscreenDenied:
		// The one-shot fullscreen request at session start was refused by
		// the platform. Recorded, but it only counts toward termination
		// when the policy says so.
		if e.policy.FullscreenRequired {
			return Verdict{Violation: model.ViolationFullscreenFailed}
		}

	case SignalWindowBlur:
		if e.policy.BlockTabSwitch {
			return Verdict{Violation: model.ViolationWindowBlur}
		}

	case SignalKeyPressed:
		return e.evaluateKey(sig)
	}

	return Verdict{}
}

func (e *Engine) evaluateKey(sig Signal) Verdict {
	key := strings.ToLower(sig.Key)

	if e.policy.BlockClipboard && (sig.Ctrl || sig.Meta) {
		if _, ok := clipboardKeys[key]; ok {
			return Verdict{
				Violation: model.ViolationKeyboardShortcut,
				Suppress:  true,
				Details:   describeChord(sig),
			}
		}
	}

	if e.policy.BlockDevTools && key == "f12" {
		return Verdict{Violation: model.ViolationDevTools, Suppress: true}
	}

	// Alt+Tab is observed but cannot be suppressed; the browser never owns
	// that chord.
	if e.policy.BlockTabSwitch && sig.Alt && key == "tab" {
		return Verdict{Violation: model.ViolationAltTab}
	}

	return Verdict{}
}

func describeChord(sig Signal) string {
	mod := "ctrl"
	if sig.Meta {
		mod = "meta"
	}
	return mod + "+" + strings.ToLower(sig.Key)
}

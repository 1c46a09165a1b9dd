package model

import "time"

// ViolationType classifies a detected integrity violation.
type ViolationType string

const (
	ViolationTabSwitch        ViolationType = "tab-switch"
	ViolationCopyPaste        ViolationType = "copy-paste"
	ViolationRightClick       ViolationType = "right-click"
	ViolationFullscreenExit   ViolationType = "fullscreen-exit"
	ViolationWindowBlur       ViolationType = "window-blur"
	ViolationKeyboardShortcut ViolationType = "keyboard-shortcut"
	ViolationDevTools         ViolationType = "dev-tools"
	ViolationAltTab           ViolationType = "alt-tab"
	ViolationFullscreenFailed ViolationType = "fullscreen-failed"
)

// Valid reports whether t is a recognized violation type.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabSwitch, ViolationCopyPaste, ViolationRightClick,
		ViolationFullscreenExit, ViolationWindowBlur, ViolationKeyboardShortcut,
		ViolationDevTools, ViolationAltTab, ViolationFullscreenFailed:
		return true
	}
	return false
}

// ViolationEvent is one entry in an attempt's append-only violation ledger.
// Immutable once appended.
type ViolationEvent struct {
	Type      ViolationType `json:"type"`
	Timestamp time.Time     `json:"timestamp_utc"`
	Details   string        `json:"details,omitempty"`
}

// NewViolationEvent stamps a violation with the current UTC time.
func NewViolationEvent(t ViolationType, details string) ViolationEvent {
	return ViolationEvent{Type: t, Timestamp: time.Now().UTC(), Details: details}
}

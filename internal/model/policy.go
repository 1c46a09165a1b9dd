package model

// AntiCheatPolicy configures the lockdown detectors for an exam. Each flag
// independently enables one detector; maxViolations is the termination
// threshold for countable violations.
type AntiCheatPolicy struct {
	FullscreenRequired    bool `json:"fullscreen_required"`
	BlockTabSwitch        bool `json:"block_tab_switch"`
	BlockClipboard        bool `json:"block_clipboard"`
	BlockRightClick       bool `json:"block_right_click"`
	BlockDevTools         bool `json:"block_dev_tools"`
	MaxViolations         int  `json:"max_violations"`
	// CountFullscreenFailure makes a denied fullscreen request at session
	// start count toward MaxViolations. Off by default: a platform refusing
	// fullscreen is not by itself evidence of cheating.
	CountFullscreenFailure bool `json:"count_fullscreen_failure"`
}

// DefaultAntiCheatPolicy is applied when an exam is created without an
// explicit policy.
func DefaultAntiCheatPolicy() AntiCheatPolicy {
	return AntiCheatPolicy{
		FullscreenRequired: true,
		BlockTabSwitch:     true,
		BlockClipboard:     true,
		BlockRightClick:    true,
		BlockDevTools:      true,
		MaxViolations:      3,
	}
}

// Threshold returns the termination threshold, defaulting to 3 when the
// stored policy predates the field or was saved as zero.
func (p AntiCheatPolicy) Threshold() int {
	if p.MaxViolations < 1 {
		return 3
	}
	return p.MaxViolations
}

// Counts reports whether a violation of the given type advances the
// termination counter under this policy.
func (p AntiCheatPolicy) Counts(t ViolationType) bool {
	if t == ViolationFullscreenFailed {
		return p.CountFullscreenFailure
	}
	return true
}

package lockdown

// SignalKind identifies a raw environment signal reported by the exam
// client.
type SignalKind string

const (
	SignalVisibilityChanged SignalKind = "visibility-changed"
	SignalClipboardAttempt  SignalKind = "clipboard-attempt"
	SignalContextMenu       SignalKind = "context-menu-attempt"
	SignalFullscreenChanged SignalKind = "fullscreen-changed"
	SignalFullscreenDenied  SignalKind = "fullscreen-denied"
	SignalWindowBlur        SignalKind = "window-blur"
	SignalKeyPressed        SignalKind = "key-pressed"
)

// ClipboardKind distinguishes clipboard operations.
type ClipboardKind string

const (
	ClipboardCopy  ClipboardKind = "copy"
	ClipboardPaste ClipboardKind = "paste"
	ClipboardCut   ClipboardKind = "cut"
)

// Signal is one raw environment observation. Only the fields relevant to
// the kind are populated.
type Signal struct {
	Kind SignalKind `json:"kind"`

	// visibility-changed
	Hidden bool `json:"hidden,omitempty"`

	// clipboard-attempt
	Clipboard ClipboardKind `json:"clipboard,omitempty"`

	// fullscreen-changed
	IsFullscreen bool `json:"is_fullscreen,omitempty"`

	// key-pressed
	Key  string `json:"key,omitempty"`
	Ctrl bool   `json:"ctrl,omitempty"`
	Meta bool   `json:"meta,omitempty"`
	Alt  bool   `json:"alt,omitempty"`
}

// SignalHandler consumes signals delivered by a SignalSource.
type SignalHandler func(Signal)

// SignalSource abstracts where signals come from, so the engine and session
// controller can be exercised with synthetic signals in tests and by the
// WebSocket transport in production. Subscribe returns an unsubscribe
// function; delivery stops after it is called.
type SignalSource interface {
	Subscribe(SignalHandler) (unsubscribe func())
}

// ChannelSource is a SignalSource fed through a Go channel. The zero value
// is not usable; construct with NewChannelSource and call Run (typically in
// a goroutine) to pump signals to subscribers.
type ChannelSource struct {
	ch       chan Signal
	handlers []SignalHandler
}

// NewChannelSource creates a ChannelSource with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Signal, buffer)}
}

// Subscribe registers a handler. Not safe for concurrent use with Run;
// register all handlers before pumping.
func (s *ChannelSource) Subscribe(h SignalHandler) func() {
	idx := len(s.handlers)
	s.handlers = append(s.handlers, h)
	return func() { s.handlers[idx] = nil }
}

// Emit queues a signal for delivery.
func (s *ChannelSource) Emit(sig Signal) {
	s.ch <- sig
}

// Close stops Run after the queue drains.
func (s *ChannelSource) Close() {
	close(s.ch)
}

// Run delivers queued signals to all live subscribers until Close.
func (s *ChannelSource) Run() {
	for sig := range s.ch {
		for _, h := range s.handlers {
			if h != nil {
				h(sig)
			}
		}
	}
}

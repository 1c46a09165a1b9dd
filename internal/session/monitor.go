package session

import (
	"context"

	"github.com/publicq/examguard/internal/lockdown"
)

// Monitor binds a lockdown engine to a controller: signals in, classified
// verdicts out, ledger entries recorded as a side effect. The transport
// layer (WebSocket in production, a ChannelSource in tests) only sees
// signals and verdicts; it never touches the ledger directly.
type Monitor struct {
	engine *lockdown.Engine
	ctrl   *Controller
}

// NewMonitor creates a Monitor over the controller's exam policy.
func NewMonitor(ctrl *Controller) *Monitor {
	return &Monitor{
		engine: lockdown.NewEngine(ctrl.Exam().Policy),
		ctrl:   ctrl,
	}
}

// Controller exposes the underlying session controller.
func (m *Monitor) Controller() *Controller { return m.ctrl }

// HandleSignal classifies one signal and, when it violates the policy,
// records it on the attempt. The returned verdict carries the directives
// (suppress, re-enter fullscreen) the client must apply.
func (m *Monitor) HandleSignal(ctx context.Context, sig lockdown.Signal) (lockdown.Verdict, int, bool) {
	verdict := m.engine.Evaluate(sig)
	if !verdict.Violated() {
		return verdict, m.ctrl.ViolationCount(), false
	}
	count, terminated := m.ctrl.RecordViolation(ctx, verdict.Violation, verdict.Details)
	return verdict, count, terminated
}

// Bind subscribes the monitor to a signal source. Returned function
// unsubscribes. Verdict directives are dropped on this path; use
// HandleSignal directly when the transport must relay them.
func (m *Monitor) Bind(ctx context.Context, src lockdown.SignalSource) func() {
	return src.Subscribe(func(sig lockdown.Signal) {
		m.HandleSignal(ctx, sig)
	})
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/observability"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/google/uuid"
)

// Built-in ports every worker carries.
const (
	SlotEnable     = "enable"
	SlotDisable    = "disable"
	EventProcessed = "processed"
)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger. The worker adds its own "node" attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMarkerPolicy sets the policy used to absorb NoMessage markers.
func WithMarkerPolicy(policy MarkerPolicy) Option {
	return func(w *Worker) {
		w.policy = policy
	}
}

// WithFatalHandler registers the callback invoked once the worker halts on a
// fatal failure. It runs on the worker's execution context and must not block.
func WithFatalHandler(fn func(w *Worker, err *domain.FatalError)) Option {
	return func(w *Worker) {
		w.onFatal = fn
	}
}

// WithExecutor assigns the initial execution context.
func WithExecutor(e ports.Executor) Option {
	return func(w *Worker) {
		w.initial = e
	}
}

type executorRef struct{ ports.Executor }

// Worker is the execution agent of one node instance.
//
// Every operation that touches the node's ports or lifecycle runs as a task on
// the worker's execution context, under the worker mutex. Other workers only
// ever enqueue tasks here; they never mutate this worker directly.
type Worker struct {
	mu sync.Mutex

	id        uuid.UUID
	processor ports.Processor
	ticker    ports.Ticker

	infoMu  sync.RWMutex
	node    *domain.NodeState
	lastErr error

	inputs  []*Input
	outputs []*Output
	slots   []*Slot
	events  []*Event
	in      *InputTransition
	out     *OutputTransition

	exec        atomic.Pointer[executorRef]
	initial     ports.Executor
	backlogMu   sync.Mutex
	backlog     []func()
	pendingExec ports.Executor

	state           atomic.Int32
	enabledState    atomic.Bool
	processing      atomic.Bool
	halted          atomic.Bool
	killed          atomic.Bool
	awaitingOutputs bool
	cycle           uint64
	mode            domain.ExecutionMode
	active          atomic.Bool
	started         time.Time

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	policy    MarkerPolicy
	onFatal   func(*Worker, *domain.FatalError)
	logger    *slog.Logger
	processed *Event
	subs      observability.Subscriptions

	// Stream publishes the worker's events. Nothing in the engine depends on
	// whether it has subscribers.
	Stream observability.Signal[domain.Event]
}

// NewWorker instantiates a node: it configures the processor with the node
// dictionary, lets it declare its ports and adds the built-in slots and event.
func NewWorker(state *domain.NodeState, p ports.Processor, opts ...Option) (*Worker, error) {
	if state == nil {
		state = domain.NewNodeState("")
	}
	if state.UUID == uuid.Nil {
		state.UUID = uuid.New()
	}
	w := &Worker{
		id:        state.UUID,
		processor: p,
		node:      state.Clone(),
		policy:    ForwardMarkers,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("node", w.DisplayName())
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if c, ok := p.(ports.Configurable); ok {
		if err := c.Configure(w.Params()); err != nil {
			return nil, fmt.Errorf("failed to configure node %s: %w", w.DisplayName(), err)
		}
	}

	b := &portBuilder{w: w, names: make(map[string]struct{})}
	if err := p.Setup(b); err != nil {
		return nil, fmt.Errorf("failed to set up node %s: %w", w.DisplayName(), err)
	}
	b.AddSlot(SlotEnable, func(any) { w.setProcessingEnabled(true) })
	b.AddSlot(SlotDisable, func(any) { w.setProcessingEnabled(false) })
	b.AddEvent(EventProcessed)
	if b.err != nil {
		return nil, fmt.Errorf("invalid ports on node %s: %w", w.DisplayName(), b.err)
	}
	w.processed, _ = w.Event(EventProcessed)

	if t, ok := p.(ports.Ticker); ok && len(w.inputs) == 0 {
		w.ticker = t
	}
	w.in = newInputTransition(w.inputs)
	w.out = newOutputTransition(w.outputs)

	if w.initial != nil {
		w.SetExecutor(w.initial)
		w.initial = nil
	}
	return w, nil
}

func (w *Worker) ID() uuid.UUID             { return w.id }
func (w *Worker) Processor() ports.Processor { return w.processor }
func (w *Worker) Inputs() []*Input           { return w.inputs }
func (w *Worker) Outputs() []*Output         { return w.outputs }
func (w *Worker) Slots() []*Slot             { return w.slots }
func (w *Worker) Events() []*Event           { return w.events }

func (w *Worker) InputTransition() *InputTransition   { return w.in }
func (w *Worker) OutputTransition() *OutputTransition { return w.out }

// Type returns the registered node type.
func (w *Worker) Type() string {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	return w.node.Type
}

// DisplayName returns the label, or type and short id when unlabelled.
func (w *Worker) DisplayName() string {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	if w.node.Label != "" {
		return w.node.Label
	}
	short := w.id.String()[:8]
	if w.node.Type == "" {
		return short
	}
	return w.node.Type + "_" + short
}

// NodeState returns a copy of the persisted state.
func (w *Worker) NodeState() *domain.NodeState {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	s := w.node.Clone()
	s.Active = w.active.Load()
	return s
}

// Params returns a copy of the node dictionary.
func (w *Worker) Params() map[string]any {
	return w.NodeState().Dictionary
}

func (w *Worker) ExecutionMode() domain.ExecutionMode {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	return w.node.ExecutionMode
}

// SetExecutionMode takes effect with the next cycle.
func (w *Worker) SetExecutionMode(m domain.ExecutionMode) {
	w.infoMu.Lock()
	w.node.ExecutionMode = m
	w.infoMu.Unlock()
}

// SetThread records the execution context assignment in the node state.
func (w *Worker) SetThread(id int, name string) {
	w.infoMu.Lock()
	changed := w.node.ThreadID != id || w.node.ThreadName != name
	w.node.ThreadID = id
	w.node.ThreadName = name
	w.infoMu.Unlock()
	if changed {
		w.emit(domain.Event{Type: domain.EventContextSwitched, Context: id, Message: name})
	}
}

func (w *Worker) IsProcessingEnabled() bool {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	return w.node.Enabled
}

// SetProcessingEnabled toggles whether node logic runs. A disabled node
// forwards NoMessage on its outputs and releases its inputs.
func (w *Worker) SetProcessingEnabled(enabled bool) {
	w.schedule(func() error {
		w.setProcessingEnabled(enabled)
		return nil
	})
}

func (w *Worker) setProcessingEnabled(enabled bool) {
	w.infoMu.Lock()
	changed := w.node.Enabled != enabled
	w.node.Enabled = enabled
	w.infoMu.Unlock()
	if !changed {
		return
	}
	if !enabled {
		w.setError(nil)
	}
	w.logger.Debug("processing enabled changed", "enabled", enabled)
	w.emit(domain.Event{Type: domain.EventEnabledChanged, Enabled: enabled})
	w.triggerTryProcess()
}

// Error returns the last node error, recoverable or fatal.
func (w *Worker) Error() error {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	return w.lastErr
}

func (w *Worker) setError(err error) {
	w.infoMu.Lock()
	w.lastErr = err
	w.infoMu.Unlock()
}

// State returns the observable state. ENABLED is reported when the worker is
// idle and would fire on the next readiness check.
func (w *Worker) State() domain.WorkerState {
	raw := w.rawState()
	if raw == domain.StateIdle && w.enabledState.Load() {
		return domain.StateEnabled
	}
	return raw
}

func (w *Worker) rawState() domain.WorkerState {
	return domain.WorkerState(w.state.Load())
}

func (w *Worker) setState(s domain.WorkerState) {
	if old := domain.WorkerState(w.state.Swap(int32(s))); old != s {
		w.emit(domain.Event{Type: domain.EventStateChanged})
	}
}

func (w *Worker) IsProcessing() bool { return w.processing.Load() }
func (w *Worker) IsHalted() bool     { return w.halted.Load() }
func (w *Worker) IsKilled() bool     { return w.killed.Load() }

// IsEnabled reports whether every port and connection is enabled.
func (w *Worker) IsEnabled() bool {
	return w.in.IsEnabled() && w.out.IsEnabled()
}

// IsSink reports whether no established connection leaves this node.
func (w *Worker) IsSink() bool {
	return len(w.out.Connections()) == 0
}

// IsSource reports whether the node ticks instead of firing on inputs.
func (w *Worker) IsSource() bool { return w.ticker != nil }

// canProcess must run on the worker's task.
func (w *Worker) canProcess() bool {
	if w.processing.Load() || w.halted.Load() || w.killed.Load() {
		return false
	}
	if rc, ok := w.processor.(ports.ReadinessChecker); ok && !rc.CanProcess() {
		return false
	}
	return w.canReceive() && w.canSend()
}

func (w *Worker) canReceive() bool { return w.in.CanReceive() }

// canSend: no unacknowledged backlog. Event deliveries are queued on the
// receiving context and always accepted.
func (w *Worker) canSend() bool { return w.out.CanStartSendingMessages() }

func (w *Worker) refreshEnabled() {
	w.enabledState.Store(!w.halted.Load() && w.rawState() == domain.StateIdle && w.IsEnabled() && w.canProcess())
}

// Executor returns the current execution context.
func (w *Worker) Executor() ports.Executor {
	if ref := w.exec.Load(); ref != nil {
		return ref.Executor
	}
	return nil
}

// SetExecutor installs e immediately and flushes tasks queued before the
// first assignment. Use SwitchContext for live reassignment.
func (w *Worker) SetExecutor(e ports.Executor) {
	w.backlogMu.Lock()
	old := w.exec.Swap(&executorRef{e})
	backlog := w.backlog
	w.backlog = nil
	w.backlogMu.Unlock()

	if old == nil {
		for _, task := range backlog {
			e.Execute(task)
		}
	}
}

// SwitchContext moves the worker to e at the next safe point. A worker in the
// middle of a cycle keeps its context until the cycle completes.
func (w *Worker) SwitchContext(e ports.Executor) {
	if w.exec.Load() == nil {
		w.SetExecutor(e)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing.Load() {
		w.pendingExec = e
		return
	}
	w.exec.Store(&executorRef{e})
}

func (w *Worker) applyPendingExecutor() {
	if w.pendingExec != nil {
		w.exec.Store(&executorRef{w.pendingExec})
		w.pendingExec = nil
	}
}

func (w *Worker) schedule(task func() error) {
	run := func() { w.run(task) }
	if ref := w.exec.Load(); ref != nil {
		ref.Execute(run)
		return
	}
	w.backlogMu.Lock()
	if ref := w.exec.Load(); ref != nil {
		w.backlogMu.Unlock()
		ref.Execute(run)
		return
	}
	w.backlog = append(w.backlog, run)
	w.backlogMu.Unlock()
}

// run executes one task under the worker mutex. A task only returns an error
// for fatal failures; those, and any panic, halt the worker.
func (w *Worker) run(task func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.halted.Load() {
		return
	}
	if err := w.guard(task); err != nil {
		w.halt(w.fatal(err))
		return
	}
	w.refreshEnabled()
}

func (w *Worker) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = w.fatal(r)
		}
	}()
	return fn()
}

func (w *Worker) fatal(v any) *domain.FatalError {
	var fe *domain.FatalError
	switch x := v.(type) {
	case *domain.FatalError:
		return x
	case error:
		if errors.As(x, &fe) {
			return fe
		}
		return &domain.FatalError{Node: w.DisplayName(), Cause: x}
	default:
		return &domain.FatalError{Node: w.DisplayName(), Cause: fmt.Errorf("panic: %v", x)}
	}
}

func (w *Worker) halt(err *domain.FatalError) {
	w.halted.Store(true)
	w.processing.Store(false)
	w.enabledState.Store(false)
	w.setState(domain.StateIdle)
	w.setError(err)
	w.cancelCycle()
	w.logger.Error("node halted", "err", err)
	w.emit(domain.Event{Type: domain.EventFatal, Message: err.Error()})
	if w.onFatal != nil {
		w.onFatal(w, err)
	}
}

// Halt stops the worker from outside, e.g. because an upstream node failed
// fatally. In-flight work is not interrupted but nothing fires afterwards.
func (w *Worker) Halt(cause error) {
	if w.halted.Swap(true) {
		return
	}
	w.enabledState.Store(false)
	w.cancelCycle()
	w.setError(&domain.FatalError{Node: w.DisplayName(), Cause: cause})
	w.logger.Warn("node halted", "err", cause)
	w.emit(domain.Event{Type: domain.EventFatal, Message: cause.Error()})
}

func (w *Worker) context() context.Context {
	w.ctxMu.Lock()
	defer w.ctxMu.Unlock()
	return w.ctx
}

func (w *Worker) cancelCycle() {
	w.ctxMu.Lock()
	defer w.ctxMu.Unlock()
	w.cancel()
}

// Kill prevents the next firing and cancels the context handed to an
// in-flight processing call. The current cycle still completes.
func (w *Worker) Kill() {
	w.killed.Store(true)
	w.enabledState.Store(false)
	w.cancelCycle()
	w.logger.Info("node killed")
}

// Reset discards pending state. It is only allowed while the worker is idle
// and must not be called from node logic.
func (w *Worker) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing.Load() || w.rawState() != domain.StateIdle {
		return fmt.Errorf("failed to reset %s: %w", w.DisplayName(), domain.ErrNodeBusy)
	}
	if r, ok := w.processor.(ports.Resetter); ok {
		r.Reset()
	}
	w.in.Reset()
	w.out.Reset()
	w.awaitingOutputs = false
	w.active.Store(false)
	w.setError(nil)
	w.killed.Store(false)
	w.halted.Store(false)

	w.ctxMu.Lock()
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.ctxMu.Unlock()

	w.logger.Info("node reset")
	w.refreshEnabled()
	w.triggerTryProcess()
	return nil
}

// Teardown disconnects every port and releases every subscription the worker
// holds. The worker is unusable afterwards.
func (w *Worker) Teardown() {
	w.halted.Store(true)
	w.cancelCycle()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.teardown()
}

// TryTeardown is Teardown for an idle worker. It fails with ErrNodeBusy,
// leaving the worker untouched, while a processing cycle is in flight.
func (w *Worker) TryTeardown() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing.Load() {
		return domain.ErrNodeBusy
	}
	w.halted.Store(true)
	w.cancelCycle()
	w.teardown()
	return nil
}

func (w *Worker) teardown() {
	for _, in := range w.inputs {
		if c := in.Connection(); c != nil {
			Disconnect(c)
		}
	}
	for _, o := range w.outputs {
		for _, c := range o.Connections() {
			Disconnect(c)
		}
	}
	for _, e := range w.events {
		for _, s := range e.Slots() {
			DisconnectEvent(e, s)
		}
	}
	for _, s := range w.slots {
		for _, e := range s.Sources() {
			DisconnectEvent(e, s)
		}
	}
	w.subs.Close()
}

// Own ties a subscription to the worker's lifetime.
func (w *Worker) Own(sub *observability.Subscription) {
	w.subs.Add(sub)
}

// TriggerTryProcess schedules a readiness check.
func (w *Worker) TriggerTryProcess() {
	w.schedule(w.tryProcess)
}

func (w *Worker) triggerTryProcess() { w.TriggerTryProcess() }

func (w *Worker) triggerOutputCheck() {
	w.schedule(w.checkOutputs)
}

func (w *Worker) tryProcess() error {
	if w.killed.Load() {
		return nil
	}
	if w.ticker != nil {
		return w.tick()
	}
	if w.processing.Load() || w.rawState() != domain.StateIdle {
		return nil
	}
	if !w.in.FireIfPossible(w.IsEnabled() && w.canProcess()) {
		return nil
	}
	w.setState(domain.StateFired)
	return w.startProcessingMessages()
}

// startProcessingMessages runs one cycle on the inputs snapshotted by the
// input transition. Markers short-circuit node logic.
func (w *Worker) startProcessingMessages() error {
	w.processing.Store(true)
	w.cycle++
	w.mode = w.ExecutionMode()
	w.out.ClearBuffer()

	allPresent := true
	var eos, noMessage *domain.Token
	for _, in := range w.inputs {
		tok := in.token
		if tok == nil {
			if !in.IsOptional() {
				allPresent = false
			}
			continue
		}
		if tok.IsActive() {
			w.active.Store(true)
		}
		switch {
		case tok.IsEndOfSequence():
			if eos == nil {
				eos = tok
			}
		case tok.IsNoMessage():
			if !in.IsOptional() {
				allPresent = false
			}
			if noMessage == nil && in.IsConnected() {
				noMessage = tok
			}
		}
	}

	mp, _ := w.processor.(ports.MarkerProcessor)
	if eos != nil {
		if mp != nil {
			mp.ProcessMarker(eos)
		}
		w.logger.Debug("forwarding end of sequence")
		w.out.PublishMarker(domain.EndOfSequence())
		w.forwardMessages()
		w.signalMessagesProcessed(false)
		return nil
	}
	if noMessage != nil && mp != nil && mp.ProcessNoMessageMarkers() {
		mp.ProcessMarker(noMessage)
	}
	if !allPresent {
		if w.policy.CanDropNoMessage(w.id) {
			w.logger.Debug("absorbing no-message marker")
			w.signalMessagesProcessed(true)
			return nil
		}
		w.forwardMessages()
		w.signalMessagesProcessed(false)
		return nil
	}

	if !w.IsProcessingEnabled() {
		w.forwardMessages()
		w.signalMessagesProcessed(false)
		return nil
	}

	w.setState(domain.StateProcessing)
	w.started = time.Now()
	w.emit(domain.Event{Type: domain.EventProcessingStarted})

	io := &nodeIO{w: w}
	ctx := w.context()
	if ap, ok := w.processor.(ports.AsyncProcessor); ok {
		done := w.continuation(io, w.cycle)
		if err := w.guard(func() error { return ap.ProcessAsync(ctx, io, done) }); err != nil {
			return w.finishProcessing(err)
		}
		return nil
	}
	err := w.guard(func() error { return w.processor.Process(ctx, io) })
	return w.finishProcessing(err)
}

func (w *Worker) continuation(io ports.IO, cycle uint64) ports.Continuation {
	var once sync.Once
	return func(finish func(ports.IO) error) {
		once.Do(func() {
			w.schedule(func() error {
				if !w.processing.Load() || w.cycle != cycle {
					return nil
				}
				var err error
				if finish != nil {
					err = w.guard(func() error { return finish(io) })
				}
				return w.finishProcessing(err)
			})
		})
	}
}

func (w *Worker) finishProcessing(err error) error {
	if !w.processing.Load() {
		return nil
	}
	elapsed := time.Since(w.started)
	if err != nil && errors.Is(err, domain.ErrUnrecoverable) {
		return w.fatal(err)
	}
	if err != nil {
		w.setError(&domain.NodeError{Node: w.DisplayName(), Cause: err})
		w.logger.Warn("node processing failed", "err", err)
		w.emit(domain.Event{Type: domain.EventErrorRaised, Message: err.Error()})
		w.out.ClearBuffer()
		w.forwardMessages()
		w.emitFinished(elapsed)
		w.signalMessagesProcessed(false)
		return nil
	}

	w.setError(nil)
	w.forwardMessages()
	w.emitFinished(elapsed)
	w.processed.Trigger(nil)
	w.signalMessagesProcessed(false)
	return nil
}

// forwardMessages commits the outputs. Sending an active token deactivates
// the node.
func (w *Worker) forwardMessages() {
	active := w.active.Load()
	committed, written := w.out.SendMessages(active)
	for _, o := range committed {
		w.emit(domain.Event{Type: domain.EventTokenCommitted, Port: o.Name(), Sequence: o.seq.Load()})
	}
	if active && written > 0 {
		w.active.Store(false)
	}
}

// signalMessagesProcessed ends the cycle. Inputs are acknowledged right away
// when the cycle was aborted, in pipelining mode or when nothing is in flight
// downstream; otherwise once every outgoing connection is acknowledged.
func (w *Worker) signalMessagesProcessed(aborted bool) {
	w.processing.Store(false)
	w.setState(domain.StateIdle)
	w.applyPendingExecutor()

	if aborted || w.mode == domain.Pipelining || !w.out.InFlight() {
		w.in.NotifyMessageProcessed()
	} else {
		w.awaitingOutputs = true
	}
	w.triggerTryProcess()
}

func (w *Worker) checkOutputs() error {
	if w.out.checkIdle() {
		w.outgoingMessagesProcessed()
	}
	return nil
}

func (w *Worker) outgoingMessagesProcessed() {
	if w.awaitingOutputs {
		w.awaitingOutputs = false
		w.in.NotifyMessageProcessed()
	}
	w.triggerTryProcess()
}

func (w *Worker) tick() error {
	if w.processing.Load() || w.rawState() != domain.StateIdle {
		return nil
	}
	if !w.IsProcessingEnabled() || !w.IsEnabled() || !w.canProcess() || !w.ticker.CanTick() {
		return nil
	}
	w.setState(domain.StateFired)
	w.processing.Store(true)
	w.cycle++
	w.mode = w.ExecutionMode()
	w.out.ClearBuffer()

	w.setState(domain.StateProcessing)
	w.started = time.Now()
	w.emit(domain.Event{Type: domain.EventProcessingStarted})

	var produced bool
	ctx := w.context()
	err := w.guard(func() error {
		var err error
		produced, err = w.ticker.Tick(ctx, &nodeIO{w: w})
		return err
	})
	elapsed := time.Since(w.started)
	if err != nil && errors.Is(err, domain.ErrUnrecoverable) {
		return w.fatal(err)
	}
	if err != nil {
		w.setError(&domain.NodeError{Node: w.DisplayName(), Cause: err})
		w.logger.Warn("node tick failed", "err", err)
		w.emit(domain.Event{Type: domain.EventErrorRaised, Message: err.Error()})
		w.out.ClearBuffer()
		w.forwardMessages()
		produced = false
	} else {
		w.setError(nil)
		if produced {
			w.forwardMessages()
		}
	}
	w.emitFinished(elapsed)
	if produced {
		w.processed.Trigger(nil)
	}

	w.processing.Store(false)
	w.setState(domain.StateIdle)
	w.applyPendingExecutor()
	// A failed tick is retried once its NoMessage has been acknowledged.
	if produced && !w.out.InFlight() {
		w.triggerTryProcess()
	}
	return nil
}

func (w *Worker) emitFinished(elapsed time.Duration) {
	w.emit(domain.Event{Type: domain.EventProcessingFinished, Duration: elapsed.Seconds()})
}

func (w *Worker) emit(e domain.Event) {
	if w.Stream.Len() == 0 {
		return
	}
	e.Timestamp = time.Now()
	e.Node = w.id
	e.Label = w.DisplayName()
	e.State = w.State()
	w.Stream.Emit(e)
}

// Port lookups.

func (w *Worker) Input(name string) (*Input, error) {
	for _, in := range w.inputs {
		if in.Name() == name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("input %q on %s: %w", name, w.DisplayName(), domain.ErrPortNotFound)
}

func (w *Worker) Output(name string) (*Output, error) {
	for _, o := range w.outputs {
		if o.Name() == name {
			return o, nil
		}
	}
	return nil, fmt.Errorf("output %q on %s: %w", name, w.DisplayName(), domain.ErrPortNotFound)
}

func (w *Worker) Slot(name string) (*Slot, error) {
	for _, s := range w.slots {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("slot %q on %s: %w", name, w.DisplayName(), domain.ErrPortNotFound)
}

func (w *Worker) Event(name string) (*Event, error) {
	for _, e := range w.events {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("event %q on %s: %w", name, w.DisplayName(), domain.ErrPortNotFound)
}

// Port resolves a port id to *Input, *Output, *Slot or *Event.
func (w *Worker) Port(id domain.PortID) (any, error) {
	if id.Node != w.id || id.Index < 0 {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrPortNotFound)
	}
	switch id.Direction {
	case domain.DirInput:
		if id.Index < len(w.inputs) {
			return w.inputs[id.Index], nil
		}
	case domain.DirOutput:
		if id.Index < len(w.outputs) {
			return w.outputs[id.Index], nil
		}
	case domain.DirSlot:
		if id.Index < len(w.slots) {
			return w.slots[id.Index], nil
		}
	case domain.DirEvent:
		if id.Index < len(w.events) {
			return w.events[id.Index], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, domain.ErrPortNotFound)
}

type portBuilder struct {
	w     *Worker
	names map[string]struct{}
	err   error
}

func (b *portBuilder) claim(kind, name string) bool {
	key := kind + ":" + name
	if name == "" {
		b.err = errors.Join(b.err, fmt.Errorf("%s without a name", kind))
		return false
	}
	if _, dup := b.names[key]; dup {
		b.err = errors.Join(b.err, fmt.Errorf("duplicate %s %q", kind, name))
		return false
	}
	b.names[key] = struct{}{}
	return true
}

func (b *portBuilder) AddInput(spec domain.PortSpec) {
	if !b.claim("input", spec.Name) {
		return
	}
	in := &Input{}
	in.init(b.w, domain.DirInput, len(b.w.inputs), spec)
	b.w.inputs = append(b.w.inputs, in)
}

func (b *portBuilder) AddOutput(spec domain.PortSpec) {
	if !b.claim("output", spec.Name) {
		return
	}
	o := &Output{}
	o.init(b.w, domain.DirOutput, len(b.w.outputs), spec)
	b.w.outputs = append(b.w.outputs, o)
}

func (b *portBuilder) AddSlot(name string, handler func(payload any)) {
	if !b.claim("slot", name) {
		return
	}
	s := &Slot{handler: handler}
	s.init(b.w, domain.DirSlot, len(b.w.slots), domain.PortSpec{Name: name})
	b.w.slots = append(b.w.slots, s)
}

func (b *portBuilder) AddEvent(name string) {
	if !b.claim("event", name) {
		return
	}
	e := &Event{}
	e.init(b.w, domain.DirEvent, len(b.w.events), domain.PortSpec{Name: name})
	b.w.events = append(b.w.events, e)
}

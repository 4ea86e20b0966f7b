package engine

import (
	"container/heap"
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// agendaHeap orders activations by salience (highest first), ties broken by
// activation formation order (first formed, first fired).
type agendaHeap []*binding

func (h agendaHeap) Len() int { return len(h) }

func (h agendaHeap) Less(i, j int) bool {
	if h[i].rule.salience != h[j].rule.salience {
		return h[i].rule.salience > h[j].rule.salience
	}
	return h[i].actSeq < h[j].actSeq
}

func (h agendaHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *agendaHeap) Push(x any) {
	b := x.(*binding)
	b.heapIdx = len(*h)
	*h = append(*h, b)
}

func (h *agendaHeap) Pop() any {
	old := *h
	n := len(old) - 1
	b := old[n]
	old[n] = nil
	b.heapIdx = -1
	*h = old[:n]
	return b
}

// activate places a satisfied binding on the agenda as a new activation. A
// binding that fired and passes a later retest activates again; that is a
// fresh activation with a fresh formation order, not a duplicate.
func (e *Engine) activate(b *binding) {
	b.state = bindingActive
	b.actSeq = e.nextOrd()
	heap.Push(&e.agenda, b)
	b.rule.stats.Activations++
	e.emit(TraceEvent{Kind: TraceActivation, Rule: b.rule.name, Binding: b.key})
}

// deactivate removes a pending activation whose conditions no longer hold.
func (e *Engine) deactivate(b *binding) {
	if b.heapIdx >= 0 {
		heap.Remove(&e.agenda, b.heapIdx)
	}
	b.state = bindingFailed
	e.emit(TraceEvent{Kind: TraceDeactivation, Rule: b.rule.name, Binding: b.key})
}

// AgendaSize returns the number of activations currently awaiting firing.
func (e *Engine) AgendaSize() int { return e.agenda.Len() }

// ErrorPolicy decides how Run reacts to an error raised by an action.
type ErrorPolicy int

const (
	// HaltOnError stops the loop at the first action error. The remaining
	// agenda is preserved, so a subsequent Run resumes draining it.
	HaltOnError ErrorPolicy = iota
	// ContinueOnError keeps draining; all errors are joined and returned
	// when the loop ends.
	ContinueOnError
)

// RunToQuiescence is the MaxFires sentinel meaning "drain the agenda".
const RunToQuiescence = 0

// RunOptions configures one run of the fire loop.
type RunOptions struct {
	// MaxFires bounds the number of activations fired; RunToQuiescence (or
	// any value <= 0) means run until the agenda is empty.
	MaxFires int
	// Yield cooperatively yields the processor between fire cycles so a
	// long drain does not starve other goroutines. Ordering is unchanged.
	Yield bool
	// OnError selects the error policy for action failures.
	OnError ErrorPolicy
	// OnComplete, if set, runs exactly once when the loop ends, whether it
	// drained the agenda, hit the fire limit, halted on error, or was
	// canceled.
	OnComplete func(RunResult, error)
}

// RunResult reports what one run did.
type RunResult struct {
	RunID     string
	Fires     int
	Remaining int
	Duration  time.Duration
}

// Run drains the agenda: it repeatedly selects the highest-salience
// activation (ties by formation order) and fires it, until the agenda is
// empty, MaxFires is reached, or ctx is canceled between fires. No ready
// activation is ever skipped: an action error consumes its activation and
// either halts with the rest of the agenda intact or continues per policy.
// There is no mid-action cancellation; an in-progress action always runs to
// completion.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if e.running {
		return RunResult{}, ErrReentrantRun
	}
	e.running = true
	e.runID = uuid.NewString()
	defer func() {
		e.running = false
		e.runID = ""
	}()

	res := RunResult{RunID: e.runID}
	start := time.Now()
	e.emit(TraceEvent{Kind: TraceRunStart})

	var errs []error
loop:
	for opts.MaxFires <= 0 || res.Fires < opts.MaxFires {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if e.agenda.Len() == 0 {
			break
		}
		b := heap.Pop(&e.agenda).(*binding)
		res.Fires++
		if err := e.fire(b); err != nil {
			errs = append(errs, err)
			if opts.OnError == HaltOnError {
				break loop
			}
		}
		if opts.Yield {
			runtime.Gosched()
		}
	}

	res.Remaining = e.agenda.Len()
	res.Duration = time.Since(start)
	err := joinErrs(errs)
	e.emit(TraceEvent{Kind: TraceRunEnd, Fires: res.Fires})
	if opts.OnComplete != nil {
		opts.OnComplete(res, err)
	}
	return res, err
}

// fire executes one activation's action. The binding transitions to fired
// before the action runs, so a write inside the action that re-satisfies the
// same binding legitimately re-activates it.
func (e *Engine) fire(b *binding) error {
	b.state = bindingFired
	b.heapIdx = -1
	r := b.rule
	e.emit(TraceEvent{Kind: TraceRuleFire, Rule: r.name, Binding: b.key})
	if r.action.Execute == nil {
		r.stats.Fires++
		return nil
	}
	ctx := newContext(e, r, b.facts)
	fr := e.pushFrame()
	err := r.action.Execute(ctx)
	e.popFrame()
	if b.live() {
		e.commitFrame(b, fr)
	}
	r.stats.Fires++
	return err
}

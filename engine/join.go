package engine

import (
	"strconv"
	"strings"
)

const emptyBindingKey = ""

type bindingState int

const (
	bindingFormed bindingState = iota
	bindingActive
	bindingFailed
	bindingFired
)

// binding is a complete assignment of a rule's domain variables to facts.
// The join engine maintains, per rule, every type-consistent binding that
// has passed its prefix conditions; whether the binding currently satisfies
// all conditions is tracked in state.
type binding struct {
	rule  *Rule
	facts []*Fact
	key   string
	state bindingState

	seq     uint64 // creation order, see retestable.ord
	actSeq  uint64 // activation formation order, agenda tie-break
	heapIdx int
	gone    bool
}

func (b *binding) live() bool { return !b.gone }

func (b *binding) ord() uint64 { return b.seq }

// retest re-evaluates the binding's conditions and reconciles the agenda:
// a satisfied binding that was not active becomes a new activation, an
// active binding that now fails is deactivated without firing.
func (b *binding) retest(e *Engine) error {
	if b.gone {
		return nil
	}
	ok, err := e.evaluate(b)
	if err != nil {
		return err
	}
	switch {
	case ok && b.state != bindingActive:
		e.activate(b)
	case !ok && b.state == bindingActive:
		e.deactivate(b)
	case !ok:
		b.state = bindingFailed
	}
	return nil
}

// blockedPartial is a partial binding whose extension was pruned by an early
// condition. It owns dependency edges on the properties that condition read;
// when one changes, the gate is retried and extension resumes if it passes.
type blockedPartial struct {
	rule  *Rule
	facts []*Fact
	key   string
	seq   uint64
	gone  bool
}

func (p *blockedPartial) live() bool { return !p.gone }

func (p *blockedPartial) ord() uint64 { return p.seq }

func (p *blockedPartial) retest(e *Engine) error {
	if p.gone {
		return nil
	}
	ok, err := e.evalGate(p.rule, p.facts, p)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.removeBlocked(p)
	// Resume extension from the unblocked prefix.
	seed := append([]*Fact(nil), p.facts...)
	return e.generate(p.rule, [][]*Fact{seed}, -1, nil)
}

// generate runs the iterative cross-product for one rule. Each work item is
// a partial binding extended one variable at a time in domain declaration
// order; an explicit work list replaces recursion so wide domains cannot
// grow the call stack. Seeds may be prefixes of any length (nil for the
// empty prefix). When pin >= 0, slot pin is filled only with pinFact, so an
// assert generates exactly the combinations involving the new fact.
func (e *Engine) generate(r *Rule, seeds [][]*Fact, pin int, pinFact *Fact) error {
	work := seeds
	for len(work) > 0 {
		var cur []*Fact
		if r.strategy == BreadthFirst {
			cur, work = work[0], work[1:]
		} else {
			n := len(work) - 1
			cur, work = work[n], work[:n]
		}
		if len(cur) == len(r.domain) {
			if err := e.finalize(r, cur); err != nil {
				return err
			}
			continue
		}
		slot := len(cur)
		dv := r.domain[slot]
		var cands []*Fact
		if slot == pin {
			cands = []*Fact{pinFact}
		} else {
			cands = e.typeIndex[dv.Type]
		}
		// Depth-first pops from the tail, so push in reverse to keep
		// exploration in assertion order.
		start, step := 0, 1
		if r.strategy == DepthFirst {
			start, step = len(cands)-1, -1
		}
		for i := start; i >= 0 && i < len(cands); i += step {
			f := cands[i]
			next := make([]*Fact, slot+1)
			copy(next, cur)
			next[slot] = f
			if dv.Filter != nil || len(r.condsAt[slot+1]) > 0 {
				if _, already := r.blocked[bindingKey(next)]; already {
					continue
				}
				ok, err := e.tryGate(r, next)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			work = append(work, next)
		}
	}
	return nil
}

// gateAt runs the checks that become decidable once len(prefix) variables
// are bound: the newest slot's domain filter, then the conditions whose
// declared variables are now all available. Earlier slots' filters were
// checked at their own gates.
func (e *Engine) gateAt(r *Rule, prefix []*Fact) (bool, error) {
	last := len(prefix) - 1
	if flt := r.domain[last].Filter; flt != nil && !flt(prefix[last]) {
		return false, nil
	}
	return e.runConds(r, prefix, r.condsAt[len(prefix)])
}

// tryGate evaluates the checks that become evaluable at this prefix length.
// On failure the prefix is recorded as blocked, owning the dependency edges
// its evaluation read, so it can resume later.
func (e *Engine) tryGate(r *Rule, prefix []*Fact) (bool, error) {
	fr := e.pushFrame()
	ok, err := e.gateAt(r, prefix)
	e.popFrame()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	p := &blockedPartial{
		rule:  r,
		facts: prefix,
		key:   bindingKey(prefix),
		seq:   e.nextOrd(),
	}
	r.blocked[p.key] = p
	for _, f := range prefix {
		e.indexByFact(f.id, p)
	}
	e.commitFrame(p, fr)
	return false, nil
}

// evalGate replays a blocked prefix's gate checks, refreshing its dependency
// edges in place.
func (e *Engine) evalGate(r *Rule, prefix []*Fact, p *blockedPartial) (bool, error) {
	e.purgeDeps(p)
	fr := e.pushFrame()
	ok, err := e.gateAt(r, prefix)
	e.popFrame()
	if err != nil {
		return false, err
	}
	if !ok {
		e.commitFrame(p, fr)
	}
	return ok, nil
}

// runConds evaluates the given conditions in declaration order against a
// (possibly partial) binding, short-circuiting at the first false.
func (e *Engine) runConds(r *Rule, facts []*Fact, idxs []int) (bool, error) {
	ctx := newContext(e, r, facts)
	for _, ci := range idxs {
		r.stats.Tests++
		if n := int64(len(r.bindings)); n > r.stats.MaxBindings {
			r.stats.MaxBindings = n
		}
		pass, err := r.conds[ci].Test(ctx)
		e.emit(TraceEvent{Kind: TraceCondTest, Rule: r.name, Binding: bindingKey(facts), Passed: pass && err == nil})
		if err != nil {
			return false, err
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}

// finalize installs a full binding, evaluates all of its conditions, and
// activates it if they hold. Re-finalizing an existing binding is a no-op,
// which makes re-insertion of a fact idempotent.
func (e *Engine) finalize(r *Rule, facts []*Fact) error {
	key := bindingKey(facts)
	if _, dup := r.bindings[key]; dup {
		return nil
	}
	b := &binding{
		rule:    r,
		facts:   facts,
		key:     key,
		state:   bindingFormed,
		seq:     e.nextOrd(),
		heapIdx: -1,
	}
	r.bindings[key] = b
	for _, f := range facts {
		e.indexByFact(f.id, b)
	}
	if n := int64(len(r.bindings)); n > r.stats.MaxBindings {
		r.stats.MaxBindings = n
	}
	e.emit(TraceEvent{Kind: TraceBindFormed, Rule: r.name, Binding: key})
	return b.retest(e)
}

// evaluate runs all of a rule's domain filters and conditions against a full
// binding, committing the dependency edges established by the reads
// regardless of outcome so that later writes retest the binding either way.
func (e *Engine) evaluate(b *binding) (bool, error) {
	e.purgeDeps(b)
	fr := e.pushFrame()
	ok := runFilters(b.rule, b.facts)
	var err error
	if ok {
		ok, err = e.runConds(b.rule, b.facts, allConds(b.rule))
	}
	e.popFrame()
	e.commitFrame(b, fr)
	return ok, err
}

// runFilters applies every slot's domain filter to its bound fact,
// short-circuiting at the first rejection.
func runFilters(r *Rule, facts []*Fact) bool {
	for i, dv := range r.domain {
		if dv.Filter != nil && !dv.Filter(facts[i]) {
			return false
		}
	}
	return true
}

func allConds(r *Rule) []int {
	idxs := make([]int, len(r.conds))
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}

// removeBinding invalidates a full binding, deactivating it if pending.
func (e *Engine) removeBinding(b *binding) {
	if b.gone {
		return
	}
	if b.state == bindingActive {
		e.deactivate(b)
	}
	b.gone = true
	delete(b.rule.bindings, b.key)
	e.purgeDeps(b)
	for _, f := range b.facts {
		e.unindexByFact(f.id, b)
	}
	e.emit(TraceEvent{Kind: TraceBindUnformed, Rule: b.rule.name, Binding: b.key})
}

func (e *Engine) removeBlocked(p *blockedPartial) {
	if p.gone {
		return
	}
	p.gone = true
	delete(p.rule.blocked, p.key)
	e.purgeDeps(p)
	for _, f := range p.facts {
		e.unindexByFact(f.id, p)
	}
}

func (e *Engine) indexByFact(id FactID, rt retestable) {
	set, ok := e.byFact[id]
	if !ok {
		set = make(map[retestable]struct{})
		e.byFact[id] = set
	}
	set[rt] = struct{}{}
}

func (e *Engine) unindexByFact(id FactID, rt retestable) {
	if set, ok := e.byFact[id]; ok {
		delete(set, rt)
		if len(set) == 0 {
			delete(e.byFact, id)
		}
	}
}

// bindingKey is the canonical identity of a (possibly partial) binding: the
// bound fact identities in slot order.
func bindingKey(facts []*Fact) string {
	if len(facts) == 0 {
		return emptyBindingKey
	}
	var sb strings.Builder
	for i, f := range facts {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(strconv.FormatInt(int64(f.id), 10))
	}
	return sb.String()
}

package engine

import (
	"sort"
)

// depKey addresses one observable property of one fact.
type depKey struct {
	id   FactID
	prop string
}

// retestable is an entry reachable from a dependency edge: either a full
// binding awaiting condition retest or a blocked partial binding awaiting a
// chance to resume extension.
type retestable interface {
	retest(e *Engine) error
	live() bool
	// ord is a stable creation sequence used to keep retest order
	// deterministic across map iteration.
	ord() uint64
}

// evalFrame buffers the property and type reads performed during one
// condition, action, or gate evaluation. Reads are committed to dependency
// edges only once the evaluation's owner is known.
type evalFrame struct {
	reads     []depKey
	typeReads []string
}

func (e *Engine) pushFrame() *evalFrame {
	fr := &evalFrame{}
	e.frames = append(e.frames, fr)
	return fr
}

func (e *Engine) popFrame() *evalFrame {
	n := len(e.frames) - 1
	fr := e.frames[n]
	e.frames = e.frames[:n]
	return fr
}

func (e *Engine) curFrame() *evalFrame {
	if len(e.frames) == 0 {
		return nil
	}
	return e.frames[len(e.frames)-1]
}

// commitFrame turns a frame's buffered reads into dependency edges owned by
// rt. Re-registering an existing edge is a no-op.
func (e *Engine) commitFrame(rt retestable, fr *evalFrame) {
	for _, k := range fr.reads {
		props, ok := e.deps[k.id]
		if !ok {
			props = make(map[string]map[retestable]struct{})
			e.deps[k.id] = props
		}
		owners, ok := props[k.prop]
		if !ok {
			owners = make(map[retestable]struct{})
			props[k.prop] = owners
		}
		if _, dup := owners[rt]; dup {
			continue
		}
		owners[rt] = struct{}{}
		e.depsOf[rt] = append(e.depsOf[rt], k)
	}
	for _, typ := range fr.typeReads {
		owners, ok := e.typeDeps[typ]
		if !ok {
			owners = make(map[retestable]struct{})
			e.typeDeps[typ] = owners
		}
		if _, dup := owners[rt]; dup {
			continue
		}
		owners[rt] = struct{}{}
		e.typeDepsOf[rt] = append(e.typeDepsOf[rt], typ)
	}
}

// purgeDeps removes every dependency edge owned by rt.
func (e *Engine) purgeDeps(rt retestable) {
	for _, k := range e.depsOf[rt] {
		if props, ok := e.deps[k.id]; ok {
			if owners, ok := props[k.prop]; ok {
				delete(owners, rt)
				if len(owners) == 0 {
					delete(props, k.prop)
				}
			}
			if len(props) == 0 {
				delete(e.deps, k.id)
			}
		}
	}
	delete(e.depsOf, rt)
	for _, typ := range e.typeDepsOf[rt] {
		if owners, ok := e.typeDeps[typ]; ok {
			delete(owners, rt)
			if len(owners) == 0 {
				delete(e.typeDeps, typ)
			}
		}
	}
	delete(e.typeDepsOf, rt)
}

// onWrite handles an observed property write on a tracked fact: it may
// cascade an implicit assert of a fact-valued property, then retests every
// binding holding a dependency edge on (fact, property).
func (e *Engine) onWrite(f *Fact, prop string, old, next any) error {
	e.emit(TraceEvent{Kind: TracePropWrite, FactID: f.id, FactType: f.typ, Property: prop})

	if cf, ok := next.(*Fact); ok && !cf.tracked && cf.eng == e && e.domainTypes[cf.typ] > 0 {
		if _, err := e.Assert(cf); err != nil {
			return err
		}
	}

	affected := make(map[retestable]struct{})
	if props, ok := e.deps[f.id]; ok {
		for rt := range props[prop] {
			affected[rt] = struct{}{}
		}
	}
	return e.retestAfterMutation(affected)
}

// retestAfterMutation retests the given entries plus the single binding of
// every domainless rule, in stable creation order. The input set is not
// mutated. Errors from user code are joined and surfaced to the caller that
// triggered the mutation.
func (e *Engine) retestAfterMutation(affected map[retestable]struct{}) error {
	targets := make(map[retestable]struct{}, len(affected)+len(e.domainless))
	for rt := range affected {
		targets[rt] = struct{}{}
	}
	for _, r := range e.domainless {
		if b, ok := r.bindings[emptyBindingKey]; ok {
			targets[b] = struct{}{}
		}
	}
	var errs []error
	for _, rt := range sortedRetestables(targets) {
		if !rt.live() {
			continue
		}
		if err := rt.retest(e); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}

// sortedRetestables flattens a set into creation order.
func sortedRetestables(set map[retestable]struct{}) []retestable {
	out := make([]retestable, 0, len(set))
	for rt := range set {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ord() < out[j].ord() })
	return out
}

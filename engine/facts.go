package engine

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// FactID is the stable identity of a fact within one engine instance.
// Identities are assigned at fact creation and survive retraction, so a
// retracted fact can be re-asserted under the same identity.
type FactID int64

// Fact is a domain object under engine management: a typed bag of named
// properties. All property access goes through Get and Set so the engine can
// observe reads (to build dependency edges) and writes (to retest affected
// rule bindings). A Fact participates in matching only while it is asserted.
type Fact struct {
	id      FactID
	typ     string
	props   map[string]any
	eng     *Engine
	tracked bool
}

// NewFact builds an untracked fact of the given type. The fact does not
// participate in matching until it is asserted, either explicitly or by being
// assigned to a property of an already-tracked fact.
func (e *Engine) NewFact(typ string, props map[string]any) *Fact {
	f := &Fact{
		id:    e.nextFactID(),
		typ:   typ,
		props: make(map[string]any, len(props)),
		eng:   e,
	}
	for k, v := range props {
		f.props[k] = v
	}
	return f
}

// ID returns the fact's identity.
func (f *Fact) ID() FactID { return f.id }

// Type returns the fact's declared type tag.
func (f *Fact) Type() string { return f.typ }

// Tracked reports whether the fact is currently asserted in working memory.
func (f *Fact) Tracked() bool { return f.tracked }

// Get reads a property value. When called during condition or action
// evaluation, the read establishes a dependency edge from (fact, property)
// to the binding being evaluated, so later writes to that property retest
// the binding.
func (f *Fact) Get(prop string) any {
	if f.tracked {
		if fr := f.eng.curFrame(); fr != nil {
			fr.reads = append(fr.reads, depKey{id: f.id, prop: prop})
		}
	}
	return f.props[prop]
}

// GetString reads a property and returns it as a string, or "" when unset or
// not a string.
func (f *Fact) GetString(prop string) string {
	s, _ := f.Get(prop).(string)
	return s
}

// GetBool reads a property and returns it as a bool, or false when unset or
// not a bool.
func (f *Fact) GetBool(prop string) bool {
	b, _ := f.Get(prop).(bool)
	return b
}

// Set writes a property value. On a tracked fact the write is observed by
// the engine: dependency edges for (fact, property) schedule retests of the
// bindings that read it, and assigning an untracked fact whose type appears
// in some rule's domain inserts it implicitly. Writing a value equal to the
// current one is a no-op. Set returns the first error raised by user code
// during the cascaded retests.
func (f *Fact) Set(prop string, value any) error {
	old, had := f.props[prop]
	if had && !valueChanged(old, value) {
		return nil
	}
	f.props[prop] = value
	if !f.tracked {
		return nil
	}
	return f.eng.onWrite(f, prop, old, value)
}

// Props returns a copy of the fact's current property map. Reads through
// Props do not establish dependency edges.
func (f *Fact) Props() map[string]any {
	out := make(map[string]any, len(f.props))
	for k, v := range f.props {
		out[k] = v
	}
	return out
}

// valueChanged reports whether a property write actually changes the stored
// value. Values of non-comparable dynamic types always count as changed.
func valueChanged(old, next any) bool {
	if old == nil && next == nil {
		return false
	}
	if old == nil || next == nil {
		return true
	}
	to, tn := reflect.TypeOf(old), reflect.TypeOf(next)
	if to != tn || !to.Comparable() {
		return true
	}
	return old != next
}

// Assert places a fact under engine management. Asserting an already-tracked
// fact is idempotent on identity. Untracked *Fact property values whose type
// appears in some rule's domain are asserted along with it.
func (e *Engine) Assert(f *Fact) (FactID, error) {
	if f == nil {
		return 0, errors.Wrap(ErrUnknownFact, "assert nil fact")
	}
	if f.eng != e {
		return 0, errors.Wrapf(ErrUnknownFact, "fact %d belongs to another engine", f.id)
	}
	if f.tracked {
		return f.id, nil
	}
	f.tracked = true
	e.facts[f.id] = f
	e.typeIndex[f.typ] = append(e.typeIndex[f.typ], f)
	e.emit(TraceEvent{Kind: TraceFactAssert, FactID: f.id, FactType: f.typ})

	// Cascade: embedded untracked facts of a domain type become facts too.
	for _, v := range f.props {
		if cf, ok := v.(*Fact); ok && !cf.tracked && cf.eng == e && e.domainTypes[cf.typ] > 0 {
			if _, err := e.Assert(cf); err != nil {
				return f.id, err
			}
		}
	}

	// Join: extend every rule that has a slot of this type with the new
	// fact pinned in that slot. Only combinations involving the new fact
	// are generated.
	for _, r := range e.rules {
		for i, dv := range r.domain {
			if dv.Type != f.typ {
				continue
			}
			if err := e.generate(r, [][]*Fact{nil}, i, f); err != nil {
				return f.id, err
			}
		}
	}
	return f.id, e.retestAfterMutation(e.typeDeps[f.typ])
}

// AssertNew builds and asserts a fact in one step.
func (e *Engine) AssertNew(typ string, props map[string]any) (*Fact, error) {
	f := e.NewFact(typ, props)
	if _, err := e.Assert(f); err != nil {
		return nil, err
	}
	return f, nil
}

// AssertAs asserts a fact under an explicit declared type. Re-asserting a
// tracked fact under its existing type is idempotent; a conflicting type
// fails with ErrDuplicateAssert.
func (e *Engine) AssertAs(f *Fact, typ string) (FactID, error) {
	if f == nil {
		return 0, errors.Wrap(ErrUnknownFact, "assert nil fact")
	}
	if f.tracked {
		if f.typ != typ {
			return 0, errors.Wrapf(ErrDuplicateAssert, "fact %d is %q, re-asserted as %q", f.id, f.typ, typ)
		}
		return f.id, nil
	}
	f.typ = typ
	return e.Assert(f)
}

// Retract removes a fact from working memory. Every binding referencing it
// is invalidated (deactivating any pending activations) and its dependency
// edges are purged. Retracting an unknown fact fails with ErrUnknownFact.
func (e *Engine) Retract(f *Fact) error {
	if f == nil {
		return errors.Wrap(ErrUnknownFact, "retract nil fact")
	}
	return e.RetractID(f.id)
}

// RetractID retracts by identity.
func (e *Engine) RetractID(id FactID) error {
	f, ok := e.facts[id]
	if !ok {
		return errors.Wrapf(ErrUnknownFact, "retract fact %d", id)
	}
	delete(e.facts, id)
	e.typeIndex[f.typ] = removeFact(e.typeIndex[f.typ], f)
	f.tracked = false
	e.emit(TraceEvent{Kind: TraceFactRetract, FactID: id, FactType: f.typ})

	// Invalidate every binding and blocked partial referencing the fact.
	for _, rt := range sortedRetestables(e.byFact[id]) {
		switch v := rt.(type) {
		case *binding:
			e.removeBinding(v)
		case *blockedPartial:
			e.removeBlocked(v)
		}
	}
	delete(e.byFact, id)

	// Bindings that read this fact's properties without referencing it in
	// their own domain (via quantifiers or fact-valued properties) must be
	// retested against the shrunk store.
	affected := make(map[retestable]struct{})
	for _, owners := range e.deps[id] {
		for rt := range owners {
			affected[rt] = struct{}{}
		}
	}
	delete(e.deps, id)
	for rt := range e.typeDeps[f.typ] {
		affected[rt] = struct{}{}
	}
	return e.retestAfterMutation(affected)
}

// FactCount returns the number of facts currently asserted.
func (e *Engine) FactCount() int { return len(e.facts) }

// FactsOfType returns the asserted facts of one type, in assertion order.
func (e *Engine) FactsOfType(typ string) []*Fact {
	return append([]*Fact(nil), e.typeIndex[typ]...)
}

// factsOfType returns the asserted facts of one type in assertion order.
// When called during an evaluation, the scan registers a type-level
// dependency so later asserts of this type retest the evaluated binding.
func (e *Engine) factsOfType(typ string) []*Fact {
	if fr := e.curFrame(); fr != nil {
		fr.typeReads = append(fr.typeReads, typ)
	}
	return e.typeIndex[typ]
}

func removeFact(facts []*Fact, f *Fact) []*Fact {
	for i, x := range facts {
		if x == f {
			return append(facts[:i:i], facts[i+1:]...)
		}
	}
	return facts
}

func (e *Engine) nextFactID() FactID {
	e.lastFactID++
	return e.lastFactID
}

package engine

// Predicate is the boolean test applied to each binding of a quantifier's ad
// hoc domain.
type Predicate func(*Context) (bool, error)

// Exists reports whether some type-consistent binding over the ad hoc domain
// satisfies pred, short-circuiting at the first hit. It is a pure query: no
// persistent bindings or activations are created. When called from inside a
// rule's condition, the facts and properties it examines establish
// dependency edges on the enclosing binding, so later mutation of those
// facts retests the enclosing rule.
func (e *Engine) Exists(domain Domain, pred Predicate) (bool, error) {
	hit := false
	err := e.forEachCombo(domain, func(facts []*Fact) (bool, error) {
		ok, err := pred(anonContext(e, domain, facts))
		if err != nil {
			return false, err
		}
		hit = ok
		return ok, nil
	})
	return hit, err
}

// Every reports whether all type-consistent bindings over the ad hoc domain
// satisfy pred, short-circuiting at the first failure. An empty binding set
// is vacuously true. Dependency behavior matches Exists.
func (e *Engine) Every(domain Domain, pred Predicate) (bool, error) {
	all := true
	err := e.forEachCombo(domain, func(facts []*Fact) (bool, error) {
		ok, err := pred(anonContext(e, domain, facts))
		if err != nil {
			return false, err
		}
		if !ok {
			all = false
			return true, nil // stop
		}
		return false, nil
	})
	return all, err
}

// Not is a pure negation helper, for symmetry with Exists and Every in rule
// bodies.
func (e *Engine) Not(v bool) bool { return !v }

// forEachCombo iterates the full cross-product of an ad hoc domain with an
// explicit work stack, calling visit on each complete combination until it
// returns stop. The factsOfType scans register type-level dependencies on
// the enclosing evaluation, if any.
func (e *Engine) forEachCombo(domain Domain, visit func([]*Fact) (stop bool, err error)) error {
	work := [][]*Fact{nil}
	for len(work) > 0 {
		n := len(work) - 1
		cur := work[n]
		work = work[:n]
		if len(cur) == len(domain) {
			stop, err := visit(cur)
			if err != nil || stop {
				return err
			}
			continue
		}
		dv := domain[len(cur)]
		cands := e.factsOfType(dv.Type)
		for i := len(cands) - 1; i >= 0; i-- {
			f := cands[i]
			if dv.Filter != nil && !dv.Filter(f) {
				continue
			}
			next := make([]*Fact, len(cur)+1)
			copy(next, cur)
			next[len(cur)] = f
			work = append(work, next)
		}
	}
	return nil
}

package engine

// RuleStats are the per-rule counters maintained by the engine. They are
// read-only to callers.
type RuleStats struct {
	// MaxBindings is the maximum concurrent potential-binding count
	// observed for the rule.
	MaxBindings int64
	// Tests is the total number of condition evaluations.
	Tests int64
	// Activations counts how many activations the rule has formed,
	// including re-activations after a fire.
	Activations int64
	// Fires counts how many activations of the rule have fired.
	Fires int64
}

// Stats returns a copy of the rule's counters.
func (r *Rule) Stats() RuleStats { return r.stats }

// RuleStats returns the counters for a rule by name.
func (e *Engine) RuleStats(name string) (RuleStats, bool) {
	r, ok := e.rulesByName[name]
	if !ok {
		return RuleStats{}, false
	}
	return r.stats, true
}

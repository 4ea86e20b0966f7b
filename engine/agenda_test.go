package engine

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordRule creates a trivially satisfied single-variable rule that appends
// its name to fired when it fires.
func recordRule(name string, salience int, fired *[]string) RuleDef {
	return RuleDef{
		Name:       name,
		Salience:   salience,
		Domain:     Domain{{Name: "x", Type: "Thing"}},
		Conditions: []Condition{{Uses: []string{"x"}, Test: func(*Context) (bool, error) { return true, nil }}},
		Action: Action{
			Uses: []string{"x"},
			Execute: func(*Context) error {
				*fired = append(*fired, name)
				return nil
			},
		},
	}
}

func TestSalienceOrdering(t *testing.T) {
	e := New()
	var fired []string

	_, err := e.CreateRule(recordRule("low", 1, &fired))
	require.NoError(t, err)
	_, err = e.CreateRule(recordRule("high", 10, &fired))
	require.NoError(t, err)
	_, err = e.CreateRule(recordRule("mid", 5, &fired))
	require.NoError(t, err)

	_, err = e.AssertNew("Thing", nil)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fires)
	assert.Equal(t, []string{"high", "mid", "low"}, fired)
}

func TestSalienceTieBreaksByFormationOrder(t *testing.T) {
	e := New()
	var fired []string

	_, err := e.CreateRule(recordRule("first", 5, &fired))
	require.NoError(t, err)
	_, err = e.CreateRule(recordRule("second", 5, &fired))
	require.NoError(t, err)

	_, err = e.AssertNew("Thing", nil)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, fired)
}

func TestMaxFiresBoundsTheLoop(t *testing.T) {
	e := New()
	var fired []string
	_, err := e.CreateRule(recordRule("r", 0, &fired))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = e.AssertNew("Thing", nil)
		require.NoError(t, err)
	}

	res, err := e.Run(context.Background(), RunOptions{MaxFires: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fires)
	assert.Equal(t, 3, res.Remaining)

	// A second run drains the rest.
	res, err = e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fires)
	assert.Equal(t, 0, res.Remaining)
}

func TestOnCompleteRunsExactlyOnce(t *testing.T) {
	e := New()
	var fired []string
	_, err := e.CreateRule(recordRule("r", 0, &fired))
	require.NoError(t, err)
	_, err = e.AssertNew("Thing", nil)
	require.NoError(t, err)

	calls := 0
	var last RunResult
	res, err := e.Run(context.Background(), RunOptions{
		Yield: true,
		OnComplete: func(r RunResult, err error) {
			calls++
			last = r
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, res.Fires, last.Fires)
	assert.NotEmpty(t, res.RunID)
}

func TestHaltOnErrorPreservesAgenda(t *testing.T) {
	e := New()
	boom := errors.New("boom")

	_, err := e.CreateRule(RuleDef{
		Name:       "exploder",
		Salience:   10,
		Domain:     Domain{{Name: "x", Type: "Thing"}},
		Conditions: []Condition{{Uses: []string{"x"}, Test: func(*Context) (bool, error) { return true, nil }}},
		Action:     Action{Uses: []string{"x"}, Execute: func(*Context) error { return boom }},
	})
	require.NoError(t, err)

	var fired []string
	_, err = e.CreateRule(recordRule("survivor", 1, &fired))
	require.NoError(t, err)

	_, err = e.AssertNew("Thing", nil)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), RunOptions{OnError: HaltOnError})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Fires)
	assert.Equal(t, 1, res.Remaining)
	assert.Empty(t, fired)

	// Resuming drains the preserved activation; nothing was skipped.
	res, err = e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fires)
	assert.Equal(t, []string{"survivor"}, fired)
}

func TestContinueOnErrorDrains(t *testing.T) {
	e := New()
	boom := errors.New("boom")

	_, err := e.CreateRule(RuleDef{
		Name:       "exploder",
		Salience:   10,
		Domain:     Domain{{Name: "x", Type: "Thing"}},
		Conditions: []Condition{{Uses: []string{"x"}, Test: func(*Context) (bool, error) { return true, nil }}},
		Action:     Action{Uses: []string{"x"}, Execute: func(*Context) error { return boom }},
	})
	require.NoError(t, err)

	var fired []string
	_, err = e.CreateRule(recordRule("survivor", 1, &fired))
	require.NoError(t, err)

	_, err = e.AssertNew("Thing", nil)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), RunOptions{OnError: ContinueOnError})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, res.Fires)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, []string{"survivor"}, fired)
}

func TestRefireAfterResatisfaction(t *testing.T) {
	e := New()

	fires := 0
	_, err := e.CreateRule(RuleDef{
		Name:   "drain",
		Domain: Domain{{Name: "x", Type: "Counter"}},
		Conditions: []Condition{{
			Uses: []string{"x"},
			Test: func(c *Context) (bool, error) {
				n, _ := c.Fact("x").Get("n").(int)
				return n > 0, nil
			},
		}},
		Action: Action{
			Uses: []string{"x"},
			Execute: func(c *Context) error {
				fires++
				n, _ := c.Fact("x").Get("n").(int)
				return c.Set("x", "n", n-1)
			},
		},
	})
	require.NoError(t, err)

	_, err = e.AssertNew("Counter", map[string]any{"n": 3})
	require.NoError(t, err)

	// Each fire decrements n, re-satisfying the same binding until n hits
	// zero: three fresh activations of one binding.
	res, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fires)
	assert.Equal(t, 3, fires)

	stats, ok := e.RuleStats("drain")
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Fires)
	assert.Equal(t, int64(3), stats.Activations)
}

func TestActivationNotDuplicatedOnRedundantRetest(t *testing.T) {
	e := New()
	_, err := e.CreateRule(RuleDef{
		Name:   "hot",
		Domain: Domain{{Name: "p", Type: "Patient"}},
		Conditions: []Condition{{
			Uses: []string{"p"},
			Test: func(c *Context) (bool, error) {
				return c.Fact("p").GetString("fever") != "none", nil
			},
		}},
		Action: Action{},
	})
	require.NoError(t, err)

	p, err := e.AssertNew("Patient", map[string]any{"fever": "high"})
	require.NoError(t, err)
	require.Equal(t, 1, e.AgendaSize())

	// Still satisfied after the write: the existing activation stands, no
	// duplicate is added.
	require.NoError(t, p.Set("fever", "mild"))
	assert.Equal(t, 1, e.AgendaSize())

	stats, _ := e.RuleStats("hot")
	assert.Equal(t, int64(1), stats.Activations)
}

func TestReentrantRunRejected(t *testing.T) {
	e := New()
	var inner error
	_, err := e.CreateRule(RuleDef{
		Name:       "nested",
		Domain:     Domain{{Name: "x", Type: "Thing"}},
		Conditions: []Condition{{Uses: []string{"x"}, Test: func(*Context) (bool, error) { return true, nil }}},
		Action: Action{
			Uses: []string{"x"},
			Execute: func(c *Context) error {
				_, inner = c.Engine().Run(context.Background(), RunOptions{})
				return nil
			},
		},
	})
	require.NoError(t, err)

	_, err = e.AssertNew("Thing", nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrReentrantRun)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	e := New()
	var fired []string
	_, err := e.CreateRule(recordRule("r", 0, &fired))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = e.AssertNew("Thing", nil)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Fires)
	assert.Equal(t, 3, res.Remaining)
}

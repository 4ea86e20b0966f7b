package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rulekit/engine"
)

// installDiagnosisRules registers the bundled medical ruleset. Measles
// matches a symptomatic patient and asserts a Diagnosis; Penicillin chains
// on that Diagnosis; Quarantine joins Patient and Ward to flag shared rooms.
func installDiagnosisRules(e *engine.Engine) error {
	if _, err := e.CreateRule(engine.RuleDef{
		Name:     "Measles",
		Salience: 100,
		Domain:   engine.Domain{{Name: "p", Type: "Patient"}},
		Conditions: []engine.Condition{{
			Uses: []string{"p"},
			Test: func(c *engine.Context) (bool, error) {
				p := c.Fact("p")
				return p.GetString("fever") == "high" &&
					p.GetBool("spots") &&
					!p.GetBool("innoculated"), nil
			},
		}},
		Action: engine.Action{
			Uses: []string{"p"},
			Execute: func(c *engine.Context) error {
				p := c.Fact("p")
				d, err := c.Engine().AssertNew("Diagnosis", map[string]any{
					"name":    "measles",
					"patient": p.GetString("name"),
				})
				if err != nil {
					return err
				}
				return c.Set("p", "diagnosis", d)
			},
		},
	}); err != nil {
		return err
	}

	if _, err := e.CreateRule(engine.RuleDef{
		Name:     "Penicillin",
		Salience: 50,
		Domain:   engine.Domain{{Name: "d", Type: "Diagnosis"}},
		Conditions: []engine.Condition{{
			Uses: []string{"d"},
			Test: func(c *engine.Context) (bool, error) {
				return c.Fact("d").GetString("name") == "measles", nil
			},
		}},
		Action: engine.Action{
			Uses: []string{"d"},
			Execute: func(c *engine.Context) error {
				return c.Set("d", "treatment", "penicillin")
			},
		},
	}); err != nil {
		return err
	}

	_, err := e.CreateRule(engine.RuleDef{
		Name:     "Quarantine",
		Salience: 10,
		Domain: engine.Domain{
			{Name: "p", Type: "Patient"},
			{Name: "w", Type: "Ward"},
		},
		Conditions: []engine.Condition{
			{
				// Evaluable from the patient alone: prunes healthy
				// patients before the ward join happens.
				Uses: []string{"p"},
				Test: func(c *engine.Context) (bool, error) {
					return c.Fact("p").Get("diagnosis") != nil, nil
				},
			},
			{
				Uses: []string{"p", "w"},
				Test: func(c *engine.Context) (bool, error) {
					return c.Fact("p").GetString("ward") == c.Fact("w").GetString("name"), nil
				},
			},
		},
		Action: engine.Action{
			Uses: []string{"p", "w"},
			Execute: func(c *engine.Context) error {
				return c.Set("w", "quarantined", true)
			},
		},
	})
	return err
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the bundled ruleset",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engine.New()
		if err := installDiagnosisRules(e); err != nil {
			return err
		}
		for _, r := range e.Rules() {
			fmt.Printf("%-12s salience=%d\n", r.Name(), r.Salience())
		}
		return nil
	},
}

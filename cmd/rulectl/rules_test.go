package main

import (
	"context"
	"testing"

	"rulekit/engine"
)

func TestDiagnosisRulesetEndToEnd(t *testing.T) {
	e := engine.New()
	if err := installDiagnosisRules(e); err != nil {
		t.Fatalf("installDiagnosisRules() error = %v", err)
	}

	ward, err := e.AssertNew("Ward", map[string]any{"name": "east"})
	if err != nil {
		t.Fatal(err)
	}
	sick, err := e.AssertNew("Patient", map[string]any{
		"name":        "fred",
		"ward":        "east",
		"fever":       "high",
		"spots":       true,
		"innoculated": false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AssertNew("Patient", map[string]any{
		"name":  "joe",
		"ward":  "east",
		"fever": "none",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), engine.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Measles diagnoses fred, Penicillin treats the diagnosis, Quarantine
	// flags the shared ward.
	if res.Fires != 3 {
		t.Errorf("Run() fires = %d, want 3", res.Fires)
	}

	d, ok := sick.Get("diagnosis").(*engine.Fact)
	if !ok {
		t.Fatal("fred has no diagnosis")
	}
	if d.GetString("treatment") != "penicillin" {
		t.Errorf("treatment = %q, want penicillin", d.GetString("treatment"))
	}
	if !ward.GetBool("quarantined") {
		t.Error("ward not quarantined")
	}

	stats, ok := e.RuleStats("Measles")
	if !ok || stats.Fires != 1 {
		t.Errorf("Measles fires = %d, want 1", stats.Fires)
	}
}

func TestHealthyScenarioFiresNothing(t *testing.T) {
	e := engine.New()
	if err := installDiagnosisRules(e); err != nil {
		t.Fatalf("installDiagnosisRules() error = %v", err)
	}
	if _, err := e.AssertNew("Patient", map[string]any{
		"name": "ann", "fever": "none", "spots": false, "innoculated": true,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), engine.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Fires != 0 {
		t.Errorf("Run() fires = %d, want 0", res.Fires)
	}
}

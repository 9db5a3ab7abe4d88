package safety

import (
	"testing"

	"scrubcore.dev/config"
	"scrubcore.dev/ports"
)

func baseSnapshot() ports.SensorSnapshot {
	return ports.SensorSnapshot{
		TankASupplyOK:      true,
		FlowDetected:       true,
		TemperatureC:       30,
		UvcInterlockClosed: true,
	}
}

func TestNoFaultsOnGoodSnapshot(t *testing.T) {
	s := New()
	cfg := config.Default()
	f := s.Evaluate(baseSnapshot(), true, cfg)
	if f != 0 {
		t.Fatalf("faults = %v, want none", f)
	}
}

func TestWaterLevelLow(t *testing.T) {
	s := New()
	cfg := config.Default()
	snap := baseSnapshot()
	snap.TankASupplyOK = false
	f := s.Evaluate(snap, false, cfg)
	if !f.Has(ports.FaultWaterLevelLow) {
		t.Fatalf("faults = %v, want water-level-low set", f)
	}
}

func TestOverTemperature(t *testing.T) {
	s := New()
	cfg := config.Default()
	snap := baseSnapshot()
	snap.TemperatureC = cfg.MaxTemperatureC + 0.1
	f := s.Evaluate(snap, false, cfg)
	if !f.Has(ports.FaultOverTemperature) {
		t.Fatalf("faults = %v, want over-temperature set", f)
	}
}

func TestInterlockOpen(t *testing.T) {
	s := New()
	cfg := config.Default()
	snap := baseSnapshot()
	snap.UvcInterlockClosed = false
	f := s.Evaluate(snap, false, cfg)
	if !f.Has(ports.FaultUvcInterlockOpen) {
		t.Fatalf("faults = %v, want interlock-open set", f)
	}
}

func TestNoFlowRequiresGraceAndPumpCommanded(t *testing.T) {
	s := New()
	cfg := config.Default()
	cfg.ControlLoopIntervalMs = 1000 // grace = 3 ticks

	snap := baseSnapshot()
	snap.FlowDetected = false

	// Pump not commanded: no fault regardless of flow.
	if f := s.Evaluate(snap, false, cfg); f.Has(ports.FaultNoFlowDetected) {
		t.Fatalf("faults = %v, no-flow must not raise while pump is off", f)
	}

	// Pump just turned on: within grace, no fault yet.
	for i := 0; i < int(graceTicks(cfg.ControlLoopIntervalMs)); i++ {
		if f := s.Evaluate(snap, true, cfg); f.Has(ports.FaultNoFlowDetected) {
			t.Fatalf("faults = %v, no-flow raised before grace elapsed (tick %d)", f, i)
		}
	}
	// Past grace with no flow: fault raised.
	f := s.Evaluate(snap, true, cfg)
	if !f.Has(ports.FaultNoFlowDetected) {
		t.Fatalf("faults = %v, want no-flow set past grace period", f)
	}

	// Flow resumes: fault clears immediately.
	snap.FlowDetected = true
	f = s.Evaluate(snap, true, cfg)
	if f.Has(ports.FaultNoFlowDetected) {
		t.Fatalf("faults = %v, no-flow must clear once flow resumes", f)
	}
}

func TestNoFlowGraceResetsOnPumpRestart(t *testing.T) {
	s := New()
	cfg := config.Default()
	cfg.ControlLoopIntervalMs = 1000
	snap := baseSnapshot()
	snap.FlowDetected = false

	grace := int(graceTicks(cfg.ControlLoopIntervalMs))
	for i := 0; i < grace+2; i++ {
		s.Evaluate(snap, true, cfg)
	}
	if f := s.Faults(); !f.Has(ports.FaultNoFlowDetected) {
		t.Fatal("expected no-flow to be latched before pump cycles off")
	}

	// Pump turns off then back on: grace period must restart.
	s.Evaluate(snap, false, cfg)
	f := s.Evaluate(snap, true, cfg)
	if f.Has(ports.FaultNoFlowDetected) {
		t.Fatalf("faults = %v, grace period should have restarted on pump restart", f)
	}
}

func TestTransitionsReportsEdges(t *testing.T) {
	edges := Transitions(0, ports.FaultWaterLevelLow|ports.FaultOverTemperature)
	if len(edges) != 2 {
		t.Fatalf("got %d transitions, want 2", len(edges))
	}
	for _, e := range edges {
		if !e.Raised {
			t.Fatal("expected all transitions to be raises")
		}
	}
	edges = Transitions(ports.FaultWaterLevelLow, 0)
	if len(edges) != 1 || edges[0].Raised {
		t.Fatalf("expected a single clear transition, got %+v", edges)
	}
}

func TestGraceTicksRoundsDown(t *testing.T) {
	if g := graceTicks(1000); g != 3 {
		t.Fatalf("graceTicks(1000) = %d, want 3", g)
	}
	if g := graceTicks(700); g != 4 {
		t.Fatalf("graceTicks(700) = %d, want 4", g)
	}
	if g := graceTicks(5000); g != 1 {
		t.Fatalf("graceTicks(5000) = %d, want 1 (rounds down to 0, clamped to minimum 1)", g)
	}
}

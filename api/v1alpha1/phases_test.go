package v1alpha1

import (
	"testing"
	"time"
)

func TestPhases_Order(t *testing.T) {
	phases := Phases()
	if len(phases) != 15 {
		t.Fatalf("expected 15 phases, got %d", len(phases))
	}
	if phases[0] != PhaseCreated {
		t.Errorf("first phase = %s, want %s", phases[0], PhaseCreated)
	}
	if phases[len(phases)-1] != PhaseDone {
		t.Errorf("last phase = %s, want %s", phases[len(phases)-1], PhaseDone)
	}

	// Mutating the returned slice must not affect the package order
	phases[0] = PhaseDone
	if Phases()[0] != PhaseCreated {
		t.Error("Phases() returned the internal slice")
	}
}

func TestPhase_Index(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhaseCreated, 0},
		{PhaseDiskConfigured, 1},
		{PhaseToolsFinalizeRunning, 9},
		{PhaseDone, 14},
		{Phase("bogus"), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.Index(); got != tt.want {
				t.Errorf("Index() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPhase_Flags(t *testing.T) {
	for _, p := range Phases() {
		if p.IsOptional() != (p == PhaseToolsFinalizeRunning) {
			t.Errorf("IsOptional(%s) = %v", p, p.IsOptional())
		}
		if p.IsTerminal() != (p == PhaseDone) {
			t.Errorf("IsTerminal(%s) = %v", p, p.IsTerminal())
		}
	}
}

func TestMediaRef_String(t *testing.T) {
	ref := MediaRef{Instance: "windows-mgmt", Path: "/home/user/out/win10.iso"}
	if got := ref.String(); got != "windows-mgmt:/home/user/out/win10.iso" {
		t.Errorf("String() = %q", got)
	}
}

func TestInstance_Helpers(t *testing.T) {
	inst := NewInstance("win", InstanceSpec{Class: ClassStandalone})
	if inst.GetPhase() != "" {
		t.Errorf("new instance phase = %q, want empty", inst.GetPhase())
	}
	if inst.HasNetwork() {
		t.Error("HasNetwork() = true without netvm")
	}

	inst.Spec.NetVM = "sys-firewall"
	if !inst.HasNetwork() {
		t.Error("HasNetwork() = false with netvm")
	}

	inst.Status.History = append(inst.Status.History, PhaseRecord{Phase: PhaseCreated, Entered: time.Now()})
	if !inst.Visited(PhaseCreated) {
		t.Error("Visited(created) = false")
	}
	if inst.Visited(PhaseDone) {
		t.Error("Visited(done) = true")
	}
}

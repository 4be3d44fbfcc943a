package v1alpha1

// Phase is a provisioning phase of an Instance.
type Phase string

// Phase constants, in the order an Instance passes through them.
const (
	PhaseCreated              Phase = "created"
	PhaseDiskConfigured       Phase = "disk-configured"
	PhaseInstallPhase1Running Phase = "install-phase-1-running"
	PhaseInstallPhase1Done    Phase = "install-phase-1-done"
	PhaseInstallPhase2Running Phase = "install-phase-2-running"
	PhaseInstallPhase2Done    Phase = "install-phase-2-done"
	PhaseToolsStaging         Phase = "tools-staging"
	PhaseToolsInstallRunning  Phase = "tools-install-running"
	PhaseToolsInstallDone     Phase = "tools-install-done"
	PhaseToolsFinalizeRunning Phase = "tools-finalize-running"
	PhaseAppMenuSync          Phase = "appmenu-sync"
	PhasePostScripts          Phase = "post-scripts"
	PhaseTeardownPolicy       Phase = "teardown-policy"
	PhaseShutdown             Phase = "shutdown"
	PhaseDone                 Phase = "done"
)

// phaseOrder lists every phase in sequence.
var phaseOrder = []Phase{
	PhaseCreated,
	PhaseDiskConfigured,
	PhaseInstallPhase1Running,
	PhaseInstallPhase1Done,
	PhaseInstallPhase2Running,
	PhaseInstallPhase2Done,
	PhaseToolsStaging,
	PhaseToolsInstallRunning,
	PhaseToolsInstallDone,
	PhaseToolsFinalizeRunning,
	PhaseAppMenuSync,
	PhasePostScripts,
	PhaseTeardownPolicy,
	PhaseShutdown,
	PhaseDone,
}

// Phases returns all phases in order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of p in the phase order, or -1 if p is unknown.
func (p Phase) Index() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// IsOptional reports whether the phase may be skipped.
// Only the tools finalize boot is conditional.
func (p Phase) IsOptional() bool {
	return p == PhaseToolsFinalizeRunning
}

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone
}

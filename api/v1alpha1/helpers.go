package v1alpha1

// NewInstance creates an Instance with the given name and spec that has not
// entered any phase yet.
func NewInstance(name string, spec InstanceSpec) *Instance {
	return &Instance{
		Name: name,
		Spec: spec,
	}
}

// GetPhase returns the current phase.
func (i *Instance) GetPhase() Phase {
	return i.Status.Phase
}

// HasNetwork reports whether a netvm is configured for the instance.
func (i *Instance) HasNetwork() bool {
	return i.Spec.NetVM != ""
}

// Visited reports whether the instance has ever entered phase p.
func (i *Instance) Visited(p Phase) bool {
	for _, rec := range i.Status.History {
		if rec.Phase == p {
			return true
		}
	}
	return false
}

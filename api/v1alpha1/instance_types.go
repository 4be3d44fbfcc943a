package v1alpha1

import "time"

// Instance is one guest qube under provisioning.
//
// Spec holds what was requested on the command line, Status what qubeforge
// observed while driving the qube through the installation phases. An
// Instance is never deleted by qubeforge; removing a qube is an operator
// action.
type Instance struct {
	// Name is the qube name. Unique within the Qubes namespace.
	Name string `json:"name" yaml:"name"`

	// Spec defines the desired shape of the qube.
	Spec InstanceSpec `json:"spec" yaml:"spec"`

	// Status defines the observed provisioning state.
	// +optional
	Status InstanceStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// InstanceSpec defines the desired state of an Instance.
type InstanceSpec struct {
	// Class is the qube class passed to qvm-create.
	Class Class `json:"class" yaml:"class"`

	// DiskSizeGiB is the size the root volume is extended to.
	DiskSizeGiB int `json:"diskSizeGiB" yaml:"diskSizeGiB"`

	// PrivateSizeGiB is the size the private volume is extended to.
	PrivateSizeGiB int `json:"privateSizeGiB" yaml:"privateSizeGiB"`

	// Pool is the storage pool for the qube's volumes. Empty means the
	// Qubes default pool.
	// +optional
	Pool string `json:"pool,omitempty" yaml:"pool,omitempty"`

	// NetVM is the network-providing qube assigned once the install is
	// trusted. Empty means the qube never gets a network.
	// +optional
	NetVM string `json:"netvm,omitempty" yaml:"netvm,omitempty"`
}

// InstanceStatus defines the observed state of an Instance.
type InstanceStatus struct {
	// Phase is the current provisioning phase.
	Phase Phase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// Network is the current isolation state of the qube's network.
	// Empty while no network is configured.
	// +optional
	Network NetworkState `json:"network,omitempty" yaml:"network,omitempty"`

	// History records every phase entered, in order.
	// +optional
	History []PhaseRecord `json:"history,omitempty" yaml:"history,omitempty"`

	// Conditions track the network guard, the readiness marker and the
	// file copy policy grant.
	// +optional
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// PhaseRecord is one entry of the phase history.
type PhaseRecord struct {
	Phase   Phase     `json:"phase" yaml:"phase"`
	Entered time.Time `json:"entered" yaml:"entered"`
}

// Class is the virtualization class of a qube.
type Class string

const (
	// ClassTemplate creates a reusable TemplateVM.
	ClassTemplate Class = "TemplateVM"
	// ClassStandalone creates a StandaloneVM.
	ClassStandalone Class = "StandaloneVM"
)

// NetworkState is the state of the network isolation guard for an Instance.
type NetworkState string

const (
	// NetworkSealed denies all traffic and detaches the netvm.
	NetworkSealed NetworkState = "sealed"
	// NetworkOpen allows all traffic through the assigned netvm.
	NetworkOpen NetworkState = "open"
)

// MediaRef points at an image staged on another qube, typically the
// resources qube. It is immutable once staged.
type MediaRef struct {
	// Instance is the qube holding the image.
	Instance string `json:"instance" yaml:"instance"`
	// Path is the absolute path of the image inside Instance.
	Path string `json:"path" yaml:"path"`
}

// String renders the reference in the form qvm-start --cdrom expects.
func (m MediaRef) String() string {
	return m.Instance + ":" + m.Path
}

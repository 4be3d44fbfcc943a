package v1alpha1

import "time"

// ConditionStatus is the status of a condition.
type ConditionStatus string

const (
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
	ConditionUnknown ConditionStatus = "Unknown"
)

// Condition types tracked on an Instance.
const (
	// ConditionNetworkSealed is True while the qube has a deny-all firewall
	// and no netvm.
	ConditionNetworkSealed = "NetworkSealed"

	// ConditionMarkerPresent is True once the guest agent reported the
	// readiness marker.
	ConditionMarkerPresent = "MarkerPresent"

	// ConditionPolicyGranted is True while a file copy policy grant for the
	// qube exists.
	ConditionPolicyGranted = "PolicyGranted"
)

// Condition describes one aspect of an Instance's observed state.
type Condition struct {
	// Type of condition, one of the Condition* constants.
	Type string `json:"type" yaml:"type"`

	// Status of the condition.
	Status ConditionStatus `json:"status" yaml:"status"`

	// LastTransitionTime is when Status last changed.
	LastTransitionTime time.Time `json:"lastTransitionTime" yaml:"lastTransitionTime"`

	// Reason is a CamelCase word for the last transition.
	// +optional
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Message is a human readable description of the last transition.
	// +optional
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

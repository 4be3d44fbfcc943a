package status

import (
	"fmt"
	"time"

	"github.com/jbweber/qubeforge/api/v1alpha1"
)

// SetCondition adds or updates a condition in the instance status.
// LastTransitionTime only changes when the status does.
func SetCondition(inst *v1alpha1.Instance, condType string, status v1alpha1.ConditionStatus, reason, message string) {
	setConditionAt(inst, condType, status, reason, message, time.Now())
}

func setConditionAt(inst *v1alpha1.Instance, condType string, status v1alpha1.ConditionStatus, reason, message string, now time.Time) {
	for i := range inst.Status.Conditions {
		existing := &inst.Status.Conditions[i]
		if existing.Type != condType {
			continue
		}
		if existing.Status != status {
			existing.LastTransitionTime = now
		}
		existing.Status = status
		existing.Reason = reason
		existing.Message = message
		return
	}

	inst.Status.Conditions = append(inst.Status.Conditions, v1alpha1.Condition{
		Type:               condType,
		Status:             status,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	})
}

// GetCondition returns a condition by type, or nil if not found.
func GetCondition(inst *v1alpha1.Instance, condType string) *v1alpha1.Condition {
	for i := range inst.Status.Conditions {
		if inst.Status.Conditions[i].Type == condType {
			return &inst.Status.Conditions[i]
		}
	}
	return nil
}

// IsConditionTrue returns true if the condition exists and has status True.
func IsConditionTrue(inst *v1alpha1.Instance, condType string) bool {
	cond := GetCondition(inst, condType)
	return cond != nil && cond.Status == v1alpha1.ConditionTrue
}

// MarkNetworkSealed records that the qube was sealed off.
func MarkNetworkSealed(inst *v1alpha1.Instance) {
	inst.Status.Network = v1alpha1.NetworkSealed
	SetCondition(inst, v1alpha1.ConditionNetworkSealed, v1alpha1.ConditionTrue, "Sealed", "Firewall denies all traffic, no netvm")
}

// MarkNetworkResealed records that an aborted run sealed the qube again.
func MarkNetworkResealed(inst *v1alpha1.Instance) {
	inst.Status.Network = v1alpha1.NetworkSealed
	SetCondition(inst, v1alpha1.ConditionNetworkSealed, v1alpha1.ConditionTrue, "Resealed", "Run aborted before the network was opened")
}

// MarkNetworkSealFailed records that sealing the qube failed. Whether any
// traffic can leave the qube is not known.
func MarkNetworkSealFailed(inst *v1alpha1.Instance, err error) {
	SetCondition(inst, v1alpha1.ConditionNetworkSealed, v1alpha1.ConditionUnknown, "SealFailed", err.Error())
}

// MarkNetworkOpen records that the qube was attached to its netvm.
func MarkNetworkOpen(inst *v1alpha1.Instance) {
	inst.Status.Network = v1alpha1.NetworkOpen
	SetCondition(inst, v1alpha1.ConditionNetworkSealed, v1alpha1.ConditionFalse, "Opened",
		fmt.Sprintf("Attached to netvm %s", inst.Spec.NetVM))
}

// MarkMarkerPresent records that the guest agent reported marker.
func MarkMarkerPresent(inst *v1alpha1.Instance, marker string) {
	SetCondition(inst, v1alpha1.ConditionMarkerPresent, v1alpha1.ConditionTrue, "GuestReady",
		fmt.Sprintf("Feature %s set by the guest agent", marker))
}

// MarkPolicyGranted records the file copy policy written for the qube.
func MarkPolicyGranted(inst *v1alpha1.Instance, path string) {
	SetCondition(inst, v1alpha1.ConditionPolicyGranted, v1alpha1.ConditionTrue, "Granted", path)
}

// MarkPolicyRevoked records that the file copy policy is gone.
func MarkPolicyRevoked(inst *v1alpha1.Instance) {
	SetCondition(inst, v1alpha1.ConditionPolicyGranted, v1alpha1.ConditionFalse, "Revoked", "File copy policy removed")
}

// MarkPolicyRevokeFailed records that removing the policy failed, so the
// grant may still be in effect.
func MarkPolicyRevokeFailed(inst *v1alpha1.Instance, err error) {
	SetCondition(inst, v1alpha1.ConditionPolicyGranted, v1alpha1.ConditionTrue, "RevokeFailed", err.Error())
}

// Package vm provisions Windows qubes.
//
// A Provisioner drives one Instance at a time through the installation
// phases: it creates the qube, boots it from unattended installation media,
// waits out the two installer passes, installs Qubes Windows Tools, runs
// the post-installation scripts and shuts the qube down. Progress is
// detected by polling qube state; the guest reports nothing back directly.
//
// Error Handling:
//
// Failures up to and including the tools installation abort the instance.
// A failing qube start is the exception: it is retried until it succeeds,
// since the usual cause is dom0 running short on memory. Post-installation
// scripts and app menu synchronization are best-effort, their failures are
// logged as warnings and provisioning continues.
//
// However provisioning ends, the temporary file copy policy is revoked and
// a qube whose network was sealed is left sealed unless provisioning opened
// it on purpose.
//
// Context Support:
//
// All waits are unbounded and end only when the awaited state is reached or
// ctx is cancelled.
package vm

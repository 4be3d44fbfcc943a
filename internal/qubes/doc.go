// Package qubes is the control surface qubeforge uses to act on qubes.
//
// Surface is the capability interface the provisioning workflow is written
// against: create, start, stop, query, copy into and run commands in named
// qubes. Nothing in the workflow knows that these operations are qvm-* tools.
//
// CLI is the production Surface. It runs the dom0 qvm-* commands through a
// Runner, which in tests is replaced by a fake that records argv:
//
//	cli := qubes.NewCLI(qubes.ExecRunner{}, qubes.WithLogger(log))
//	running, err := cli.IsRunning(ctx, "win10")
//
// A RunningProbe can be attached to answer IsRunning from the libvirt socket
// instead of spawning qvm-check on every poll; see internal/libvirt.
package qubes

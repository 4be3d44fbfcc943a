// Package libvirt provides a client wrapper for dom0's libvirt daemon.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, disconnect, ping)
//   - Domain state queries for qubes
//
// Qubes OS defines a libvirt (libxl) domain for every running qube, named
// after the qube. Asking libvirt for the domain state over the local socket
// is much cheaper than spawning qvm-check, which matters for the provisioning
// pollers that query running state every second for hours:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	running, err := client.IsRunning("win10")
//
// *Client satisfies qubes.RunningProbe, so it can be attached to the qvm
// command adapter with qubes.WithRunningProbe.
package libvirt

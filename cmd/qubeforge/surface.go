package main

import (
	"context"
	"time"

	"github.com/jbweber/qubeforge/internal/config"
	"github.com/jbweber/qubeforge/internal/libvirt"
	"github.com/jbweber/qubeforge/internal/media"
	"github.com/jbweber/qubeforge/internal/qubes"
)

// newSurface creates the dom0 control surface. When the libvirt socket is
// reachable, running states are read from libvirt instead of qvm-check.
// The returned func releases the libvirt connection.
func newSurface(ctx context.Context, opts config.Options) (*qubes.CLI, func()) {
	cliOpts := []qubes.Option{qubes.WithLogger(log)}
	closeFn := func() {}

	if opts.LibvirtSocket != "" {
		client, err := libvirt.ConnectWithContext(ctx, opts.LibvirtSocket, 5*time.Second)
		if err != nil {
			log.Debugw("libvirt not available, using qvm-check for running state", "socket", opts.LibvirtSocket, "error", err)
		} else {
			cliOpts = append(cliOpts, qubes.WithRunningProbe(client))
			closeFn = func() {
				if err := client.Close(); err != nil {
					log.Warnw("Failed to close libvirt connection", "error", err)
				}
			}
		}
	}

	return qubes.NewCLI(qubes.ExecRunner{}, cliOpts...), closeFn
}

// newStager creates the media stager for the resources qube.
func newStager(s media.Surface, opts config.Options) *media.Stager {
	return media.NewStager(s, opts.ResourcesQube, opts.ResourcesDir, log)
}

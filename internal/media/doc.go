// Package media stages installation images on the resources qube.
//
// The resources qube holds the Windows ISOs, answer files and the scripts
// that combine them into bootable media. Everything a guest qube boots from
// is built there and attached with qvm-start --cdrom, so no untrusted image
// is ever opened in dom0. The only image dom0 reads is the Qubes Windows
// Tools ISO shipped by the dom0 package, which InspectToolsImage checks
// before it is streamed across.
package media

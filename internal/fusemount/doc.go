// Package fusemount serves a mounted flashio.System through FUSE.
//
// Every open FUSE handle holds one descriptor of the System, so the host sees
// the same descriptor limit a program on the device would.
package fusemount

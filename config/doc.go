// Package config loads flashio settings from TOML.
//
// A minimal file names the image and takes the reference geometry for
// everything else:
//
//	[image]
//	path = "flash.img"
//	size = "2MiB"
//
//	[snapshot]
//	store = "local"
//	path = "snapshots"
//
// Unknown keys are rejected so typos do not silently fall back to defaults.
package config

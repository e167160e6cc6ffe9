// Package testutil provides deterministic test data for flashio tests.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Payloads
//
//	rng := testutil.NewRNG(seed)
//	data := rng.Bytes(4096)        // incompressible
//	text := rng.Compressible(4096) // repetitive, compresses well
//
// # Reference Model
//
// Model is an in-memory map of file contents that randomized tests apply the
// same writes to, so the filesystem under test can be compared against it.
//
//	m := testutil.NewModel()
//	m.WriteAt("log", 10, []byte("x"))
//	m.Truncate("log", 4)
package testutil

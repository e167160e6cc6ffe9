package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/flashio/config"
	"github.com/hupe1980/flashio/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{t: t, dir: dir, config: filepath.Join(dir, "flashio.toml")}
	cfg := fmt.Sprintf(`
[image]
path = %q
size = "256KiB"

[snapshot]
store = "local"
path = %q
chunk_blocks = 8
`, filepath.Join(dir, "flash.img"), filepath.Join(dir, "snapshots"))
	require.NoError(t, os.WriteFile(h.config, []byte(cfg), 0o644))
	return h
}

// run executes the command line and returns stdout, stderr and the exit code.
func (h *harness) run(stdin string, args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	argv := append([]string{"-c", h.config}, args...)
	code := run(context.Background(), argv, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (h *harness) ok(stdin string, args ...string) string {
	h.t.Helper()
	out, errOut, code := h.run(stdin, args...)
	require.Equal(h.t, 0, code, "flashio %v: %s", args, errOut)
	return out
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), []string{"--help"}, nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Commands")
	assert.Equal(t, extendedMessage, stdout.String())

	stdout.Reset()
	assert.Equal(t, exitCodes["opts"], run(context.Background(), nil, nil, &stdout, &stderr))
	assert.Equal(t, exitCodes["opts"], run(context.Background(), []string{"frobnicate"}, nil, &stdout, &stderr))
	assert.Equal(t, exitCodes["opts"], run(context.Background(), []string{"--bogus", "ls"}, nil, &stdout, &stderr))
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[fs]\ncapacity = 1\n"), 0o644))
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-c", path, "df"}, nil, &stdout, &stderr)
	assert.Equal(t, exitCodes["config"], code)
	assert.Contains(t, stderr.String(), "capacity")
}

func TestFileCommands(t *testing.T) {
	h := newHarness(t)

	out := h.ok("", "format")
	assert.Contains(t, out, "64 blocks of 4096 bytes")

	h.ok("hello flash\n", "put", "-", "/greeting.txt")
	h.ok("", "mkdir", "/etc")

	host := filepath.Join(h.dir, "hosts")
	require.NoError(t, os.WriteFile(host, []byte("127.0.0.1 pico\n"), 0o644))
	h.ok("", "put", host, "/etc/hosts")

	assert.Equal(t, "hello flash\n", h.ok("", "cat", "/greeting.txt"))
	assert.Equal(t, "127.0.0.1 pico\n", h.ok("", "cat", "/etc/hosts"))

	ls := h.ok("", "ls")
	assert.Contains(t, ls, "etc")
	assert.Contains(t, ls, "greeting.txt")
	assert.Contains(t, h.ok("", "ls", "/etc"), "hosts")

	assert.Contains(t, h.ok("", "df"), "blocks 64")

	h.ok("", "rm", "/greeting.txt")
	_, errOut, code := h.run("", "cat", "/greeting.txt")
	assert.Equal(t, exitCodes["failed"], code)
	assert.Contains(t, errOut, "no such file")

	_, _, code = h.run("", "cat")
	assert.Equal(t, exitCodes["opts"], code)
}

func TestMountUnformatted(t *testing.T) {
	h := newHarness(t)
	_, errOut, code := h.run("", "ls")
	assert.Equal(t, exitCodes["failed"], code)
	assert.Contains(t, errOut, "flashio: mount")
}

func TestSnapshotRestore(t *testing.T) {
	h := newHarness(t)
	h.ok("", "format")
	h.ok("v1", "put", "-", "/state")

	assert.Contains(t, h.ok("", "snapshot", "golden"), "golden: 8 chunks")
	assert.Equal(t, "golden\n", h.ok("", "snapshots"))

	h.ok("v2", "put", "-", "/state")
	assert.Equal(t, "v2", h.ok("", "cat", "/state"))

	assert.Contains(t, h.ok("", "restore", "golden"), "restored golden")
	assert.Equal(t, "v1", h.ok("", "cat", "/state"))

	_, _, code := h.run("", "restore", "missing")
	assert.Equal(t, exitCodes["failed"], code)
}

func TestSnapshotWithCatalog(t *testing.T) {
	cat := image.NewMemoryCatalog()
	orig := openCatalog
	openCatalog = func(context.Context, *config.Config) (image.Catalog, error) { return cat, nil }
	t.Cleanup(func() { openCatalog = orig })

	h := newHarness(t)
	h.ok("", "format")
	h.ok("one", "put", "-", "/f")
	assert.Contains(t, h.ok("", "snapshot", "--device=pico"), "pico version 1")
	h.ok("two", "put", "-", "/f")
	assert.Contains(t, h.ok("", "snapshot", "--device=pico"), "pico version 2")

	hist := strings.Split(strings.TrimSpace(h.ok("", "snapshots", "--device=pico")), "\n")
	require.Len(t, hist, 2)
	assert.True(t, strings.HasPrefix(hist[0], "2\t"))

	h.ok("three", "put", "-", "/f")
	h.ok("", "restore", "--device=pico")
	assert.Equal(t, "two", h.ok("", "cat", "/f"))
}

func TestCatalogNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.ok("", "format")
	_, errOut, code := h.run("", "snapshot", "--device=pico")
	assert.Equal(t, exitCodes["failed"], code)
	assert.Contains(t, errOut, "catalog_table")
}

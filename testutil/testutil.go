package testutil

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// RNG wraps a seeded random source. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n random bytes.
func (r *RNG) Bytes(n int) []byte {
	p := make([]byte, n)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.rand.Read(p)
	return p
}

var words = []string{
	"flash", "block", "sector", "page", "erase", "program", "mount", "boot",
	"config", "log", "sensor", "value", "=", "\n", " ", "0x00",
}

// Compressible returns n bytes of word soup that compresses well.
func (r *RNG) Compressible(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := make([]byte, 0, n+16)
	for len(p) < n {
		p = append(p, words[r.rand.Intn(len(words))]...)
	}
	return p[:n]
}

// Name returns a random lower-case file name of length n.
func (r *RNG) Name(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + r.rand.Intn(26))
	}
	return string(b)
}

// Model is the expected content of a set of files.
type Model struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{files: make(map[string][]byte)}
}

// Create adds an empty file if it does not exist.
func (m *Model) Create(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		m.files[name] = nil
	}
}

// WriteAt writes p at off, zero-filling any gap.
func (m *Model) WriteAt(name string, off int64, p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.files[name]
	if end := off + int64(len(p)); end > int64(len(data)) {
		data = append(data, make([]byte, end-int64(len(data)))...)
	}
	copy(data[off:], p)
	m.files[name] = data
}

// Truncate resizes a file, zero-filling on growth.
func (m *Model) Truncate(name string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.files[name]
	if size <= int64(len(data)) {
		m.files[name] = data[:size:size]
		return
	}
	m.files[name] = append(data, make([]byte, size-int64(len(data)))...)
}

// Remove deletes a file.
func (m *Model) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
}

// Rename moves a file, replacing the target.
func (m *Model) Rename(oldname, newname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldname]
	if !ok {
		return
	}
	delete(m.files, oldname)
	m.files[newname] = data
}

// Content returns a copy of a file and whether it exists.
func (m *Model) Content(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	return append([]byte{}, data...), ok
}

// Names returns the sorted file names.
func (m *Model) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Size returns the total number of bytes in all files.
func (m *Model) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.files {
		n += int64(len(d))
	}
	return n
}

// String summarizes the model for failure messages.
func (m *Model) String() string {
	return fmt.Sprintf("model{files: %d, bytes: %d}", len(m.Names()), m.Size())
}

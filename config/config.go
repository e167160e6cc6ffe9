package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/hupe1980/flashio"
	"github.com/hupe1980/flashio/codec"
	"github.com/hupe1980/flashio/image"
	"github.com/hupe1980/flashio/internal/compress"
	"github.com/hupe1980/flashio/resource"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Size is a byte count. It accepts a plain number or a number with a unit
// such as "64KiB", "2 MiB" or "1GB".
type Size int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: size %q: %w", ErrInvalid, text, err)
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("%w: size %q overflows", ErrInvalid, text)
	}
	*s = Size(n)
	return nil
}

// Image locates the flash image file.
type Image struct {
	Path string `toml:"path"`
	// Size of the image file. Defaults to the geometry's size.
	Size Size `toml:"size"`
	// Base is the offset of the filesystem region within the image.
	Base uint32 `toml:"base"`
}

// Geometry mirrors flashio.Geometry. Zero fields take the reference values.
type Geometry struct {
	ReadSize      uint32 `toml:"read_size"`
	ProgSize      uint32 `toml:"prog_size"`
	BlockSize     uint32 `toml:"block_size"`
	BlockCount    uint32 `toml:"block_count"`
	CacheSize     uint32 `toml:"cache_size"`
	LookaheadSize uint32 `toml:"lookahead_size"`
	BlockCycles   int32  `toml:"block_cycles"`
}

// FS configures the mounted System.
type FS struct {
	Capacity    int    `toml:"capacity"`
	Compression string `toml:"compression"`
	NameMax     uint32 `toml:"name_max"`
	Locking     bool   `toml:"locking"`
	CRLF        bool   `toml:"crlf"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Snapshot selects the snapshot store and transfer limits.
type Snapshot struct {
	// Store is one of "local", "s3" or "minio".
	Store  string `toml:"store"`
	Path   string `toml:"path"`
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`

	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`

	ChunkBlocks uint32 `toml:"chunk_blocks"`
	Compression string `toml:"compression"`
	Codec       string `toml:"codec"`
	Workers     int64  `toml:"workers"`
	MemoryLimit Size   `toml:"memory_limit"`
	IOLimit     Size   `toml:"io_limit"`

	// CatalogTable names the DynamoDB table of the snapshot catalog.
	// Empty disables the catalog.
	CatalogTable string `toml:"catalog_table"`
}

// Config is the root of a configuration file.
type Config struct {
	Image    Image    `toml:"image"`
	Geometry Geometry `toml:"geometry"`
	FS       FS       `toml:"fs"`
	Log      Log      `toml:"log"`
	Snapshot Snapshot `toml:"snapshot"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Image: Image{Path: "flash.img", Size: 2 << 20},
		FS: FS{
			Capacity:    flashio.DefaultCapacity,
			Compression: compress.None.String(),
		},
		Log: Log{Level: "warn", Format: "text"},
		Snapshot: Snapshot{
			Store:       "local",
			Path:        "snapshots",
			ChunkBlocks: image.DefaultChunkBlocks,
			Compression: compress.ZSTD.String(),
			Codec:       codec.Default.Name(),
			Workers:     4,
			MemoryLimit: 64 << 20,
		},
	}
}

// Load reads path on top of the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML from r on top of the defaults and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
	}
	if c.Image.Path == "" {
		return bad("image.path is empty")
	}
	g := c.FlashGeometry()
	if err := g.Validate(); err != nil {
		return bad("geometry: %v", err)
	}
	if int64(c.Image.Base)+g.Size() > int64(c.ImageSize()) {
		return bad("geometry needs %d bytes at offset %d, image has %d", g.Size(), c.Image.Base, c.ImageSize())
	}
	if c.FS.Capacity < 4 {
		return bad("fs.capacity %d is below 4", c.FS.Capacity)
	}
	if _, err := compress.ParseType(c.FS.Compression); err != nil {
		return bad("fs.compression: %v", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return bad("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return bad("log.format %q", c.Log.Format)
	}
	return c.Snapshot.validate(bad)
}

func (s *Snapshot) validate(bad func(string, ...any) error) error {
	switch s.Store {
	case "local":
		if s.Path == "" {
			return bad("snapshot.path is required for the local store")
		}
	case "s3", "minio":
		if s.Bucket == "" {
			return bad("snapshot.bucket is required for the %s store", s.Store)
		}
		if s.Store == "minio" && s.Endpoint == "" {
			return bad("snapshot.endpoint is required for the minio store")
		}
	default:
		return bad("snapshot.store %q", s.Store)
	}
	if s.ChunkBlocks == 0 {
		return bad("snapshot.chunk_blocks is 0")
	}
	if _, err := compress.ParseType(s.Compression); err != nil {
		return bad("snapshot.compression: %v", err)
	}
	if _, ok := codec.ByName(s.Codec); !ok {
		return bad("snapshot.codec %q", s.Codec)
	}
	if s.Workers < 1 {
		return bad("snapshot.workers %d", s.Workers)
	}
	return nil
}

// FlashGeometry returns the filesystem geometry with defaults applied. The
// block count defaults to as many blocks as fit in the image.
func (c *Config) FlashGeometry() flashio.Geometry {
	ref := flashio.PicoGeometry(int64(c.Image.Size) - int64(c.Image.Base))
	g := c.Geometry
	return flashio.Geometry{
		ReadSize:      or(g.ReadSize, ref.ReadSize),
		ProgSize:      or(g.ProgSize, ref.ProgSize),
		BlockSize:     or(g.BlockSize, ref.BlockSize),
		BlockCount:    or(g.BlockCount, uint32((int64(c.Image.Size)-int64(c.Image.Base))/int64(or(g.BlockSize, ref.BlockSize)))),
		CacheSize:     or(g.CacheSize, ref.CacheSize),
		LookaheadSize: or(g.LookaheadSize, ref.LookaheadSize),
		BlockCycles:   or(g.BlockCycles, ref.BlockCycles),
	}
}

// ImageSize returns the image file size, defaulting to the geometry's size.
func (c *Config) ImageSize() Size {
	if c.Image.Size > 0 {
		return c.Image.Size
	}
	return Size(int64(c.Image.Base) + c.FlashGeometry().Size())
}

func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.Log.Level))
	return l, err
}

// Logger builds the logger described by the log section. It writes to
// stderr.
func (c *Config) Logger() *flashio.Logger {
	level, _ := c.LogLevel()
	if c.Log.Format == "json" {
		return flashio.NewJSONLogger(nil, level)
	}
	return flashio.NewTextLogger(nil, level)
}

// Options returns the Mount and Format options of the fs section.
func (c *Config) Options() []flashio.Option {
	ct, _ := compress.ParseType(c.FS.Compression)
	opts := []flashio.Option{
		flashio.WithCapacity(c.FS.Capacity),
		flashio.WithCompression(ct),
		flashio.WithNameMax(c.FS.NameMax),
		flashio.WithLogger(c.Logger()),
	}
	if c.FS.Locking {
		opts = append(opts, flashio.WithLocking())
	}
	if c.FS.CRLF {
		con := flashio.StdConsole()
		con.SetCRLF(true)
		opts = append(opts, flashio.WithConsole(con))
	}
	return opts
}

// Controller returns a resource controller for snapshot transfers.
func (c *Config) Controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MaxWorkers:         c.Snapshot.Workers,
		MemoryLimitBytes:   int64(c.Snapshot.MemoryLimit),
		IOLimitBytesPerSec: int64(c.Snapshot.IOLimit),
	})
}

// ImageOptions returns the Snapshot and Restore options of the snapshot section.
func (c *Config) ImageOptions() []image.Option {
	ct, _ := compress.ParseType(c.Snapshot.Compression)
	cd, _ := codec.ByName(c.Snapshot.Codec)
	return []image.Option{
		image.WithChunkBlocks(c.Snapshot.ChunkBlocks),
		image.WithCompression(ct),
		image.WithCodec(cd),
		image.WithController(c.Controller()),
		image.WithLogger(c.Logger().Logger),
	}
}

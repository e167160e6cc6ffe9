// Package compress frames byte blocks with optional LZ4 or ZSTD compression.
//
// A frame is a 9-byte header followed by the payload:
//
//	[Type uint8][RawSize uint32][StoredSize uint32][payload...]
//
// Type is CompressionNone when compression did not pay off, in which case the
// payload is the raw data. Decode reads the type from the frame, so callers only
// choose the algorithm when encoding.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores data uncompressed.
	None Type = 0
	// LZ4 is fast block compression.
	LZ4 Type = 1
	// ZSTD has a better ratio at a higher CPU cost.
	ZSTD Type = 2
)

// HeaderSize is the size of a frame header in bytes.
const HeaderSize = 9

// ErrCorrupt is returned when a frame cannot be decoded.
var ErrCorrupt = errors.New("compress: corrupt frame")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd". The empty string means None.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("compress: unknown algorithm %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode frames data, compressing it with t when that makes it smaller.
func Encode(data []byte, t Type) ([]byte, error) {
	var packed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n] // n == 0 means incompressible
	case ZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", t)
	}

	if len(packed) == 0 || len(packed) >= len(data) {
		t, packed = None, data
	}

	out := make([]byte, HeaderSize+len(packed))
	out[0] = byte(t)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(packed)))
	copy(out[HeaderSize:], packed)
	return out, nil
}

// FrameSize returns the total length of the frame starting at frame.
func FrameSize(frame []byte) (int, error) {
	if len(frame) < HeaderSize {
		return 0, ErrCorrupt
	}
	return HeaderSize + int(binary.LittleEndian.Uint32(frame[5:])), nil
}

// Decode returns the raw data of a frame. Trailing bytes after the frame are ignored.
func Decode(frame []byte) ([]byte, error) {
	size, err := FrameSize(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) < size {
		return nil, fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}
	t := Type(frame[0])
	rawSize := binary.LittleEndian.Uint32(frame[1:])
	payload := frame[HeaderSize:size]

	switch t {
	case None:
		if uint32(len(payload)) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		out := make([]byte, rawSize)
		copy(out, payload)
		return out, nil

	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return out, nil

	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrCorrupt, t)
	}
}

package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	compressible := bytes.Repeat([]byte("superblock metadata "), 200)
	random := make([]byte, 4096)
	_, _ = rand.Read(random)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			frame, err := Encode(compressible, typ)
			require.NoError(t, err)
			if typ != None {
				assert.Less(t, len(frame), len(compressible))
				assert.Equal(t, byte(typ), frame[0])
			}

			got, err := Decode(append(frame, 0xFF, 0xFF))
			require.NoError(t, err)
			assert.Equal(t, compressible, got)

			// Incompressible input falls back to a stored frame.
			frame, err = Encode(random, typ)
			require.NoError(t, err)
			assert.Equal(t, byte(None), frame[0])
			got, err = Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, random, got)
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	frame, err := Encode(bytes.Repeat([]byte{7}, 512), ZSTD)
	require.NoError(t, err)
	_, err = Decode(frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrCorrupt)

	frame[HeaderSize] ^= 0xFF
	_, err = Decode(frame)
	assert.ErrorIs(t, err, ErrCorrupt)

	frame[0] = 9
	_, err = Decode(frame)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{"": None, "none": None, "LZ4": LZ4, "zstd": ZSTD} {
		got, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("gzip")
	assert.Error(t, err)
}

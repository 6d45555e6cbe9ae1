// Package payload implements the storage strategies for memory content:
// the compression codec and the chunk writer. Both decisions are recorded
// on the payload at write time; reads always follow the stored tags, so
// data written under any past policy stays readable.
package payload

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CodecTag identifies the codec recorded on a stored payload. The
// adaptive policy is write-time only and never appears as a tag.
type CodecTag string

const (
	CodecNone CodecTag = "none"
	CodecZstd CodecTag = "zstd"
)

// Codec compresses and decompresses payload bytes.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Tag() CodecTag
}

// Shared zstd encoder/decoder. EncodeAll/DecodeAll on a nil-writer
// encoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("payload: init zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("payload: init zstd decoder: %v", err))
	}
}

type noneCodec struct{}

func (noneCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCodec) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Tag() CodecTag                          { return CodecNone }

type zstdCodec struct{}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

func (zstdCodec) Tag() CodecTag { return CodecZstd }

// CodecFor returns the codec for a stored tag.
func CodecFor(tag CodecTag) (Codec, error) {
	switch tag {
	case CodecNone, "":
		return noneCodec{}, nil
	case CodecZstd:
		return zstdCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec tag %q", tag)
	}
}

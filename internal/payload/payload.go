package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Mode identifies how a payload is stored.
type Mode string

const (
	ModeInline            Mode = "inline"
	ModeInlineCompressed  Mode = "inline_compressed"
	ModeChunked           Mode = "chunked"
	ModeChunkedCompressed Mode = "chunked_compressed"
)

// Chunked reports whether the mode stores content in the chunk table.
func (m Mode) Chunked() bool {
	return m == ModeChunked || m == ModeChunkedCompressed
}

// Compressed reports whether the stored stream is codec-encoded.
func (m Mode) Compressed() bool {
	return m == ModeInlineCompressed || m == ModeChunkedCompressed
}

// Policy is the write-time storage policy derived from configuration.
// It influences new writes only; reads follow the stored tags.
type Policy struct {
	// Algorithm is none, zstd, or adaptive.
	Algorithm string
	// CompressionEnabled gates compression entirely.
	CompressionEnabled bool
	// MinCompressBytes is the adaptive floor.
	MinCompressBytes int
	// ChunkingEnabled gates the chunk writer.
	ChunkingEnabled bool
	// ChunkThreshold is the original-length bound above which content is
	// chunked.
	ChunkThreshold int
	// ChunkSize is the slice size for chunked streams.
	ChunkSize int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Algorithm:          "adaptive",
		CompressionEnabled: true,
		MinCompressBytes:   1024,
		ChunkingEnabled:    true,
		ChunkThreshold:     64 * 1024,
		ChunkSize:          32 * 1024,
	}
}

// adaptiveRatio is the bound under which adaptive keeps the compressed
// form: compressed/original must be < 0.9.
const adaptiveRatio = 0.9

// Encoded is the storable form of memory content.
type Encoded struct {
	Mode          Mode
	Codec         CodecTag
	OriginalBytes int64
	// Hash is the hex sha-256 of the original (pre-codec) bytes.
	Hash string
	// Inline holds the stored stream for inline modes.
	Inline []byte
	// Chunks holds the ordered slices for chunked modes.
	Chunks [][]byte
}

// Decode sentinels. The engine wraps these into Corrupted errors carrying
// the memory id.
var (
	ErrHashMismatch = errors.New("content hash mismatch")
	ErrBadStream    = errors.New("stored stream is not decodable")
)

// Hash returns the hex sha-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Encode applies the policy to content: compress, then chunk when the
// original length exceeds the threshold. Compression precedes chunking so
// chunk bytes concatenate to the compressed stream.
func Encode(content []byte, p Policy) (*Encoded, error) {
	enc := &Encoded{
		Codec:         CodecNone,
		OriginalBytes: int64(len(content)),
		Hash:          Hash(content),
	}

	stream := content
	if p.CompressionEnabled {
		compressed, tag, err := compressFor(content, p)
		if err != nil {
			return nil, err
		}
		if tag == CodecZstd {
			stream = compressed
			enc.Codec = CodecZstd
		}
	}

	// The chunk decision tests the original length, not the stream: a
	// payload over the threshold is chunked even when compression shrank
	// the stream to a single chunk.
	chunked := p.ChunkingEnabled && len(content) > p.ChunkThreshold
	if chunked {
		enc.Chunks = Split(stream, p.ChunkSize)
		if len(enc.Chunks) == 0 {
			chunked = false
		}
	}

	switch {
	case chunked && enc.Codec == CodecZstd:
		enc.Mode = ModeChunkedCompressed
	case chunked:
		enc.Mode = ModeChunked
	case enc.Codec == CodecZstd:
		enc.Mode = ModeInlineCompressed
		enc.Inline = stream
	default:
		enc.Mode = ModeInline
		enc.Inline = stream
	}
	return enc, nil
}

// compressFor runs the configured codec policy over content and reports
// which codec actually applied.
func compressFor(content []byte, p Policy) ([]byte, CodecTag, error) {
	switch strings.ToLower(p.Algorithm) {
	case "none", "":
		return content, CodecNone, nil
	case "zstd":
		out, err := (zstdCodec{}).Compress(content)
		return out, CodecZstd, err
	case "adaptive":
		if len(content) < p.MinCompressBytes {
			return content, CodecNone, nil
		}
		out, err := (zstdCodec{}).Compress(content)
		if err != nil {
			return nil, CodecNone, err
		}
		if float64(len(out))/float64(len(content)) >= adaptiveRatio {
			return content, CodecNone, nil
		}
		return out, CodecZstd, nil
	default:
		return nil, CodecNone, fmt.Errorf("unknown compression algorithm %q", p.Algorithm)
	}
}

// Decode reverses Encode: stream is the stored bytes (inline column or
// the concatenation of chunks in index order). The original hash and
// length are verified; a mismatch returns ErrHashMismatch.
func Decode(codec CodecTag, hash string, originalBytes int64, stream []byte) ([]byte, error) {
	c, err := CodecFor(codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	content, err := c.Decompress(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	if int64(len(content)) != originalBytes {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrHashMismatch, len(content), originalBytes)
	}
	if Hash(content) != hash {
		return nil, ErrHashMismatch
	}
	return content, nil
}

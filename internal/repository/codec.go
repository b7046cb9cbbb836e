package repository

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/objectfs/snapfs/pkg/types"
)

// encMode uses Core Deterministic Encoding so the same snapshot or tree
// always hashes to the same id. Times keep nanoseconds and zone offset.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("repository: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("repository: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("repository: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("repository: zstd decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// ObjectKind separates the id domains of the stored object classes.
type ObjectKind string

const (
	KindSnapshot ObjectKind = "snapshots"
	KindTree     ObjectKind = "trees"
	KindData     ObjectKind = "data"
)

// domainKey returns the 32-byte BLAKE3 key for a kind: its ASCII name,
// zero padded.
func domainKey(kind ObjectKind) []byte {
	var key [32]byte
	copy(key[:], "snapfs."+string(kind))
	return key[:]
}

// ComputeID returns the content id of an uncompressed object.
func ComputeID(kind ObjectKind, data []byte) types.ID {
	hasher, err := blake3.NewKeyed(domainKey(kind))
	if err != nil {
		panic("repository: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	var id types.ID
	copy(id[:], hasher.Sum(nil))
	return id
}

// ObjectKey returns the backend key of an object.
func ObjectKey(kind ObjectKind, id types.ID) string {
	return string(kind) + "/" + id.String()
}

// Compression identifies the algorithm a stored object was compressed with.
// The tag is the first byte of every stored object.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// String returns the human-readable name of a compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// maxObjectSize bounds the decoded size of a single object.
const maxObjectSize = 1 << 30

// encodeObject frames data as: tag byte, uvarint uncompressed length,
// payload. Data that does not shrink is stored uncompressed.
func encodeObject(data []byte, compression Compression) ([]byte, error) {
	payload := data
	tag := compression

	switch compression {
	case CompressionNone:
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			tag = CompressionNone
		} else {
			payload = dst[:n]
		}
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			tag = CompressionNone
		} else {
			payload = compressed
		}
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}

	header := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	header[0] = byte(tag)
	header = binary.AppendUvarint(header, uint64(len(data)))
	return append(header, payload...), nil
}

// decodeObject reverses encodeObject.
func decodeObject(stored []byte) ([]byte, error) {
	if len(stored) < 2 {
		return nil, fmt.Errorf("object too short: %d bytes", len(stored))
	}
	tag := Compression(stored[0])
	size, n := binary.Uvarint(stored[1:])
	if n <= 0 || size > maxObjectSize {
		return nil, fmt.Errorf("invalid object length header")
	}
	payload := stored[1+n:]

	switch tag {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("uncompressed object: size %d does not match header %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		dst := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return dst, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(result)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

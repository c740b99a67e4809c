package lens

import (
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression for recorded session blobs. Encoded session batches are usually
// in the kilobyte range, where snappy is effectively free; zstd earns its
// ratio once batches grow. Codec selection lives with the storage keys in
// storage.go.

// ZstdCompress compresses a session blob with zstd and returns the compressed data.
func ZstdCompress(dst, data []byte) []byte {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic(err) // static options, cannot fail
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, dst)
}

// ZstdDecompress decompresses a zstd-compressed blob and returns the original data.
func ZstdDecompress(dst, data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, dst)
}

// SnappyCompress compresses a session blob with snappy and returns the compressed data.
func SnappyCompress(dst, data []byte) []byte {
	return s2.EncodeSnappyBest(dst, data)
}

// SnappyDecompress decompresses a snappy-compressed blob and returns the original data.
func SnappyDecompress(dst, data []byte) ([]byte, error) {
	return snappy.Decode(dst, data)
}

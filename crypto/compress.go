package crypto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compress deflates data at BestSpeed, the same trade-off
// klauspost/compress's own flate drop-in is built for (CPU is cheaper
// than network/storage for session blobs around the KB size spec's
// CompressionThreshold targets).
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: compress: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: decompress: %w", err)
	}
	return out, nil
}

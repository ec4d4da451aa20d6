package ws

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
)

const gzipThreshold = 512

var errFrameTooLarge = errors.New("decompressed frame exceeds limit")

// Compress gzips an outbound frame for clients that opted in.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write(data); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates a gzip frame, refusing output larger than limit bytes.
func Decompress(data []byte, limit int64) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	out, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, errFrameTooLarge
	}
	return out, nil
}

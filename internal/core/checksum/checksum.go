package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/Ning0612/Treecmp/internal/adapter"
	"github.com/Ning0612/Treecmp/internal/domain"
)

// Options configures the checksum calculator
type Options struct {
	// BufferSize: size of buffer for streaming reads
	// Default: 32KB
	BufferSize int
}

// DefaultOptions returns the recommended default options
func DefaultOptions() Options {
	return Options{
		BufferSize: 32 * 1024, // 32KB
	}
}

// Calculator computes content digests
type Calculator interface {
	// Compute reads r once and returns a lowercase hex digest per algorithm.
	// Cancellation is checked before every buffer read.
	Compute(ctx context.Context, r io.Reader, algos []domain.HashAlgorithm) (map[domain.HashAlgorithm]string, error)
}

// DefaultCalculator implements Calculator with streaming support
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

// NewHash returns a fresh hash state for algo
func NewHash(algo domain.HashAlgorithm) (hash.Hash, error) {
	switch algo {
	case domain.HashCRC32:
		return NewCRC32(), nil
	case domain.HashMD5:
		return md5.New(), nil
	case domain.HashSHA256:
		return sha256.New(), nil
	case domain.HashXXHash64:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, algo)
	}
}

// Compute implements the Calculator interface
func (c *DefaultCalculator) Compute(ctx context.Context, r io.Reader, algos []domain.HashAlgorithm) (map[domain.HashAlgorithm]string, error) {
	if len(algos) == 0 {
		return map[domain.HashAlgorithm]string{}, nil
	}

	hashes := make(map[domain.HashAlgorithm]hash.Hash, len(algos))
	writers := make([]io.Writer, 0, len(algos))
	for _, algo := range algos {
		if _, dup := hashes[algo]; dup {
			continue
		}
		h, err := NewHash(algo)
		if err != nil {
			return nil, err
		}
		hashes[algo] = h
		writers = append(writers, h)
	}
	w := io.MultiWriter(writers...)

	// Buffer is per call; concurrent Compute calls share nothing
	buffer := make([]byte, c.opts.BufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := r.Read(buffer)
		if n > 0 {
			if _, hashErr := w.Write(buffer[:n]); hashErr != nil {
				return nil, fmt.Errorf("hash write error: %w", hashErr)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
	}

	out := make(map[domain.HashAlgorithm]string, len(hashes))
	for algo, h := range hashes {
		out[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}

// ComputeFile opens path on fs, hashes it and closes it again.
// wrap, when non-nil, wraps the opened reader (e.g. for byte counting).
func ComputeFile(ctx context.Context, calc Calculator, fs adapter.FileSystem, path string, algos []domain.HashAlgorithm, wrap func(io.Reader) io.Reader) (map[domain.HashAlgorithm]string, error) {
	rc, err := fs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if wrap != nil {
		r = wrap(rc)
	}
	return calc.Compute(ctx, r, algos)
}

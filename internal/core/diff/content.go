package diff

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/Ning0612/Treecmp/internal/adapter"
)

// DefaultBlockSize is the read size used by content comparison
const DefaultBlockSize = 64 * 1024

// StreamsEqual reads a and b in lockstep blocks and stops at the first
// differing block or length. ctx is checked before every block.
func StreamsEqual(ctx context.Context, a, b io.Reader, blockSize int) (bool, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	bufA := make([]byte, blockSize)
	bufB := make([]byte, blockSize)

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		if errA != nil && !isEOF(errA) {
			return false, errA
		}
		if errB != nil && !isEOF(errB) {
			return false, errB
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		// A short or empty block on both sides means both streams ended
		if isEOF(errA) || isEOF(errB) {
			return isEOF(errA) && isEOF(errB), nil
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ContentEqual opens leftPath and rightPath and compares their bytes. The
// paths differ only in case under case-insensitive collation.
// wrap, when non-nil, wraps each opened reader.
func ContentEqual(ctx context.Context, left adapter.FileSystem, leftPath string, right adapter.FileSystem, rightPath string, blockSize int, wrap func(io.Reader) io.Reader) (bool, error) {
	lr, err := left.Open(ctx, leftPath)
	if err != nil {
		return false, err
	}
	defer lr.Close()

	rr, err := right.Open(ctx, rightPath)
	if err != nil {
		return false, err
	}
	defer rr.Close()

	var a, b io.Reader = lr, rr
	if wrap != nil {
		a, b = wrap(lr), wrap(rr)
	}
	return StreamsEqual(ctx, a, b, blockSize)
}

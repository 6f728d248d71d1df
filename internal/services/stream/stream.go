package stream

import (
	"io"

	"github.com/modelrelay/modelrelay/internal/models"
)

// DeltaStream is a lazy, non-restartable sequence of completion increments.
// Recv returns io.EOF after the final chunk. Close releases the upstream
// connection and is safe after EOF or mid-stream.
type DeltaStream interface {
	Recv() (models.DeltaChunk, error)
	Close() error
}

// sliceStream replays a fixed set of chunks. Used by tests and for serving
// simulated streams.
type sliceStream struct {
	chunks []models.DeltaChunk
	pos    int
	err    error
	closed bool
}

// FromChunks builds a DeltaStream that yields the given chunks and then
// err, or io.EOF when err is nil.
func FromChunks(chunks []models.DeltaChunk, err error) DeltaStream {
	return &sliceStream{chunks: chunks, err: err}
}

func (s *sliceStream) Recv() (models.DeltaChunk, error) {
	if s.closed {
		return models.DeltaChunk{}, io.EOF
	}
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return models.DeltaChunk{}, s.err
		}
		return models.DeltaChunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

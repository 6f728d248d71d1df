package stream

import (
	"context"
	"encoding/json"
	"io"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/utils"
)

// FlushWriter is the output side of a relay. *bufio.Writer satisfies it.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// Relay copies a DeltaStream to a client as OpenAI-style SSE frames. Every
// stream ends with a data: [DONE] frame, including error cases, so clients
// always see an explicit terminator.
type Relay struct {
	RequestID string
	ID        string
	Model     string
	Provider  string
	Created   int64

	// OnComplete receives the accumulated text and finish reason after a
	// stream ends naturally. Used to persist assistant turns.
	OnComplete func(fullText, finishReason string)
}

// Run drains the upstream until EOF, error or ctx cancellation. The
// upstream is always closed before returning.
func (r *Relay) Run(ctx context.Context, upstream DeltaStream, w FlushWriter) error {
	start := time.Now()
	var chunks int

	defer func() {
		if err := upstream.Close(); err != nil {
			fiberlog.Errorf("[%s] error closing upstream stream: %v", r.RequestID, err)
		}
		fiberlog.Infof("[%s] stream relay finished: %d chunks in %v", r.RequestID, chunks, time.Since(start))
	}()

	buf := utils.Get()
	defer utils.Put(buf)

	var full []byte
	var finishReason string
	first := true

	for {
		select {
		case <-ctx.Done():
			fiberlog.Infof("[%s] client disconnected, aborting stream", r.RequestID)
			return ctx.Err()
		default:
		}

		delta, err := upstream.Recv()
		if err == io.EOF {
			if werr := r.writeDone(w); werr != nil {
				return werr
			}
			if r.OnComplete != nil {
				r.OnComplete(string(full), finishReason)
			}
			return nil
		}
		if err != nil {
			fiberlog.Errorf("[%s] upstream stream error: %v", r.RequestID, err)
			r.writeErrorFrame(w, err)
			return err
		}

		if delta.FinishReason != "" {
			finishReason = delta.FinishReason
		}
		full = append(full, delta.Content...)

		frame := r.buildChunk(delta, first)
		first = false
		chunks++

		buf.Reset()
		buf.WriteString("data: ")
		payload, merr := json.Marshal(frame)
		if merr != nil {
			fiberlog.Errorf("[%s] failed to marshal stream chunk: %v", r.RequestID, merr)
			continue
		}
		buf.Write(payload)
		buf.WriteString("\n\n")

		if _, werr := w.Write(buf.B); werr != nil {
			return werr
		}
		if werr := w.Flush(); werr != nil {
			return werr
		}
	}
}

func (r *Relay) buildChunk(delta models.DeltaChunk, first bool) models.ChatCompletionChunk {
	choice := models.ChunkChoice{
		Delta: models.ChunkDelta{Content: delta.Content},
	}
	if first {
		choice.Delta.Role = models.RoleAssistant
	}
	if delta.FinishReason != "" {
		fr := delta.FinishReason
		choice.FinishReason = &fr
	}
	return models.ChatCompletionChunk{
		ID:      r.ID,
		Object:  "chat.completion.chunk",
		Created: r.Created,
		Model:   r.Model,
		Choices: []models.ChunkChoice{choice},
	}
}

// writeErrorFrame emits a terminal error event followed by [DONE]. Write
// failures here are logged only; the stream is already failing.
func (r *Relay) writeErrorFrame(w FlushWriter, cause error) {
	envelope := models.SanitizeError(cause).Envelope()
	payload, err := json.Marshal(envelope)
	if err != nil {
		fiberlog.Errorf("[%s] failed to marshal stream error frame: %v", r.RequestID, err)
		return
	}
	if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
		fiberlog.Debugf("[%s] could not deliver error frame: %v", r.RequestID, err)
		return
	}
	if err := r.writeDone(w); err != nil {
		fiberlog.Debugf("[%s] could not deliver [DONE] after error: %v", r.RequestID, err)
	}
}

func (r *Relay) writeDone(w FlushWriter) error {
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

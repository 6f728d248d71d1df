package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/modelrelay/modelrelay/internal/models"
)

type bufferWriter struct {
	bytes.Buffer
}

func (b *bufferWriter) Flush() error { return nil }

func delta(content string) models.DeltaChunk {
	return models.DeltaChunk{Content: content}
}

func frames(t *testing.T, out string) []string {
	t.Helper()
	var frames []string
	for _, part := range strings.Split(out, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "data: ") {
			t.Fatalf("frame missing data prefix: %q", part)
		}
		frames = append(frames, strings.TrimPrefix(part, "data: "))
	}
	return frames
}

func TestRelayEmitsChunksAndDone(t *testing.T) {
	var w bufferWriter
	r := &Relay{RequestID: "req-1", ID: "chatcmpl-1", Model: "m", Created: 100}

	upstream := FromChunks([]models.DeltaChunk{
		delta("Hel"),
		delta("lo"),
		{FinishReason: "stop"},
	}, nil)

	if err := r.Run(context.Background(), upstream, &w); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames(t, w.String())
	if len(got) != 4 {
		t.Fatalf("got %d frames, want 4 (3 chunks + [DONE]): %v", len(got), got)
	}
	if got[len(got)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", got[len(got)-1])
	}

	var first models.ChatCompletionChunk
	if err := json.Unmarshal([]byte(got[0]), &first); err != nil {
		t.Fatalf("unmarshal first frame: %v", err)
	}
	if first.Choices[0].Delta.Role != models.RoleAssistant {
		t.Error("first frame should carry the assistant role")
	}
	if first.Choices[0].Delta.Content != "Hel" {
		t.Errorf("first frame content = %q", first.Choices[0].Delta.Content)
	}

	var last models.ChatCompletionChunk
	if err := json.Unmarshal([]byte(got[2]), &last); err != nil {
		t.Fatalf("unmarshal final chunk: %v", err)
	}
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Error("final chunk should carry finish_reason stop")
	}
}

func TestRelayAccumulatesForOnComplete(t *testing.T) {
	var w bufferWriter
	var gotText, gotFinish string
	r := &Relay{
		RequestID: "req-1",
		ID:        "chatcmpl-1",
		OnComplete: func(text, finish string) {
			gotText, gotFinish = text, finish
		},
	}

	upstream := FromChunks([]models.DeltaChunk{
		delta("one "),
		delta("two"),
		{FinishReason: "stop"},
	}, nil)

	if err := r.Run(context.Background(), upstream, &w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotText != "one two" {
		t.Errorf("accumulated text = %q, want %q", gotText, "one two")
	}
	if gotFinish != "stop" {
		t.Errorf("finish reason = %q, want stop", gotFinish)
	}
}

func TestRelayErrorFrameThenDone(t *testing.T) {
	var w bufferWriter
	r := &Relay{RequestID: "req-1", ID: "chatcmpl-1"}

	cause := models.NewUpstreamError("openai", 500, "upstream exploded", errors.New("boom"))
	upstream := FromChunks([]models.DeltaChunk{delta("partial")}, cause)

	err := r.Run(context.Background(), upstream, &w)
	if err == nil {
		t.Fatal("expected error from Run")
	}

	got := frames(t, w.String())
	if len(got) != 3 {
		t.Fatalf("got %d frames, want chunk + error + [DONE]: %v", len(got), got)
	}

	var envelope models.ErrorEnvelope
	if err := json.Unmarshal([]byte(got[1]), &envelope); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if envelope.Error.Type != string(models.ErrorTypeUpstream) {
		t.Errorf("error type = %q, want upstream", envelope.Error.Type)
	}
	if got[2] != "[DONE]" {
		t.Errorf("stream must terminate with [DONE], got %q", got[2])
	}
}

func TestRelayOnCompleteNotCalledOnError(t *testing.T) {
	var w bufferWriter
	called := false
	r := &Relay{
		RequestID:  "req-1",
		OnComplete: func(string, string) { called = true },
	}

	upstream := FromChunks([]models.DeltaChunk{delta("x")}, errors.New("broken"))
	if err := r.Run(context.Background(), upstream, &w); err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("OnComplete must not fire for failed streams")
	}
}

type closeTrackingStream struct {
	DeltaStream
	closed bool
}

func (c *closeTrackingStream) Close() error {
	c.closed = true
	return c.DeltaStream.Close()
}

func TestRelayCancellationClosesUpstream(t *testing.T) {
	var w bufferWriter
	r := &Relay{RequestID: "req-1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	upstream := &closeTrackingStream{DeltaStream: FromChunks([]models.DeltaChunk{delta("x")}, nil)}
	err := r.Run(ctx, upstream, &w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !upstream.closed {
		t.Error("upstream must be closed on cancellation")
	}
}

func TestFromChunksEOFAfterDrain(t *testing.T) {
	s := FromChunks([]models.DeltaChunk{delta("a")}, nil)
	if _, err := s.Recv(); err != nil {
		t.Fatalf("first Recv: %v", err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("second Recv err = %v, want io.EOF", err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("Recv after EOF err = %v, want io.EOF", err)
	}
}

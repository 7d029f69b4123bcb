package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/siamtech/agent-gateway/internal/models"
)

const heartbeatInterval = 15 * time.Second

// streamWriter wraps an http.ResponseWriter for OpenAI-style SSE delivery,
// grounded on the flusher/header idiom of Koopa0's internal/web/sse.Writer
// but carrying JSON chat-completion chunks rather than HTML fragments, and
// a periodic zero-content heartbeat chunk so idle proxies don't time the connection
// out mid-answer (spec §4.2 streaming).
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamWriter(w http.ResponseWriter) (*streamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &streamWriter{w: w, flusher: flusher}, nil
}

func (s *streamWriter) writeChunk(chunk models.ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *streamWriter) writeHeartbeat(id, model string, createdAt int64) {
	s.writeChunk(deltaChunk(id, model, createdAt, ""))
}

func (s *streamWriter) writeDone() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

// streamChunkRunes is the window size streamAnswer slices the finished
// answer into. Chosen as a rune count, not a word count: the postgres
// agent's rendered Markdown tables and head summaries (render.go) are full
// of newlines, and word-grouping them with rejoin-by-space would discard
// that structure, breaking the streamed/non-streamed content-equivalence
// invariant (spec §8).
const streamChunkRunes = 24

// streamAnswer chunks a fully-computed answer into fixed-size SSE deltas.
// The three agents produce one finished string apiece rather than a token
// stream of their own (the postgres agent, in particular, has no partial
// answer before its query finishes), so streaming-vs-non-streaming
// equivalence (spec §8) is implemented here as delivery chunking of the
// same completed text, not as genuine token-by-token generation. Slicing by
// raw rune windows (rather than tokenizing on whitespace and rejoining)
// means the concatenation of every delta.content is byte-for-byte the
// original answer, newlines included.
func streamAnswer(ctx context.Context, sw *streamWriter, id, model, answer string) {
	createdAt := time.Now().Unix()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	runes := []rune(answer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < len(runes); i += streamChunkRunes {
			end := i + streamChunkRunes
			if end > len(runes) {
				end = len(runes)
			}
			piece := string(runes[i:end])
			if err := sw.writeChunk(deltaChunk(id, model, createdAt, piece)); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			sw.writeHeartbeat(id, model, createdAt)
		case <-done:
			sw.writeChunk(deltaChunk(id, model, createdAt, ""))
			sw.writeDone()
			return
		}
	}
}

func deltaChunk(id, model string, createdAt int64, content string) models.ChatCompletionChunk {
	return models.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: createdAt,
		Model:   model,
		Choices: []models.ChunkChoice{{Index: 0, Delta: models.Delta{Content: content}}},
	}
}

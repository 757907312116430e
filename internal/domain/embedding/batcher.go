package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// flushTimeout bounds the transport call for one batch. The flush context is
// detached from the callers so a single waiter's cancellation cannot fail
// the batch for everyone else.
const flushTimeout = 30 * time.Second

// Batcher coalesces concurrent query embeddings into batched transport
// calls. A batch flushes when it reaches batchSize or when the window
// elapses after its first item, whichever comes first.
type Batcher struct {
	client    Client
	batchSize int
	window    time.Duration

	mu    sync.Mutex
	queue []batchItem
	timer *time.Timer
}

type batchItem struct {
	text     string
	resultCh chan<- batchResult
}

type batchResult struct {
	embedding []float32
	err       error
}

func NewBatcher(client Client, batchSize int, window time.Duration) *Batcher {
	if batchSize < 1 {
		batchSize = 1
	}
	if window <= 0 {
		window = 10 * time.Millisecond
	}
	return &Batcher{
		client:    client,
		batchSize: batchSize,
		window:    window,
		queue:     make([]batchItem, 0, batchSize),
	}
}

// EmbedQuery queues one text and blocks until its batch has been embedded
// or ctx is done.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resultCh := make(chan batchResult, 1)

	b.mu.Lock()
	b.queue = append(b.queue, batchItem{text: text, resultCh: resultCh})

	// First item arms the window timer.
	if len(b.queue) == 1 {
		b.timer = time.AfterFunc(b.window, b.flush)
	}

	if len(b.queue) >= b.batchSize {
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.mu.Unlock()
		b.flush()
	} else {
		b.mu.Unlock()
	}

	select {
	case result := <-resultCh:
		return result.embedding, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop flushes anything still queued. Call once during shutdown.
func (b *Batcher) Stop() {
	b.flush()
}

func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	items := b.queue
	b.queue = make([]batchItem, 0, b.batchSize)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.text
	}

	log.Debug().
		Int("batch_size", len(texts)).
		Msg("embedding_batch_flush")

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	embeddings, err := b.client.Embed(ctx, texts)

	for i, item := range items {
		result := batchResult{err: err}
		if err == nil {
			if i < len(embeddings) {
				result.embedding = embeddings[i]
			} else {
				result.err = fmt.Errorf("embedding batch returned %d vectors for %d inputs", len(embeddings), len(texts))
			}
		}

		select {
		case item.resultCh <- result:
		default:
			log.Warn().Msg("embedding batch waiter gone before result delivery")
		}
	}
}

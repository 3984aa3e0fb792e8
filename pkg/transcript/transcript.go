// Package transcript is the append-only operational log: the pipeline
// appends correlation_id-tagged items for an event's ingest, proposed
// action, state update and approval changes, each assigned a
// monotonic gap-free cursor by pcestore, and live subscribers are notified
// through per-subscriber channels.
//
// Grounded on the audit store's EntryHandler fan-out
// (pkg/store/audit_store.go AddHandler/notify-on-append), generalized from
// a single handler slice invoked synchronously to buffered per-subscriber
// channels so one slow HTTP client cannot block the writer.
package transcript

import (
	"context"
	"sync"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Appender is the subset of pcestore used to persist transcript items.
type Appender interface {
	AppendTranscript(ctx context.Context, item pcetypes.TranscriptItem) (uint64, error)
	TranscriptSince(ctx context.Context, since uint64) ([]pcetypes.TranscriptItem, error)
	LatestCursor(ctx context.Context) (uint64, error)
}

const subscriberBuffer = 64

// Broadcaster persists transcript items and fans them out to live
// subscribers (SSE or WebSocket handlers).
type Broadcaster struct {
	store Appender

	mu   sync.Mutex
	subs map[int]chan pcetypes.TranscriptItem
	next int
}

func New(store Appender) *Broadcaster {
	return &Broadcaster{store: store, subs: map[int]chan pcetypes.TranscriptItem{}}
}

// Append persists item, assigns its cursor, and pushes it to every live
// subscriber. A full subscriber channel drops the oldest unread item
// rather than blocking the writer — catch-up reads recover any gap via
// TranscriptSince.
func (b *Broadcaster) Append(ctx context.Context, item pcetypes.TranscriptItem) (pcetypes.TranscriptItem, error) {
	cursor, err := b.store.AppendTranscript(ctx, item)
	if err != nil {
		return pcetypes.TranscriptItem{}, err
	}
	item.Cursor = cursor

	b.mu.Lock()
	subs := make([]chan pcetypes.TranscriptItem, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- item:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- item:
			default:
			}
		}
	}
	return item, nil
}

// Since returns every item after the given cursor, for catch-up fetches.
func (b *Broadcaster) Since(ctx context.Context, cursor uint64) ([]pcetypes.TranscriptItem, error) {
	return b.store.TranscriptSince(ctx, cursor)
}

// LatestCursor returns the current head cursor.
func (b *Broadcaster) LatestCursor(ctx context.Context) (uint64, error) {
	return b.store.LatestCursor(ctx)
}

// Subscribe registers a new live subscriber and returns its channel plus
// an unsubscribe function the caller must defer.
func (b *Broadcaster) Subscribe() (<-chan pcetypes.TranscriptItem, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan pcetypes.TranscriptItem, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// EventName maps a TranscriptKind to its SSE event name, e.g.
// "os.event_ingested".
func EventName(kind pcetypes.TranscriptKind) string {
	return "os." + string(kind)
}

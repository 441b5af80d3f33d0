// Package txqueue serializes write intents from concurrent callers into
// a single FIFO transaction stream signed by the gateway's one identity.
//
// The ledger requires each transaction from an identity to carry a
// strictly increasing sequence number; letting concurrent requests race
// on that assignment produces spurious rejections or replacements. The
// queue is the sole owner of the nonce: at most one transaction is in
// flight to the node at a time, and the next nonce is assigned only
// after the previous submission's fate is known.
package txqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Hidas2004/duanmoihomnay/internal/ledger"
)

// ErrClosed is returned for intents enqueued after shutdown began.
var ErrClosed = errors.New("submission queue closed")

// SubmitClient is the slice of the ledger client the queue drives.
type SubmitClient interface {
	PendingNonce(ctx context.Context) (uint64, error)
	Submit(ctx context.Context, nonce uint64, intent ledger.Intent) (*ledger.Receipt, error)
}

type Options struct {
	// MaxAttempts bounds retries for a single intent when the ledger is
	// unavailable. Rejections are never retried.
	MaxAttempts int
	RetryDelay  time.Duration
	Buffer      int
	Logger      *slog.Logger
}

// Outcome resolves an intent's future: a receipt or a classified error.
type Outcome struct {
	Receipt *ledger.Receipt
	Err     error
}

type item struct {
	ctx        context.Context
	intent     ledger.Intent
	enqueuedAt time.Time
	done       chan Outcome
}

type Queue struct {
	client SubmitClient
	opts   Options
	log    *slog.Logger

	mu     sync.Mutex
	closed bool

	items chan *item

	// nonce is owned exclusively by the worker goroutine. nonceKnown is
	// false until the first sync and again after any ambiguous outcome.
	nonce      uint64
	nonceKnown bool
}

func New(client SubmitClient, opts Options) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		client: client,
		opts:   opts,
		log:    log,
		items:  make(chan *item, opts.Buffer),
	}
}

// Run processes intents until ctx is canceled, then fails whatever is
// still queued. Call it once, from its own goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.shutdown(ctx.Err())
			return
		case it := <-q.items:
			q.process(ctx, it)
		}
	}
}

func (q *Queue) shutdown(cause error) {
	drain := func() {
		for {
			select {
			case it := <-q.items:
				it.resolve(Outcome{Err: errors.Join(ErrClosed, cause)})
			default:
				return
			}
		}
	}
	// Drain before taking the lock: an enqueuer blocked on a full
	// pipeline holds it until its send completes.
	drain()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	drain()
}

// EnqueueAsync admits the intent into the FIFO pipeline and returns its
// future. Admission order is total: if A is admitted strictly before B,
// A is submitted with a lower sequence number.
func (q *Queue) EnqueueAsync(ctx context.Context, intent ledger.Intent) (<-chan Outcome, error) {
	it := &item{
		ctx:        ctx,
		intent:     intent,
		enqueuedAt: time.Now(),
		done:       make(chan Outcome, 1),
	}

	// Channel admission happens under one lock so the pipeline order
	// matches the admission order exactly.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	select {
	case q.items <- it:
		return it.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enqueue is the blocking form. If ctx expires first, the intent may
// still be submitted; callers must treat that as unknown outcome, not
// failure.
func (q *Queue) Enqueue(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error) {
	done, err := q.EnqueueAsync(ctx, intent)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-done:
		return out.Receipt, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) process(ctx context.Context, it *item) {
	if err := it.ctx.Err(); err != nil {
		// Caller gave up before the intent reached the front.
		it.resolve(Outcome{Err: err})
		return
	}

	var lastErr error
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		if !q.nonceKnown {
			n, err := q.client.PendingNonce(ctx)
			if err != nil {
				lastErr = err
				if !q.sleep(ctx) {
					break
				}
				continue
			}
			q.nonce = n
			q.nonceKnown = true
		}

		rcpt, err := q.client.Submit(ctx, q.nonce, it.intent)
		if err == nil {
			q.nonce++
			q.log.Info("transaction confirmed",
				"function", it.intent.Function,
				"nonce", q.nonce-1,
				"tx", rcpt.TxHash,
				"queued_for", time.Since(it.enqueuedAt))
			it.resolve(Outcome{Receipt: rcpt})
			return
		}

		switch {
		case errors.Is(err, ledger.ErrRejected), errors.Is(err, ledger.ErrGasExceeded):
			// A mined revert consumed the nonce; a refused send did not.
			// Either way the pipeline moves on to the next intent.
			if rcpt != nil {
				q.nonce++
			}
			it.resolve(Outcome{Receipt: rcpt, Err: err})
			return
		case errors.Is(err, ledger.ErrNonce):
			// Our bookkeeping disagrees with the node. Resync and retry.
			q.nonceKnown = false
			lastErr = err
		case errors.Is(err, ledger.ErrUnavailable):
			if rcpt != nil {
				// The node acked the transaction but confirmation timed
				// out. The original may still mine, so retrying would
				// re-execute the write at a fresh nonce and record the
				// event twice. The outcome stays unknown: fail the
				// intent, resync the nonce, move on.
				q.nonceKnown = false
				q.log.Warn("transaction unconfirmed",
					"function", it.intent.Function,
					"tx", rcpt.TxHash)
				it.resolve(Outcome{Receipt: rcpt, Err: err})
				return
			}
			lastErr = err
		default:
			// Local failure (encode/sign); nothing reached the node.
			it.resolve(Outcome{Err: err})
			return
		}

		q.log.Warn("submission attempt failed",
			"function", it.intent.Function,
			"attempt", attempt,
			"error", err)
		if attempt < q.opts.MaxAttempts && !q.sleep(ctx) {
			break
		}
	}
	it.resolve(Outcome{Err: lastErr})
}

func (q *Queue) sleep(ctx context.Context) bool {
	select {
	case <-time.After(q.opts.RetryDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (it *item) resolve(out Outcome) {
	select {
	case it.done <- out:
	default:
	}
}

// Package idempotency lets callers safely retry a write whose outcome
// was ambiguous: a replayed Idempotency-Key returns the stored response
// instead of enqueueing a second ledger transaction.
package idempotency

import "context"

type Store interface {
	GetRecord(ctx context.Context, key, endpoint string) (status int, body []byte, found bool, err error)
	SaveRecord(ctx context.Context, key, endpoint string, status int, body []byte) error
}

// Replay looks up a previously stored response. An empty key disables
// the mechanism for that request.
func Replay(ctx context.Context, st Store, key, endpoint string) (int, []byte, bool, error) {
	if st == nil || key == "" {
		return 0, nil, false, nil
	}
	return st.GetRecord(ctx, key, endpoint)
}

// Save records the response for future replays. Only successful write
// responses are saved: a failed outcome keeps the key unused so the
// caller can retry it.
func Save(ctx context.Context, st Store, key, endpoint string, status int, body []byte) error {
	if st == nil || key == "" {
		return nil
	}
	return st.SaveRecord(ctx, key, endpoint, status, body)
}

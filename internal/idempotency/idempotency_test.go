package idempotency

import (
	"context"
	"testing"
)

type memStore struct {
	records map[string]record
}

type record struct {
	status int
	body   []byte
}

func (m *memStore) GetRecord(ctx context.Context, key, endpoint string) (int, []byte, bool, error) {
	r, ok := m.records[key+"|"+endpoint]
	if !ok {
		return 0, nil, false, nil
	}
	return r.status, r.body, true, nil
}

func (m *memStore) SaveRecord(ctx context.Context, key, endpoint string, status int, body []byte) error {
	if m.records == nil {
		m.records = map[string]record{}
	}
	k := key + "|" + endpoint
	if _, exists := m.records[k]; !exists {
		m.records[k] = record{status, body}
	}
	return nil
}

func TestReplayEmptyKeyIsNoop(t *testing.T) {
	st := &memStore{}
	_, _, found, err := Replay(context.Background(), st, "", "/api/batch/create")
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

func TestReplayNilStoreIsNoop(t *testing.T) {
	_, _, found, err := Replay(context.Background(), nil, "key-1", "/api/batch/create")
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

func TestSaveThenReplay(t *testing.T) {
	st := &memStore{}
	body := []byte(`{"success":true,"txRef":"0xabc"}`)
	if err := Save(context.Background(), st, "key-1", "/api/batch/create", 201, body); err != nil {
		t.Fatalf("Save: %v", err)
	}
	status, got, found, err := Replay(context.Background(), st, "key-1", "/api/batch/create")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if status != 201 || string(got) != string(body) {
		t.Fatalf("status=%d body=%s", status, got)
	}

	// Same key on a different endpoint is a distinct record.
	_, _, found, _ = Replay(context.Background(), st, "key-1", "/api/batch/scan")
	if found {
		t.Fatalf("key must be scoped per endpoint")
	}
}

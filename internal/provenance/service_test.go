package provenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Hidas2004/duanmoihomnay/internal/ledger"
)

type fakeQueue struct {
	intents []ledger.Intent
	rcpt    *ledger.Receipt
	err     error
}

func (f *fakeQueue) Enqueue(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error) {
	f.intents = append(f.intents, intent)
	if f.err != nil {
		return nil, f.err
	}
	if f.rcpt != nil {
		return f.rcpt, nil
	}
	return &ledger.Receipt{TxHash: "0xabc", BlockNumber: 12}, nil
}

type fakeReader struct {
	state      ledger.BatchState
	stateErr   error
	history    []ledger.HistoryRecord
	historyErr error

	historyCalls int
}

func (f *fakeReader) BatchState(ctx context.Context, id string) (ledger.BatchState, error) {
	return f.state, f.stateErr
}

func (f *fakeReader) BatchHistory(ctx context.Context, id string) ([]ledger.HistoryRecord, error) {
	f.historyCalls++
	return f.history, f.historyErr
}

func newService(q *fakeQueue, r *fakeReader) *Service {
	return NewService(q, r, GasLimits{Create: 500000, Scan: 300000})
}

func TestCreateBatchBuildsIntent(t *testing.T) {
	q := &fakeQueue{}
	svc := newService(q, &fakeReader{})

	ref, err := svc.CreateBatch(context.Background(), CreateBatchRequest{
		ID: "B1", Name: "Widget", InitialLocation: "Factory",
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if ref.TxHash != "0xabc" {
		t.Fatalf("txRef = %+v", ref)
	}
	if len(q.intents) != 1 {
		t.Fatalf("intents = %d", len(q.intents))
	}
	in := q.intents[0]
	if in.Function != ledger.FnCreateBatch || in.GasLimit != 500000 {
		t.Fatalf("intent = %+v", in)
	}
	if in.Args[0] != "B1" || in.Args[1] != "Widget" || in.Args[2] != "Factory" {
		t.Fatalf("args = %+v", in.Args)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	q := &fakeQueue{}
	svc := newService(q, &fakeReader{})

	cases := []CreateBatchRequest{
		{Name: "Widget", InitialLocation: "Factory"},
		{ID: "B1", InitialLocation: "Factory"},
		{ID: "B1", Name: "Widget"},
	}
	for _, req := range cases {
		if _, err := svc.CreateBatch(context.Background(), req); !IsValidation(err) {
			t.Fatalf("req %+v: err = %v, want validation", req, err)
		}
	}
	if len(q.intents) != 0 {
		t.Fatalf("validation failures must not reach the queue")
	}
}

func TestCreateBatchDuplicate(t *testing.T) {
	q := &fakeQueue{err: &ledger.RejectedError{Reason: "Batch already exists"}}
	svc := newService(q, &fakeReader{})

	_, err := svc.CreateBatch(context.Background(), CreateBatchRequest{ID: "B1", Name: "W", InitialLocation: "F"})
	if !errors.Is(err, ErrBatchAlreadyExists) {
		t.Fatalf("err = %v, want ErrBatchAlreadyExists", err)
	}
}

func TestCreateBatchUnclassifiedRevert(t *testing.T) {
	q := &fakeQueue{err: &ledger.RejectedError{Reason: "something odd"}}
	svc := newService(q, &fakeReader{})

	_, err := svc.CreateBatch(context.Background(), CreateBatchRequest{ID: "B1", Name: "W", InitialLocation: "F"})
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("err = %v, want ErrCommandRejected", err)
	}
}

func TestRecordEventClassification(t *testing.T) {
	cases := []struct {
		reason string
		want   error
	}{
		{"Batch does not exist", ErrBatchNotFound},
		{"Invalid status transition", ErrInvalidTransition},
		{"unexplained", ErrCommandRejected},
	}
	for _, tc := range cases {
		q := &fakeQueue{err: &ledger.RejectedError{Reason: tc.reason}}
		svc := newService(q, &fakeReader{})
		_, err := svc.RecordEvent(context.Background(), RecordEventRequest{ID: "B1", Location: "Port", Status: "Shipped"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("reason %q: err = %v, want %v", tc.reason, err, tc.want)
		}
	}
}

func TestRecordEventPassesLedgerUnavailable(t *testing.T) {
	q := &fakeQueue{err: ledger.ErrUnavailable}
	svc := newService(q, &fakeReader{})
	_, err := svc.RecordEvent(context.Background(), RecordEventRequest{ID: "B1", Location: "Port", Status: "Shipped"})
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetHistoryUnknownBatchNeverDecodes(t *testing.T) {
	r := &fakeReader{state: ledger.BatchState{Initialized: false}}
	svc := newService(&fakeQueue{}, r)

	_, err := svc.GetHistory(context.Background(), "nope")
	if !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("err = %v, want ErrBatchNotFound", err)
	}
	if r.historyCalls != 0 {
		t.Fatalf("history was fetched for an unknown batch")
	}
}

func TestGetHistoryNormalizesAndPreservesOrder(t *testing.T) {
	actor := common.HexToAddress("0x3333333333333333333333333333333333333333")
	r := &fakeReader{
		state: ledger.BatchState{ID: "B1", Initialized: true},
		history: []ledger.HistoryRecord{
			{Timestamp: 1700000000, Location: "Factory", Status: "Created", Actor: actor},
			{Timestamp: 1700003600, Location: "Port", Status: "Shipped", Actor: actor},
		},
	}
	svc := newService(&fakeQueue{}, r)

	events, err := svc.GetHistory(context.Background(), "B1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if !events[0].Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("timestamp = %v", events[0].Timestamp)
	}
	if events[0].Location != "Factory" || events[0].Status != "Created" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Location != "Port" || events[1].Status != "Shipped" {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[1].Actor != actor.Hex() {
		t.Fatalf("actor = %q", events[1].Actor)
	}
}

func TestGetHistoryPropagatesLedgerErrors(t *testing.T) {
	r := &fakeReader{stateErr: ledger.ErrUnavailable}
	svc := newService(&fakeQueue{}, r)
	if _, err := svc.GetHistory(context.Background(), "B1"); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	r = &fakeReader{state: ledger.BatchState{Initialized: true}, historyErr: ledger.ErrDecode}
	svc = newService(&fakeQueue{}, r)
	if _, err := svc.GetHistory(context.Background(), "B1"); !errors.Is(err, ledger.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

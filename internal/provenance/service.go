// Package provenance maps the gateway's domain operations — create a
// batch, record a scan event, read a batch's history — onto ledger
// calls, including the failure re-classification in both directions.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hidas2004/duanmoihomnay/internal/ledger"
)

// enqueuer is the submission queue surface the commands write through.
type enqueuer interface {
	Enqueue(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error)
}

// reader is the read-only ledger surface the history path consumes.
type reader interface {
	BatchState(ctx context.Context, id string) (ledger.BatchState, error)
	BatchHistory(ctx context.Context, id string) ([]ledger.HistoryRecord, error)
}

type GasLimits struct {
	Create uint64
	Scan   uint64
}

type Service struct {
	queue  enqueuer
	ledger reader
	gas    GasLimits
}

func NewService(queue enqueuer, ledger reader, gas GasLimits) *Service {
	return &Service{queue: queue, ledger: ledger, gas: gas}
}

type CreateBatchRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	InitialLocation string `json:"initialLocation"`
}

type RecordEventRequest struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

// TxRef identifies the accepted ledger transaction for a write.
type TxRef struct {
	TxHash      string `json:"txRef"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// Event is one normalized provenance record, in ledger inclusion order.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
}

// CreateBatch validates the request and enqueues a createBatch
// transaction. A revert for a duplicate identifier surfaces as
// ErrBatchAlreadyExists. The command does not retry on the caller's
// behalf: resubmitting an ambiguous write risks double-recording.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (TxRef, error) {
	if err := requireFields(map[string]string{
		"id":              req.ID,
		"name":            req.Name,
		"initialLocation": req.InitialLocation,
	}); err != nil {
		return TxRef{}, err
	}
	rcpt, err := s.queue.Enqueue(ctx, ledger.Intent{
		Function: ledger.FnCreateBatch,
		Args:     []any{req.ID, req.Name, req.InitialLocation},
		GasLimit: s.gas.Create,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return TxRef{}, classifyRejection(err)
		}
		return TxRef{}, err
	}
	return TxRef{TxHash: rcpt.TxHash, BlockNumber: rcpt.BlockNumber}, nil
}

// RecordEvent validates the request and enqueues a scanBatch
// transaction. It deliberately does not pre-check batch existence: the
// contract itself reverts a scan against an unknown batch, and a
// pre-check would only race with concurrent creates.
func (s *Service) RecordEvent(ctx context.Context, req RecordEventRequest) (TxRef, error) {
	if err := requireFields(map[string]string{
		"id":       req.ID,
		"location": req.Location,
		"status":   req.Status,
	}); err != nil {
		return TxRef{}, err
	}
	rcpt, err := s.queue.Enqueue(ctx, ledger.Intent{
		Function: ledger.FnScanBatch,
		Args:     []any{req.ID, req.Location, req.Status},
		GasLimit: s.gas.Scan,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return TxRef{}, classifyRejection(err)
		}
		return TxRef{}, err
	}
	return TxRef{TxHash: rcpt.TxHash, BlockNumber: rcpt.BlockNumber}, nil
}

// GetHistory returns the batch's event log in ledger inclusion order,
// oldest first. The existence check comes first on purpose: the history
// decode is only defined for initialized batches, and skipping straight
// to it on an unknown id would surface a decode error instead of a
// clean not-found.
func (s *Service) GetHistory(ctx context.Context, id string) ([]Event, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id"}
	}
	state, err := s.ledger.BatchState(ctx, id)
	if err != nil {
		return nil, err
	}
	if !state.Initialized {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	records, err := s.ledger.BatchHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(records))
	for _, r := range records {
		// Ledger inclusion order is the canonical provenance order;
		// records pass through unsorted.
		events = append(events, Event{
			Timestamp: time.Unix(int64(r.Timestamp), 0).UTC(),
			Location:  r.Location,
			Status:    r.Status,
			Actor:     r.Actor.Hex(),
		})
	}
	return events, nil
}

func requireFields(fields map[string]string) error {
	// Deterministic order keeps error messages stable for clients.
	for _, name := range []string{"id", "name", "initialLocation", "location", "status"} {
		if v, ok := fields[name]; ok && v == "" {
			return &ValidationError{Field: name}
		}
	}
	return nil
}

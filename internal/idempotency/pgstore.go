package idempotency

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists idempotency records in Postgres.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS gateway_idempotency (
//	    idempotency_key text NOT NULL,
//	    endpoint        text NOT NULL,
//	    response_status int  NOT NULL,
//	    response_body   jsonb NOT NULL,
//	    created_at      timestamptz NOT NULL DEFAULT now(),
//	    PRIMARY KEY (idempotency_key, endpoint)
//	);
type PGStore struct{ DB *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

func (s *PGStore) GetRecord(ctx context.Context, key, endpoint string) (int, []byte, bool, error) {
	var status int
	var body []byte
	err := s.DB.QueryRow(ctx,
		`SELECT response_status, response_body FROM gateway_idempotency WHERE idempotency_key=$1 AND endpoint=$2`,
		key, endpoint).Scan(&status, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return status, body, true, nil
}

func (s *PGStore) SaveRecord(ctx context.Context, key, endpoint string, status int, body []byte) error {
	// First writer wins; a concurrent duplicate keeps the original.
	_, err := s.DB.Exec(ctx,
		`INSERT INTO gateway_idempotency(idempotency_key, endpoint, response_status, response_body)
VALUES($1,$2,$3,$4::jsonb)
ON CONFLICT (idempotency_key, endpoint) DO NOTHING`,
		key, endpoint, status, string(body))
	return err
}

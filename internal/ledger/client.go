// Package ledger owns the connection to the distributed ledger node and
// the gateway's single signing identity. It exposes two primitives:
// submit a signed transaction and call a read-only contract function,
// with raw node errors normalized into a local taxonomy.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Intent is a write request prior to signing: the target contract
// function, its arguments, and the gas ceiling for the operation.
type Intent struct {
	Function string
	Args     []any
	GasLimit uint64
}

// Receipt is the gateway-local view of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// BatchState is the decoded batches(id) view. An id that was never
// created decodes with Initialized == false; it is not an error at this
// layer.
type BatchState struct {
	ID              string
	Name            string
	CurrentLocation string
	Initialized     bool
}

// HistoryRecord is one raw on-ledger provenance record, in ledger
// inclusion order. Timestamp is seconds since epoch as assigned by the
// ledger.
type HistoryRecord struct {
	Timestamp uint64
	Location  string
	Status    string
	Actor     common.Address
}

// backend is the slice of the node RPC surface the client uses.
// *ethclient.Client satisfies it; tests substitute a fake.
type backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Options struct {
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	SubmitTimeout   time.Duration
	CallTimeout     time.Duration
}

type Client struct {
	backend  backend
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	signer   common.Address
	txSigner types.Signer

	submitTimeout time.Duration
	callTimeout   time.Duration
	pollInterval  time.Duration
}

// Dial connects to the node and builds a client around the signing key.
func Dial(ctx context.Context, nodeURL string, opts Options) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, nodeURL, err)
	}
	return New(ec, opts)
}

// New builds a client over an existing backend.
func New(b backend, opts Options) (*Client, error) {
	if !common.IsHexAddress(opts.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", opts.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %v", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %v", err)
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Client{
		backend:       b,
		abi:           parsed,
		contract:      common.HexToAddress(opts.ContractAddress),
		key:           key,
		signer:        crypto.PubkeyToAddress(key.PublicKey),
		txSigner:      types.LatestSignerForChainID(big.NewInt(opts.ChainID)),
		submitTimeout: submitTimeout,
		callTimeout:   callTimeout,
		pollInterval:  500 * time.Millisecond,
	}, nil
}

// Signer is the address all gateway writes are attributed to.
func (c *Client) Signer() common.Address { return c.signer }

// PendingNonce is the identity's next sequence number according to the
// node's pending pool. The submission queue resynchronizes from it.
func (c *Client) PendingNonce(ctx context.Context) (uint64, error) {
	n, err := c.backend.PendingNonceAt(ctx, c.signer)
	if err != nil {
		return 0, fmt.Errorf("%w: pending nonce: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Submit signs and sends the intent with the given nonce, then waits
// (bounded) for the mined receipt.
//
// Outcomes:
//   - (receipt, nil): mined successfully; the nonce is consumed.
//   - (nil, ErrRejected/...): the node refused the send; the nonce is
//     NOT consumed.
//   - (receipt, ErrRejected): mined but reverted; the nonce IS consumed.
//   - (receipt, ErrUnavailable): sent but confirmation timed out; the
//     outcome is ambiguous and the nonce state must be resynced.
func (c *Client) Submit(ctx context.Context, nonce uint64, intent Intent) (*Receipt, error) {
	data, err := c.abi.Pack(intent.Function, intent.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %v", intent.Function, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", ErrUnavailable, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      intent.GasLimit,
		To:       &c.contract,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.txSigner, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %v", intent.Function, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, classifySend(err)
	}

	rcpt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		// Acked by the node but unconfirmed within the bound.
		return &Receipt{TxHash: signed.Hash().Hex()}, err
	}

	out := &Receipt{
		TxHash:  signed.Hash().Hex(),
		GasUsed: rcpt.GasUsed,
	}
	if rcpt.BlockNumber != nil {
		out.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	if rcpt.Status == types.ReceiptStatusFailed {
		if rcpt.GasUsed == signed.Gas() {
			return out, fmt.Errorf("%w: used entire gas ceiling (%d)", ErrGasExceeded, rcpt.GasUsed)
		}
		return out, &RejectedError{Reason: c.revertReason(ctx, signed, rcpt.BlockNumber)}
	}
	return out, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		rcpt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: receipt %s: %v", ErrUnavailable, hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: confirmation timeout for %s", ErrUnavailable, hash.Hex())
		case <-ticker.C:
		}
	}
}

// revertReason replays the failed transaction as a call at its block to
// recover the require() message. Best effort: an empty string means the
// node did not expose a reason.
func (c *Client) revertReason(ctx context.Context, tx *types.Transaction, blockNumber *big.Int) string {
	msg := ethereum.CallMsg{
		From:     c.signer,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Data:     tx.Data(),
	}
	ret, err := c.backend.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return extractRevertReason(err.Error())
	}
	if reason, uerr := abi.UnpackRevert(ret); uerr == nil {
		return reason
	}
	return ""
}

// BatchState decodes the batches(id) view.
func (c *Client) BatchState(ctx context.Context, id string) (BatchState, error) {
	out, err := c.call(ctx, fnBatches, id)
	if err != nil {
		return BatchState{}, err
	}
	vals, err := c.abi.Unpack(fnBatches, out)
	if err != nil || len(vals) != 4 {
		return BatchState{}, fmt.Errorf("%w: %s: %v", ErrDecode, fnBatches, err)
	}
	st := BatchState{}
	var ok bool
	if st.ID, ok = vals[0].(string); !ok {
		return BatchState{}, fmt.Errorf("%w: %s: field 0 not a string", ErrDecode, fnBatches)
	}
	if st.Name, ok = vals[1].(string); !ok {
		return BatchState{}, fmt.Errorf("%w: %s: field 1 not a string", ErrDecode, fnBatches)
	}
	if st.CurrentLocation, ok = vals[2].(string); !ok {
		return BatchState{}, fmt.Errorf("%w: %s: field 2 not a string", ErrDecode, fnBatches)
	}
	if st.Initialized, ok = vals[3].(bool); !ok {
		return BatchState{}, fmt.Errorf("%w: %s: field 3 not a bool", ErrDecode, fnBatches)
	}
	return st, nil
}

// BatchHistory decodes getBatchHistory(id), preserving ledger order.
// Callers are expected to have checked existence first; the decode here
// is only defined for initialized batches.
func (c *Client) BatchHistory(ctx context.Context, id string) ([]HistoryRecord, error) {
	out, err := c.call(ctx, fnHistory, id)
	if err != nil {
		return nil, err
	}
	vals, err := c.abi.Unpack(fnHistory, out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, fnHistory, err)
	}
	type wireRecord struct {
		Timestamp *big.Int
		Location  string
		Status    string
		Actor     common.Address
	}
	raw, err := convertRecords[wireRecord](vals[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, fnHistory, err)
	}
	records := make([]HistoryRecord, 0, len(raw))
	for _, r := range raw {
		rec := HistoryRecord{
			Location: r.Location,
			Status:   r.Status,
			Actor:    r.Actor,
		}
		if r.Timestamp != nil {
			rec.Timestamp = r.Timestamp.Uint64()
		}
		records = append(records, rec)
	}
	return records, nil
}

// convertRecords maps the anonymous tuple slice the ABI decoder yields
// onto a named struct slice. abi.ConvertType panics on shape mismatch,
// so the panic is translated into a decode error.
func convertRecords[T any](v any) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("unexpected tuple shape: %v", r)
		}
	}()
	out = *abi.ConvertType(v, new([]T)).(*[]T)
	return out, nil
}

func (c *Client) call(ctx context.Context, fn string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %v", fn, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: c.signer,
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, fn, err)
	}
	return out, nil
}

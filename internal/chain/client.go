// Package chain is the only I/O boundary of the chronos core: raw account
// reads, filtered program scans and instruction submission.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/coldbell/chronos/backend/internal/config"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/logging"
	"github.com/coldbell/chronos/backend/internal/metrics"
)

type KeyedAccount struct {
	Address solana.PublicKey
	Data    []byte
}

// Reader is the read side consumed by the rest of the core. A missing
// account is (nil, nil), not an error.
type Reader interface {
	GetAccount(ctx context.Context, address solana.PublicKey) ([]byte, error)
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([][]byte, error)
	Scan(ctx context.Context, programID solana.PublicKey, filters ...Filter) ([]KeyedAccount, error)
}

// Submitter signs and lands instructions.
type Submitter interface {
	Submit(ctx context.Context, instructions ...solana.Instruction) (solana.Signature, error)
}

var ErrNoSigner = errors.New("no signer configured")

type Client struct {
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	timeout        time.Duration
	confirmTimeout time.Duration
	skipPreflight  bool
	signer         *solana.PrivateKey
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

func New(cfg config.ChainConfig, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if m == nil {
		m = metrics.NewNop()
	}
	c := &Client{
		rpc:            rpc.New(cfg.RPCURL),
		commitment:     cfg.Commitment,
		timeout:        cfg.RPCTimeout,
		confirmTimeout: cfg.ConfirmTimeout,
		skipPreflight:  cfg.SkipPreflight,
		metrics:        m,
		logger:         logging.Component(logger, "chain"),
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = 30 * time.Second
	}
	if cfg.KeypairPath != "" {
		signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
		}
		c.signer = &signer
	}
	return c, nil
}

// Signer returns the configured wallet, if any.
func (c *Client) Signer() (solana.PublicKey, bool) {
	if c.signer == nil {
		return solana.PublicKey{}, false
	}
	return c.signer.PublicKey(), true
}

func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "getAccountInfo", address.String(), func(ctx context.Context) error {
		resp, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return err
		}
		if resp != nil && resp.Value != nil && resp.Value.Data != nil {
			out = resp.Value.Data.GetBinary()
		}
		return nil
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([][]byte, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(addresses))
	err := c.call(ctx, "getMultipleAccounts", addresses[0].String(), func(ctx context.Context) error {
		resp, err := c.rpc.GetMultipleAccountsWithOpts(ctx, addresses, &rpc.GetMultipleAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return err
		}
		if len(resp.Value) != len(addresses) {
			return fmt.Errorf("got %d accounts for %d addresses", len(resp.Value), len(addresses))
		}
		for i, acc := range resp.Value {
			if acc != nil && acc.Data != nil {
				out[i] = acc.Data.GetBinary()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Scan(ctx context.Context, programID solana.PublicKey, filters ...Filter) ([]KeyedAccount, error) {
	rpcFilters := make([]rpc.RPCFilter, 0, len(filters))
	for _, f := range filters {
		rpcFilters = append(rpcFilters, f.rpcFilter())
	}

	var out []KeyedAccount
	err := c.call(ctx, "getProgramAccounts", programID.String(), func(ctx context.Context) error {
		resp, err := c.rpc.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
			Filters:    rpcFilters,
		})
		if err != nil {
			return err
		}
		out = make([]KeyedAccount, 0, len(resp))
		for _, item := range resp {
			if item == nil || item.Account == nil || item.Account.Data == nil {
				continue
			}
			out = append(out, KeyedAccount{Address: item.Pubkey, Data: item.Account.Data.GetBinary()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("scan complete", "program", programID, "filters", filters, "accounts", len(out))
	return out, nil
}

// Slot is the node's current slot at the configured commitment.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.call(ctx, "getSlot", "", func(ctx context.Context) error {
		slot, err := c.rpc.GetSlot(ctx, c.commitment)
		out = slot
		return err
	})
	return out, err
}

// call runs fn under the configured timeout and classifies its failure.
// Timeouts and transport errors become ChainUnavailable; a JSON-RPC error
// reply is a request problem and is returned as is.
func (c *Client) call(ctx context.Context, method, subject string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	err := fn(ctx)
	c.metrics.ChainLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err == nil || errors.Is(err, rpc.ErrNotFound) {
		return err
	}

	c.metrics.ChainErrors.WithLabelValues(method).Inc()
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s %s: %w", method, subject, err)
	}
	return errs.Wrap(errs.KindChainUnavailable, subject, err, "%s", method)
}

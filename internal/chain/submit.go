package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/chronos/backend/internal/errs"
)

const confirmationPollInterval = 700 * time.Millisecond

// Submit signs instructions with the configured wallet, sends them in one
// transaction and waits for confirmed commitment.
func (c *Client) Submit(ctx context.Context, instructions ...solana.Instruction) (solana.Signature, error) {
	if c.signer == nil {
		return solana.Signature{}, ErrNoSigner
	}
	if len(instructions) == 0 {
		return solana.Signature{}, errs.New(errs.KindInvalidArgument, "", "no instructions to submit")
	}

	var blockhash solana.Hash
	err := c.call(ctx, "getLatestBlockhash", "", func(ctx context.Context) error {
		recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		blockhash = recent.Value.Blockhash
		return nil
	})
	if err != nil {
		return solana.Signature{}, err
	}

	payer := c.signer.PublicKey()
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if payer.Equals(key) {
			return c.signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	var sig solana.Signature
	err = c.call(ctx, "sendTransaction", payer.String(), func(ctx context.Context) error {
		var err error
		sig, err = c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       c.skipPreflight,
			PreflightCommitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.Info("transaction sent", "signature", sig, "instructions", len(instructions))
	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindChainUnavailable, sig.String(), ctx.Err(), "wait for confirmation")
		case <-ticker.C:
			result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil || len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}

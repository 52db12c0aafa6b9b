package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// envValue parses key with parse, returning fallback when the key is unset
// in both the environment and the config file.
func envValue[T any](key string, fallback T, parse func(string) (T, error)) (T, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	return envValue(key, fallback, func(raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, err
		}
		if d <= 0 {
			return 0, fmt.Errorf("must be > 0")
		}
		return d, nil
	})
}

func envBool(key string, fallback bool) (bool, error) {
	return envValue(key, fallback, strconv.ParseBool)
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	return envValue(key, fallback, solana.PublicKeyFromBase58)
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	return envValue(key, fallback, func(raw string) (rpc.CommitmentType, error) {
		switch c := rpc.CommitmentType(strings.ToLower(raw)); c {
		case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
			return c, nil
		}
		return "", fmt.Errorf("%q (expected processed|confirmed|finalized)", raw)
	})
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func parseCSVEnv(raw string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func expandHomePath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
}

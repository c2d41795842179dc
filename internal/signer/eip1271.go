package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/metrics"
	"github.com/GoPolymarket/intentgate/internal/pkg/retry"
)

// isValidSignature(bytes32,bytes) returns this selector when the contract accepts the signature.
var eip1271MagicValue = []byte{0x16, 0x26, 0xba, 0x7e}

const isValidSignatureABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

// errNotContract marks owners without code; they are answered without retrying.
var errNotContract = errors.New("owner has no code")

// EIP1271Verifier asks owner contracts whether they accept a permit signature.
// Answers are cached per (contract, digest, signature) until the TTL passes.
type EIP1271Verifier struct {
	rpcURL  string
	method  abi.ABI
	timeout time.Duration
	retry   retry.Config

	mu     sync.Mutex
	client *ethclient.Client
	ttl    time.Duration
	cache  map[common.Hash]verdict
}

type verdict struct {
	valid   bool
	expires time.Time
}

func NewEIP1271Verifier(rpcURL string, ttl time.Duration, timeout time.Duration, retries int) (*EIP1271Verifier, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	method, err := abi.JSON(strings.NewReader(isValidSignatureABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse isValidSignature abi: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rc := retry.Config{
		MaxRetries:     max(retries, 0),
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Jitter:         true,
	}
	return &EIP1271Verifier{
		rpcURL:  rpcURL,
		method:  method,
		timeout: timeout,
		retry:   rc,
		ttl:     ttl,
		cache:   make(map[common.Hash]verdict),
	}, nil
}

// Verify reports whether contract accepts signature over the 32-byte digest. Owners without code
// are never valid. RPC failures are retried and returned only once the retries are spent.
func (v *EIP1271Verifier) Verify(ctx context.Context, contract common.Address, digest []byte, signature []byte) (bool, error) {
	if len(digest) != 32 {
		return false, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	key := crypto.Keccak256Hash(contract.Bytes(), digest, signature)
	if valid, ok := v.lookup(key); ok {
		metrics.ContractSignatureChecks.WithLabelValues("cached").Inc()
		return valid, nil
	}

	calldata, err := v.method.Pack("isValidSignature", [32]byte(digest), signature)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature: %w", err)
	}

	var valid bool
	err = retry.Do(ctx, v.retry, isTransient, func(attempt int, err error, backoff time.Duration) {
		logger.Warn("eip1271 call failed, retrying", "contract", contract.Hex(), "attempt", attempt, "backoff", backoff, "error", err)
	}, func() error {
		var callErr error
		valid, callErr = v.call(ctx, contract, calldata)
		return callErr
	})
	switch {
	case errors.Is(err, errNotContract):
		valid = false
	case err != nil:
		metrics.ContractSignatureChecks.WithLabelValues("error").Inc()
		return false, err
	}

	v.remember(key, valid)
	if valid {
		metrics.ContractSignatureChecks.WithLabelValues("valid").Inc()
	} else {
		metrics.ContractSignatureChecks.WithLabelValues("invalid").Inc()
	}
	return valid, nil
}

func (v *EIP1271Verifier) call(ctx context.Context, contract common.Address, calldata []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client, err := v.dial(ctx)
	if err != nil {
		return false, err
	}
	code, err := client.CodeAt(ctx, contract, nil)
	if err != nil {
		return false, fmt.Errorf("eth_getCode %s: %w", contract.Hex(), err)
	}
	if len(code) == 0 {
		return false, errNotContract
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: calldata}, nil)
	if err != nil {
		return false, fmt.Errorf("isValidSignature on %s: %w", contract.Hex(), err)
	}
	return len(out) >= 4 && bytes.Equal(out[:4], eip1271MagicValue), nil
}

func (v *EIP1271Verifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client != nil {
		v.client.Close()
		v.client = nil
	}
}

func (v *EIP1271Verifier) dial(ctx context.Context) (*ethclient.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client != nil {
		return v.client, nil
	}
	client, err := ethclient.DialContext(ctx, v.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	v.client = client
	return client, nil
}

func (v *EIP1271Verifier) lookup(key common.Hash) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[key]
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expires) {
		delete(v.cache, key)
		return false, false
	}
	return entry.valid, true
}

func (v *EIP1271Verifier) remember(key common.Hash, valid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[key] = verdict{valid: valid, expires: time.Now().Add(v.ttl)}
}

func isTransient(err error) bool {
	return !errors.Is(err, errNotContract) && !errors.Is(err, context.Canceled)
}

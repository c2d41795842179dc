package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/store"
)

var (
	token   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

func balance(t *testing.T, b *Book, owner common.Address) int64 {
	t.Helper()
	v, err := b.BalanceOf(context.Background(), token, owner)
	require.NoError(t, err)
	return v.Int64()
}

func TestBook_MintAndTransfer(t *testing.T) {
	ctx := context.Background()
	b := New(store.NewMemoryStore())

	require.NoError(t, b.Mint(ctx, token, alice, big.NewInt(100)))
	require.NoError(t, b.Transfer(ctx, token, alice, bob, big.NewInt(40)))
	assert.Equal(t, int64(60), balance(t, b, alice))
	assert.Equal(t, int64(40), balance(t, b, bob))

	err := b.Transfer(ctx, token, alice, bob, big.NewInt(61))
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))
	assert.Equal(t, int64(60), balance(t, b, alice))
}

func TestBook_TransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	b := New(store.NewMemoryStore())
	require.NoError(t, b.Mint(ctx, token, alice, big.NewInt(100)))

	err := b.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(10))
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientAllowance))

	require.NoError(t, b.Approve(ctx, token, alice, spender, big.NewInt(25)))
	require.NoError(t, b.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(10)))

	left, err := b.Allowance(ctx, token, alice, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(15), left.Int64())
	assert.Equal(t, int64(10), balance(t, b, bob))
}

func TestBook_UnlimitedAllowance(t *testing.T) {
	ctx := context.Background()
	b := New(store.NewMemoryStore())
	require.NoError(t, b.Mint(ctx, token, alice, big.NewInt(100)))
	require.NoError(t, b.Approve(ctx, token, alice, spender, MaxAllowance))

	require.NoError(t, b.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(30)))
	left, err := b.Allowance(ctx, token, alice, spender)
	require.NoError(t, err)
	assert.Equal(t, 0, left.Cmp(MaxAllowance))
}

func TestBook_FailedTransferFromKeepsAllowance(t *testing.T) {
	ctx := context.Background()
	b := New(store.NewMemoryStore())
	require.NoError(t, b.Mint(ctx, token, alice, big.NewInt(5)))
	require.NoError(t, b.Approve(ctx, token, alice, spender, big.NewInt(50)))

	err := b.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(10))
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))

	left, err := b.Allowance(ctx, token, alice, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(50), left.Int64())
}

package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

var (
	testReactor = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testToken   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testCash    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func testDomain() Domain {
	return Domain{
		Name:              DefaultDomainName,
		Version:           DefaultDomainVersion,
		ChainID:           137,
		VerifyingContract: common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"),
		Salt:              crypto.Keccak256Hash([]byte("intentgate-test")),
	}
}

func newTestSigner(t testing.TB) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))
	s, err := NewSigner(keyHex, testDomain())
	require.NoError(t, err)
	return s
}

func testIntent(owner common.Address) *model.Intent {
	return &model.Intent{
		Owner:      owner,
		Filler:     model.OpenFiller,
		TokenOut:   testToken,
		AmountOut:  big.NewInt(100),
		TokenIn:    testCash,
		AmountIn:   big.NewInt(1000),
		Creation:   1800000000,
		Expiration: 1800003600,
		Nonce:      big.NewInt(7),
		Data:       hexutil.Bytes{0x01, 0x02},
	}
}

func TestSigner_SignIntent(t *testing.T) {
	s := newTestSigner(t)
	intent := testIntent(s.Address())

	sig, err := s.SignIntent(intent, testReactor)
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	v := NewVerifier(testDomain(), nil, nil)
	assert.NoError(t, v.VerifyIntent(context.Background(), intent, testReactor, sig))
}

func TestVerifier_RejectsTamperedWitness(t *testing.T) {
	s := newTestSigner(t)
	intent := testIntent(s.Address())
	sig, err := s.SignIntent(intent, testReactor)
	require.NoError(t, err)
	v := NewVerifier(testDomain(), nil, nil)

	// Same permit fields, different trade terms in the witness.
	tampered := *intent
	tampered.AmountIn = big.NewInt(1)
	err = v.VerifyPermit(context.Background(), intent.Owner, intent.Permit(), testReactor, &tampered, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureInvalid))

	// Bound to a spender.
	err = v.VerifyIntent(context.Background(), intent, common.HexToAddress("0xdead"), sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureInvalid))

	// Bound to the domain.
	other := testDomain()
	other.ChainID = 1
	err = NewVerifier(other, nil, nil).VerifyIntent(context.Background(), intent, testReactor, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureInvalid))
}

func TestVerifier_WrongOwner(t *testing.T) {
	s := newTestSigner(t)
	intent := testIntent(s.Address())
	sig, err := s.SignIntent(intent, testReactor)
	require.NoError(t, err)

	intent.Owner = common.HexToAddress("0x0000000000000000000000000000000000000001")
	err = NewVerifier(testDomain(), nil, nil).VerifyIntent(context.Background(), intent, testReactor, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureInvalid))
}

type stubContracts struct {
	accept bool
	calls  int
}

func (s *stubContracts) Verify(_ context.Context, _ common.Address, _ []byte, _ []byte) (bool, error) {
	s.calls++
	return s.accept, nil
}

func TestVerifier_ContractFallback(t *testing.T) {
	s := newTestSigner(t)
	intent := testIntent(common.HexToAddress("0x00000000000000000000000000000000000000f0"))
	sig, err := s.SignIntent(intent, testReactor)
	require.NoError(t, err)

	contracts := &stubContracts{accept: true}
	v := NewVerifier(testDomain(), contracts, nil)
	assert.NoError(t, v.VerifyIntent(context.Background(), intent, testReactor, sig))
	assert.Equal(t, 1, contracts.calls)

	contracts.accept = false
	assert.Error(t, v.VerifyIntent(context.Background(), intent, testReactor, sig))
}

func TestRecoverHash_BadLength(t *testing.T) {
	_, err := RecoverHash(make([]byte, 32), []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDomainSeparator_DependsOnSalt(t *testing.T) {
	a, err := testDomain().Separator()
	require.NoError(t, err)
	d := testDomain()
	d.Salt = common.Hash{}
	b, err := d.Separator()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func BenchmarkSignIntent(b *testing.B) {
	s := newTestSigner(b)
	intent := testIntent(s.Address())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.SignIntent(intent, testReactor)
	}
}

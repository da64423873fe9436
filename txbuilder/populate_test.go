package txbuilder_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

type stubProvider struct {
	chainID *big.Int
	fee     *txbuilder.FeeData
	nonce   uint64
	gas     uint64

	nonceCalls int
	gasCalls   int
}

func (s *stubProvider) ChainID(_ context.Context) (*big.Int, error) {
	return s.chainID, nil
}

func (s *stubProvider) FeeData(_ context.Context) (*txbuilder.FeeData, error) {
	return s.fee, nil
}

func (s *stubProvider) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	s.nonceCalls++
	return s.nonce, nil
}

func (s *stubProvider) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	s.gasCalls++
	return s.gas, nil
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e9))
}

func london() *stubProvider {
	return &stubProvider{
		chainID: big.NewInt(1),
		fee: &txbuilder.FeeData{
			GasPrice:             gwei(25),
			MaxFeePerGas:         gwei(30),
			MaxPriorityFeePerGas: gwei(2),
		},
		nonce: 7,
		gas:   21000,
	}
}

func preLondon() *stubProvider {
	return &stubProvider{
		chainID: big.NewInt(61),
		fee:     &txbuilder.FeeData{GasPrice: gwei(20)},
		nonce:   3,
		gas:     21000,
	}
}

var (
	testTo   = common.HexToAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72")
	testFrom = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func uint8Ptr(v uint8) *uint8 { return &v }

func uint64Ptr(v uint64) *uint64 { return &v }

func TestPopulateInfersDynamicFee(t *testing.T) {
	p := london()

	utx, err := txbuilder.Populate(context.Background(), p, testFrom, &txbuilder.Request{
		To:    &testTo,
		Value: big.NewInt(1000),
	})
	require.NoError(t, err)

	tx := utx.Tx
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, gwei(30), tx.GasFeeCap())
	assert.Equal(t, gwei(2), tx.GasTipCap())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(21000), tx.Gas())
	assert.Equal(t, big.NewInt(1), utx.ChainID)
	assert.Equal(t, big.NewInt(1), tx.ChainId())
	assert.Equal(t, 1, p.nonceCalls)
	assert.Equal(t, 1, p.gasCalls)
}

func TestPopulateFallsBackToLegacy(t *testing.T) {
	utx, err := txbuilder.Populate(context.Background(), preLondon(), testFrom, &txbuilder.Request{
		To: &testTo,
	})
	require.NoError(t, err)

	assert.Equal(t, uint8(types.LegacyTxType), utx.Tx.Type())
	assert.Equal(t, gwei(20), utx.Tx.GasPrice())
	assert.Equal(t, big.NewInt(61), utx.ChainID)
}

func TestPopulateHonorsExplicitType(t *testing.T) {
	// Explicit legacy on a London network stays legacy
	utx, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		Type: uint8Ptr(types.LegacyTxType),
		To:   &testTo,
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), utx.Tx.Type())
	assert.Equal(t, gwei(25), utx.Tx.GasPrice())
}

func TestPopulateAccessListType(t *testing.T) {
	accessList := types.AccessList{{
		Address:     testTo,
		StorageKeys: []common.Hash{{0x01}},
	}}

	utx, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		Type:       uint8Ptr(types.AccessListTxType),
		To:         &testTo,
		AccessList: accessList,
	})
	require.NoError(t, err)

	assert.Equal(t, uint8(types.AccessListTxType), utx.Tx.Type())
	assert.Equal(t, accessList, utx.Tx.AccessList())
}

func TestPopulateGasPriceConvenienceOnImplicit1559(t *testing.T) {
	// A lone gasPrice with an implicitly resolved type 2 is reused for both
	// EIP-1559 fee fields
	utx, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		To:       &testTo,
		GasPrice: gwei(22),
	})
	require.NoError(t, err)

	assert.Equal(t, uint8(types.DynamicFeeTxType), utx.Tx.Type())
	assert.Equal(t, gwei(22), utx.Tx.GasFeeCap())
	assert.Equal(t, gwei(22), utx.Tx.GasTipCap())
}

func TestPopulateRejectsMixedFeeFields(t *testing.T) {
	_, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		To:           &testTo,
		Value:        big.NewInt(0),
		GasPrice:     gwei(20),
		MaxFeePerGas: gwei(30),
	})
	require.ErrorIs(t, err, txbuilder.ErrIncompatibleFeeFields)
}

func TestPopulateRejectsExplicit1559WithGasPrice(t *testing.T) {
	_, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		Type:     uint8Ptr(types.DynamicFeeTxType),
		To:       &testTo,
		GasPrice: gwei(20),
	})
	require.ErrorIs(t, err, txbuilder.ErrIncompatibleFeeFields)
}

func TestPopulateRejectsExplicitLegacyWith1559Fields(t *testing.T) {
	_, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		Type:                 uint8Ptr(types.LegacyTxType),
		To:                   &testTo,
		MaxPriorityFeePerGas: gwei(1),
	})
	require.ErrorIs(t, err, txbuilder.ErrIncompatibleFeeFields)
}

func TestPopulateRejectsBlobWithGasPrice(t *testing.T) {
	_, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		To:               &testTo,
		GasPrice:         gwei(20),
		MaxFeePerBlobGas: gwei(1),
	})
	require.ErrorIs(t, err, txbuilder.ErrIncompatibleFeeFields)
}

func TestPopulateBlobTransaction(t *testing.T) {
	hashes := []common.Hash{{0x01, 0x02}}

	utx, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		To:               &testTo,
		BlobHashes:       hashes,
		MaxFeePerBlobGas: gwei(1),
	})
	require.NoError(t, err)

	tx := utx.Tx
	assert.Equal(t, uint8(types.BlobTxType), tx.Type())
	assert.Equal(t, hashes, tx.BlobHashes())
	assert.Equal(t, gwei(1), tx.BlobGasFeeCap())
	assert.Equal(t, gwei(30), tx.GasFeeCap())
	assert.Equal(t, gwei(2), tx.GasTipCap())
}

func TestPopulateRejectsBlobWithoutBlobFee(t *testing.T) {
	_, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		To:         &testTo,
		BlobHashes: []common.Hash{{0x01}},
	})
	require.ErrorIs(t, err, txbuilder.ErrMissingBlobFee)
}

func TestPopulateKeepsExplicitNonceAndGasLimit(t *testing.T) {
	p := london()

	utx, err := txbuilder.Populate(context.Background(), p, testFrom, &txbuilder.Request{
		To:       &testTo,
		Nonce:    uint64Ptr(42),
		GasLimit: uint64Ptr(90000),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(42), utx.Tx.Nonce())
	assert.Equal(t, uint64(90000), utx.Tx.Gas())
	assert.Zero(t, p.nonceCalls)
	assert.Zero(t, p.gasCalls)
}

func TestPopulateRejectsUnsupportedType(t *testing.T) {
	_, err := txbuilder.Populate(context.Background(), london(), testFrom, &txbuilder.Request{
		Type: uint8Ptr(9),
		To:   &testTo,
	})
	require.Error(t, err)
}

func TestUnsignedTxSigningHashDiffersAcrossChains(t *testing.T) {
	reqTx := &txbuilder.Request{To: &testTo, Value: big.NewInt(1)}

	mainnet, err := txbuilder.Populate(context.Background(), london(), testFrom, reqTx)
	require.NoError(t, err)

	other := london()
	other.chainID = big.NewInt(137)
	polygon, err := txbuilder.Populate(context.Background(), other, testFrom, reqTx)
	require.NoError(t, err)

	assert.NotEqual(t, mainnet.SigningHash(), polygon.SigningHash())
}

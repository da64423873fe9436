package txbuilder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Populate resolves the fee model of a partial transaction intent and
// completes every missing field from the network, returning a fully
// specified transaction ready for signing.
//
// Type resolution order: an explicit request type wins; otherwise any blob
// field forces type 3; otherwise a network quoting both EIP-1559 fees gives
// type 2; otherwise type 0.
func Populate(ctx context.Context, provider Provider, from common.Address, req *Request) (*UnsignedTx, error) {
	if req == nil {
		return nil, errors.New("transaction request is required")
	}

	has1559Fields := req.MaxFeePerGas != nil || req.MaxPriorityFeePerGas != nil
	hasBlobFields := len(req.BlobHashes) > 0 || req.MaxFeePerBlobGas != nil

	if err := validateFeeFields(req, has1559Fields, hasBlobFields); err != nil {
		return nil, err
	}

	fee, err := provider.FeeData(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch fee data")
	}

	txType := resolveType(req, fee, hasBlobFields)

	if txType == types.BlobTxType {
		if req.MaxFeePerBlobGas == nil {
			return nil, ErrMissingBlobFee
		}
		if req.To == nil {
			return nil, errors.New("blob transaction requires a recipient")
		}
	}

	chainID, err := provider.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch chain id")
	}

	nonce, err := resolveNonce(ctx, provider, from, req)
	if err != nil {
		return nil, err
	}

	gasLimit, err := resolveGasLimit(ctx, provider, from, req)
	if err != nil {
		return nil, err
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	inner, err := buildInner(req, fee, txType, chainID, nonce, gasLimit, value, has1559Fields)
	if err != nil {
		return nil, err
	}

	return &UnsignedTx{ChainID: chainID, Tx: types.NewTx(inner)}, nil
}

// validateFeeFields applies the fail-fast incompatibility checks that need
// no network data.
func validateFeeFields(req *Request, has1559Fields, hasBlobFields bool) error {
	if req.Type != nil {
		switch *req.Type {
		case types.LegacyTxType, types.AccessListTxType:
			if has1559Fields {
				return errors.Wrap(ErrIncompatibleFeeFields, "legacy transaction type with EIP-1559 fee fields")
			}
			if hasBlobFields {
				return errors.Wrap(ErrIncompatibleFeeFields, "legacy transaction type with blob fields")
			}
		case types.DynamicFeeTxType:
			if req.GasPrice != nil {
				return errors.Wrap(ErrIncompatibleFeeFields, "EIP-1559 transaction type with gasPrice")
			}
		case types.BlobTxType:
			if req.GasPrice != nil {
				return errors.Wrap(ErrIncompatibleFeeFields, "blob transaction type with gasPrice")
			}
		default:
			return errors.Errorf("unsupported transaction type %d", *req.Type)
		}
	}

	if has1559Fields && req.GasPrice != nil {
		return errors.Wrap(ErrIncompatibleFeeFields, "gasPrice mixed with EIP-1559 fee fields")
	}

	if hasBlobFields && req.GasPrice != nil {
		return errors.Wrap(ErrIncompatibleFeeFields, "gasPrice mixed with blob fields")
	}

	return nil
}

func resolveType(req *Request, fee *FeeData, hasBlobFields bool) uint8 {
	switch {
	case req.Type != nil:
		return *req.Type
	case hasBlobFields:
		return types.BlobTxType
	case fee.MaxFeePerGas != nil && fee.MaxPriorityFeePerGas != nil:
		return types.DynamicFeeTxType
	default:
		return types.LegacyTxType
	}
}

func resolveNonce(ctx context.Context, provider Provider, from common.Address, req *Request) (uint64, error) {
	if req.Nonce != nil {
		return *req.Nonce, nil
	}

	nonce, err := provider.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch pending nonce")
	}

	return nonce, nil
}

func resolveGasLimit(ctx context.Context, provider Provider, from common.Address, req *Request) (uint64, error) {
	if req.GasLimit != nil {
		return *req.GasLimit, nil
	}

	gasLimit, err := provider.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    req.To,
		Value: req.Value,
		Data:  req.Data,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to estimate gas")
	}

	return gasLimit, nil
}

// resolveLegacyGasPrice completes the single fee field of type 0/1
// transactions, falling back to the network maxFeePerGas when no discrete
// gas price is quoted.
func resolveLegacyGasPrice(req *Request, fee *FeeData) (*big.Int, error) {
	switch {
	case req.GasPrice != nil:
		return req.GasPrice, nil
	case fee.GasPrice != nil:
		return fee.GasPrice, nil
	case fee.MaxFeePerGas != nil:
		return fee.MaxFeePerGas, nil
	default:
		return nil, errors.New("network quoted no gas price")
	}
}

// resolveDynamicFees completes maxFeePerGas/maxPriorityFeePerGas for type
// 2/3 transactions. A caller that supplied only a legacy gasPrice while the
// type was inferred as EIP-1559 gets that single value reused for both
// fields.
func resolveDynamicFees(req *Request, fee *FeeData, has1559Fields bool) (maxFee, maxTip *big.Int, err error) {
	if req.Type == nil && !has1559Fields && req.GasPrice != nil {
		return req.GasPrice, req.GasPrice, nil
	}

	maxFee = req.MaxFeePerGas
	if maxFee == nil {
		maxFee = fee.MaxFeePerGas
	}

	maxTip = req.MaxPriorityFeePerGas
	if maxTip == nil {
		maxTip = fee.MaxPriorityFeePerGas
	}

	if maxFee == nil || maxTip == nil {
		return nil, nil, errors.New("network quoted no EIP-1559 fee data")
	}

	return maxFee, maxTip, nil
}

//nolint:gocognit // one branch per transaction envelope
func buildInner(req *Request, fee *FeeData, txType uint8, chainID *big.Int, nonce, gasLimit uint64, value *big.Int, has1559Fields bool) (types.TxData, error) {
	switch txType {
	case types.LegacyTxType:
		gasPrice, err := resolveLegacyGasPrice(req, fee)
		if err != nil {
			return nil, err
		}

		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		}, nil

	case types.AccessListTxType:
		gasPrice, err := resolveLegacyGasPrice(req, fee)
		if err != nil {
			return nil, err
		}

		return &types.AccessListTx{
			ChainID:    chainID,
			Nonce:      nonce,
			GasPrice:   gasPrice,
			Gas:        gasLimit,
			To:         req.To,
			Value:      value,
			Data:       req.Data,
			AccessList: req.AccessList,
		}, nil

	case types.DynamicFeeTxType:
		maxFee, maxTip, err := resolveDynamicFees(req, fee, has1559Fields)
		if err != nil {
			return nil, err
		}

		return &types.DynamicFeeTx{
			ChainID:    chainID,
			Nonce:      nonce,
			GasTipCap:  maxTip,
			GasFeeCap:  maxFee,
			Gas:        gasLimit,
			To:         req.To,
			Value:      value,
			Data:       req.Data,
			AccessList: req.AccessList,
		}, nil

	case types.BlobTxType:
		maxFee, maxTip, err := resolveDynamicFees(req, fee, has1559Fields)
		if err != nil {
			return nil, err
		}

		chainIDU, err := toU256(chainID, "chainId")
		if err != nil {
			return nil, err
		}
		maxFeeU, err := toU256(maxFee, "maxFeePerGas")
		if err != nil {
			return nil, err
		}
		maxTipU, err := toU256(maxTip, "maxPriorityFeePerGas")
		if err != nil {
			return nil, err
		}
		blobFeeU, err := toU256(req.MaxFeePerBlobGas, "maxFeePerBlobGas")
		if err != nil {
			return nil, err
		}
		valueU, err := toU256(value, "value")
		if err != nil {
			return nil, err
		}

		return &types.BlobTx{
			ChainID:    chainIDU,
			Nonce:      nonce,
			GasTipCap:  maxTipU,
			GasFeeCap:  maxFeeU,
			Gas:        gasLimit,
			To:         *req.To,
			Value:      valueU,
			Data:       req.Data,
			AccessList: req.AccessList,
			BlobFeeCap: blobFeeU,
			BlobHashes: req.BlobHashes,
		}, nil

	default:
		return nil, errors.Errorf("unsupported transaction type %d", txType)
	}
}

func toU256(v *big.Int, field string) (*uint256.Int, error) {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.Errorf("%s does not fit in 256 bits", field)
	}

	return out, nil
}

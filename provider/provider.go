// Package provider adapts go-ethereum RPC clients to the narrow surface the
// transaction populator consumes, with multi-URL failover.
package provider

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/internal/util"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

// Client wraps one or more ethclient connections behind the
// txbuilder.Provider contract. When a node stops answering, calls roll over
// to the next configured URL.
type Client struct {
	urls    []string
	clients []*ethclient.Client

	mu      sync.Mutex
	current int
}

var _ txbuilder.Provider = (*Client)(nil)

// Dial connects to the given RPC URLs. URLs that fail to connect are kept
// and retried lazily; at least one must succeed up front.
func Dial(ctx context.Context, urls ...string) (*Client, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	clients := make([]*ethclient.Client, len(urls))
	connected := 0

	for i, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			util.LogFromContext(ctx).Warn().
				Str("url", url).
				Err(err).
				Msg("Failed to connect to RPC node, will retry on use")

			continue
		}

		clients[i] = client
		connected++
	}

	if connected == 0 {
		return nil, errors.New("failed to connect to any RPC node")
	}

	return &Client{
		urls:    urls,
		clients: clients,
	}, nil
}

// Close closes every underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
}

// ChainID returns the chain ID of the connected network.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain ID")
	}

	return chainID, nil
}

// FeeData quotes current fees. On networks with a base fee the EIP-1559
// fields are populated alongside the legacy gas price; pre-London networks
// get the gas price only.
func (c *Client) FeeData(ctx context.Context) (*txbuilder.FeeData, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas price")
	}

	fee := &txbuilder.FeeData{GasPrice: gasPrice}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest header")
	}

	if header.BaseFee == nil {
		return fee, nil
	}

	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas tip cap")
	}

	fee.MaxPriorityFeePerGas = tip
	fee.MaxFeePerGas = maxFeePerGas(header.BaseFee, tip)

	return fee, nil
}

// PendingNonceAt returns the pending nonce for the given address.
func (c *Client) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	nonce, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get pending nonce")
	}

	return nonce, nil
}

// EstimateGas estimates the gas needed to execute the call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	gas, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errors.Wrap(err, "failed to estimate gas")
	}

	return gas, nil
}

// BalanceAt returns the balance of an address at the latest known block.
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}

	return balance, nil
}

// SendRawTransaction broadcasts an RLP-serialized signed transaction and
// returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to decode signed transaction")
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	if err := client.SendTransaction(ctx, &tx); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to send transaction")
	}

	return tx.Hash(), nil
}

// getClient returns a healthy client, starting from the one that last
// answered. Dead connections are redialed in place.
func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.clients); i++ {
		idx := (c.current + i) % len(c.clients)

		if c.clients[idx] == nil {
			client, err := ethclient.DialContext(ctx, c.urls[idx])
			if err != nil {
				util.LogFromContext(ctx).Warn().
					Str("url", c.urls[idx]).
					Err(err).
					Msg("Failed to reconnect to RPC node")

				continue
			}

			c.clients[idx] = client
		}

		c.current = idx

		return c.clients[idx], nil
	}

	return nil, errors.New("all RPC clients are unavailable")
}

// maxFeePerGas applies the ethers-style ceiling of twice the base fee plus
// the priority tip, leaving headroom for base fee growth between quoting and
// inclusion.
func maxFeePerGas(baseFee, tip *big.Int) *big.Int {
	doubled := new(big.Int).Lsh(baseFee, 1)

	return doubled.Add(doubled, tip)
}

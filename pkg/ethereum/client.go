package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/config"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// Client is the ledger node connection used by the kit: read-only contract
// calls, node sync state polling and, when a key is configured, signed
// transaction submission.
type Client struct {
	config     *config.EthereumConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *zap.Logger

	mu         sync.Mutex
	syncState  token.SyncState
	syncStates *pubsub.Broadcaster[token.SyncState]

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewClient dials the configured RPC endpoint.
func NewClient(ctx context.Context, cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	c, err := NewClientWithBackend(cfg, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.Bool("signer", c.privateKey != nil),
		zap.String("signer_address", c.address.Hex()))

	return c, nil
}

// NewClientWithBackend wraps an existing ethclient connection.
func NewClientWithBackend(cfg *config.EthereumConfig, client *ethclient.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config:     cfg,
		client:     client,
		logger:     logger,
		syncState:  token.Syncing(nil),
		syncStates: pubsub.New[token.SyncState](),
		stopCh:     make(chan struct{}),
	}

	if key := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"); key != "" {
		privateKey, err := crypto.HexToECDSA(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		c.privateKey = privateKey
		c.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	}

	return c, nil
}

// Address returns the signer address, or the zero address when no key is set.
func (c *Client) Address() common.Address {
	return c.address
}

// Call executes a read-only contract call against block.
func (c *Client) Call(ctx context.Context, contract common.Address, data []byte, block rpc.BlockNumber) ([]byte, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	msg := geth.CallMsg{To: &contract, Data: data}
	var (
		out []byte
		err error
	)
	if block == rpc.PendingBlockNumber {
		out, err = c.client.PendingCallContract(ctx, msg)
	} else {
		out, err = c.client.CallContract(ctx, msg, blockNumberArg(block))
	}
	if err != nil {
		return nil, apperrors.TransportError(err, "failed to call contract")
	}
	return out, nil
}

// SyncState returns the last observed node sync state.
func (c *Client) SyncState() token.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncState
}

// SubscribeSyncState streams node sync state changes.
func (c *Client) SubscribeSyncState() *pubsub.Subscription[token.SyncState] {
	return c.syncStates.Subscribe()
}

// Start begins polling the node sync status every PollingInterval.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.pollSyncState()
	})
}

func (c *Client) pollSyncState() {
	defer c.wg.Done()

	c.logger.Info("Starting node sync poller", zap.Duration("interval", c.config.PollingInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.RefreshSyncState(ctx)

	ticker := time.NewTicker(c.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.RefreshSyncState(ctx)
		}
	}
}

// RefreshSyncState queries the node once and publishes the result if it
// differs from the previous state.
func (c *Client) RefreshSyncState(ctx context.Context) token.SyncState {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	var st token.SyncState
	progress, err := c.client.SyncProgress(ctx)
	switch {
	case err != nil:
		c.logger.Warn("Failed to query node sync status", zap.Error(err))
		st = token.NotSynced(apperrors.TransportError(err, "failed to query node sync status"))
	case progress == nil:
		st = token.Synced()
	default:
		st = token.Syncing(syncFraction(progress))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.syncState.Equal(st) {
		c.logger.Debug("Node sync state changed",
			zap.String("from", c.syncState.String()),
			zap.String("to", st.String()))
		c.syncState = st
		c.syncStates.Publish(st)
	}
	return st
}

func syncFraction(p *geth.SyncProgress) *float64 {
	if p.HighestBlock == 0 {
		return nil
	}
	f := float64(p.CurrentBlock) / float64(p.HighestBlock)
	if f > 1 {
		f = 1
	}
	return &f
}

// GetTransactor returns a transaction signer with nonce, gas limit and a
// capped gas price filled in.
func (c *Client) GetTransactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.privateKey == nil {
		return nil, apperrors.NoSignerError("no signer configured")
	}

	chainID := big.NewInt(c.config.ChainID)
	if c.config.ChainID == 0 {
		id, err := c.client.ChainID(ctx)
		if err != nil {
			return nil, apperrors.TransportError(err, "failed to get chain id")
		}
		chainID = id
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, apperrors.TransportError(err, "failed to get nonce")
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = c.config.GasLimit
	auth.Context = ctx

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, apperrors.TransportError(err, "failed to suggest gas price")
	}
	if c.config.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(c.config.MaxGasPrice, 10)
		if ok && gasPrice.Cmp(maxGasPrice) > 0 {
			c.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			gasPrice = maxGasPrice
		}
	}
	auth.GasPrice = gasPrice

	return auth, nil
}

// SendTransaction signs tx with the configured key and submits it.
func (c *Client) SendTransaction(ctx context.Context, tx TransactionData) (common.Hash, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	auth, err := c.GetTransactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	to := tx.To
	raw := types.NewTx(&types.LegacyTx{
		Nonce:    auth.Nonce.Uint64(),
		To:       &to,
		Value:    value,
		Gas:      auth.GasLimit,
		GasPrice: auth.GasPrice,
		Data:     tx.Input,
	})

	signed, err := auth.Signer(auth.From, raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, apperrors.TransportError(err, "failed to submit transaction")
	}

	c.logger.Info("Transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", signed.Nonce()))

	return signed.Hash(), nil
}

// Close stops the poller, ends sync state subscriptions and closes the
// connection.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.syncStates.Close()
		if c.client != nil {
			c.client.Close()
		}
	})
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

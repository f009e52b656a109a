// Package chain signs and submits oracle transactions and reads contract state
// over an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jonboulle/clockwork"

	"chainarena/config"
	"chainarena/internal/observability"
	"chainarena/internal/poll"
)

// ReceiptStatus is the result of waiting for a transaction receipt.
type ReceiptStatus int

const (
	ReceiptSuccess ReceiptStatus = iota
	ReceiptReverted
	ReceiptTimeout
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptSuccess:
		return "success"
	case ReceiptReverted:
		return "reverted"
	case ReceiptTimeout:
		return "timeout"
	}
	return "unknown"
}

// Backend is the subset of *ethclient.Client the adapter needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Options tune transaction construction and receipt polling.
type Options struct {
	ChainID      int64
	GasLimit     uint64
	GasPriceGwei int64
	// ReceiptPollInterval defaults to one second
	ReceiptPollInterval time.Duration
	Clock               clockwork.Clock
}

// OptionsFromConfig maps the chain config section onto Options.
func OptionsFromConfig(cfg config.ChainConfig) Options {
	return Options{
		ChainID:      cfg.ChainID,
		GasLimit:     cfg.GasLimit,
		GasPriceGwei: cfg.GasPriceGwei,
	}
}

// Client submits oracle prompts from a single signing account.
type Client struct {
	backend  Backend
	closer   func()
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer
	gasLimit uint64
	gasPrice *big.Int
	interval time.Duration
	clock    clockwork.Clock

	// nonceMu serializes nonce read, signing and broadcast for the account.
	nonceMu sync.Mutex
}

// Dial connects to cfg.RPCURL and returns a client signing with cfg.PrivateKey.
func Dial(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc %s: %w", cfg.RPCURL, err)
	}
	c, err := New(ec, cfg.PrivateKey, OptionsFromConfig(cfg))
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// New builds a client over an existing backend. privateKeyHex may carry a 0x prefix.
func New(backend Backend, privateKeyHex string, opts Options) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(oracleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse oracle abi: %w", err)
	}

	if opts.ChainID == 0 {
		return nil, errors.New("chain id is required")
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = 2_000_000
	}
	if opts.GasPriceGwei == 0 {
		opts.GasPriceGwei = 5
	}
	if opts.ReceiptPollInterval <= 0 {
		opts.ReceiptPollInterval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Client{
		backend:  backend,
		abi:      parsed,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		signer:   types.NewEIP155Signer(big.NewInt(opts.ChainID)),
		gasLimit: opts.GasLimit,
		gasPrice: new(big.Int).Mul(big.NewInt(opts.GasPriceGwei), big.NewInt(1_000_000_000)),
		interval: opts.ReceiptPollInterval,
		clock:    opts.Clock,
	}, nil
}

// Address returns the signing account.
func (c *Client) Address() string {
	return c.from.Hex()
}

// Close releases the RPC connection when the client was created with Dial.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Submit posts prompt to the contract's sendMessage and returns the transaction hash.
// Concurrent calls are serialized so every transaction gets the next pending nonce.
func (c *Client) Submit(ctx context.Context, contract, prompt string) (string, error) {
	to, err := parseAddress(contract)
	if err != nil {
		return "", err
	}
	data, err := c.abi.Pack("sendMessage", prompt)
	if err != nil {
		return "", fmt.Errorf("failed to encode sendMessage: %w", err)
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		observability.ChainSubmissions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: c.gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		observability.ChainSubmissions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		observability.ChainSubmissions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	observability.ChainSubmissions.WithLabelValues("ok").Inc()
	slog.DebugContext(ctx, "oracle transaction sent",
		"tx_hash", signed.Hash().Hex(),
		"contract", to.Hex(),
		"nonce", nonce,
	)
	return signed.Hash().Hex(), nil
}

// AwaitReceipt polls for the receipt of txHash until it is mined or timeout passes.
// A timeout is reported as ReceiptTimeout with a nil error.
func (c *Client) AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (ReceiptStatus, error) {
	hash := common.HexToHash(txHash)

	receipt, err := poll.Until(ctx, c.clock, poll.Policy{Interval: c.interval, Timeout: timeout},
		func(ctx context.Context) (*types.Receipt, bool, error) {
			r, err := c.backend.TransactionReceipt(ctx, hash)
			if errors.Is(err, ethereum.NotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, fmt.Errorf("failed to fetch receipt: %w", err)
			}
			return r, true, nil
		})
	if errors.Is(err, poll.ErrTimeout) {
		return ReceiptTimeout, nil
	}
	if err != nil {
		return ReceiptTimeout, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return ReceiptReverted, nil
	}
	return ReceiptSuccess, nil
}

// ReadResponseSlot calls the contract's response() view. ok is false while the
// slot is empty.
func (c *Client) ReadResponseSlot(ctx context.Context, contract string) (string, bool, error) {
	to, err := parseAddress(contract)
	if err != nil {
		return "", false, err
	}
	data, err := c.abi.Pack("response")
	if err != nil {
		return "", false, fmt.Errorf("failed to encode response call: %w", err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to call response(): %w", err)
	}
	if len(out) == 0 {
		return "", false, fmt.Errorf("contract %s returned no data", to.Hex())
	}

	values, err := c.abi.Unpack("response", out)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode response(): %w", err)
	}
	s, _ := values[0].(string)
	return s, s != "", nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid contract address %q", s)
	}
	return common.HexToAddress(s), nil
}

// IsAddress reports whether s is a 20-byte hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// Package wallet manages the owner's signing key. The bundled adapter
// keeps an ed25519 keypair in the same JSON array format solana-keygen
// writes, so an existing id.json can be dropped in as-is.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/clarity-app/core/internal/modules/nft/chain"
	"github.com/clarity-app/core/internal/pkg/apperr"
)

// Adapter is the wallet contract the mint flow consumes. A disconnected
// wallet makes every signing operation fail with a WALLET_NOT_CONNECTED
// conflict.
type Adapter interface {
	IsConnected() bool
	PublicAddress() (string, error)
	Balance(ctx context.Context) (float64, error)
	SignAndSend(ctx context.Context, message []byte) (string, error)
	RequestTestFunds(ctx context.Context, sol float64) error
}

func errNotConnected() error {
	return apperr.Conflict(apperr.CodeWalletNotConnected, "no wallet is connected")
}

// FileWallet stores the keypair on disk and delegates chain operations to
// a chain.Client.
type FileWallet struct {
	path  string
	chain chain.Client

	mu  sync.RWMutex
	key ed25519.PrivateKey
}

// NewFileWallet points the adapter at keyPath without touching the disk.
// Call Connect to load or Generate to create a key.
func NewFileWallet(keyPath string, chainClient chain.Client) *FileWallet {
	return &FileWallet{path: keyPath, chain: chainClient}
}

// Connect loads the keypair from disk. A missing file is not an error;
// the wallet just stays disconnected.
func (w *FileWallet) Connect() error {
	raw, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	secret, err := decodeKeyfile(raw)
	if err != nil {
		return fmt.Errorf("wallet: keyfile %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.key = secret
	w.mu.Unlock()
	return nil
}

// Keyfiles are the solana-keygen layout: a JSON array of byte values.
func decodeKeyfile(raw []byte) (ed25519.PrivateKey, error) {
	var nums []int
	if err := json.Unmarshal(raw, &nums); err != nil {
		return nil, fmt.Errorf("not a solana keypair: %w", err)
	}
	if len(nums) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair has %d bytes, want %d", len(nums), ed25519.PrivateKeySize)
	}
	secret := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range", i)
		}
		secret[i] = byte(n)
	}
	return ed25519.PrivateKey(secret), nil
}

func encodeKeyfile(key ed25519.PrivateKey) ([]byte, error) {
	nums := make([]int, len(key))
	for i, b := range key {
		nums[i] = int(b)
	}
	return json.Marshal(nums)
}

// Generate creates a new keypair, persists it and connects the wallet.
// Refuses to overwrite an existing keyfile.
func (w *FileWallet) Generate() (string, error) {
	if _, err := os.Stat(w.path); err == nil {
		return "", apperr.Conflict(apperr.CodeWalletNotConnected, "a wallet keyfile already exists")
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	raw, err := encodeKeyfile(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(w.path, raw, 0o600); err != nil {
		return "", err
	}

	w.mu.Lock()
	w.key = key
	w.mu.Unlock()
	return w.address(key), nil
}

// Disconnect drops the key from memory. The keyfile stays on disk.
func (w *FileWallet) Disconnect() {
	w.mu.Lock()
	w.key = nil
	w.mu.Unlock()
}

func (w *FileWallet) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.key != nil
}

func (w *FileWallet) address(key ed25519.PrivateKey) string {
	return base58.Encode(key.Public().(ed25519.PublicKey))
}

func (w *FileWallet) PublicAddress() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return "", errNotConnected()
	}
	return w.address(w.key), nil
}

func (w *FileWallet) Balance(ctx context.Context) (float64, error) {
	addr, err := w.PublicAddress()
	if err != nil {
		return 0, err
	}
	return w.chain.Balance(ctx, addr)
}

// SignAndSend signs the message with the wallet key and submits it.
func (w *FileWallet) SignAndSend(ctx context.Context, message []byte) (string, error) {
	w.mu.RLock()
	key := w.key
	w.mu.RUnlock()
	if key == nil {
		return "", errNotConnected()
	}

	signed := append(ed25519.Sign(key, message), message...)
	return w.chain.SubmitTransaction(ctx, signed)
}

// RequestTestFunds asks the faucet to fund the wallet. Only meaningful on
// devnet; the simulator enforces its own per-request cap.
func (w *FileWallet) RequestTestFunds(ctx context.Context, sol float64) error {
	addr, err := w.PublicAddress()
	if err != nil {
		return err
	}
	return w.chain.RequestAirdrop(ctx, addr, sol)
}

// Package chain abstracts the Solana-side mint submission. The only
// bundled implementation is a devnet simulator; a mainnet client has to be
// injected by the embedding build.
package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
)

// Fee charged per simulated transaction, in SOL.
const simTxFeeSOL = 0.000005

// Receipt identifies a confirmed mint submission.
type Receipt struct {
	MintAddress string `json:"mint_address"`
	Signature   string `json:"signature"`
}

// Client submits transactions for the journal's NFT flow.
//
// CreateNonFungibleToken is NOT idempotent: every call allocates a fresh
// mint account, so callers must guarantee at-most-once submission per
// entry themselves.
type Client interface {
	Network() string
	CreateNonFungibleToken(ctx context.Context, ownerAddress string) (*Receipt, error)
	SubmitTransaction(ctx context.Context, signed []byte) (string, error)
	Balance(ctx context.Context, address string) (float64, error)
	RequestAirdrop(ctx context.Context, address string, sol float64) error
}

var (
	ErrInsufficientFunds = errors.New("chain: insufficient funds for transaction")
	ErrAirdropLimit      = errors.New("chain: airdrop amount exceeds the faucet limit")
)

// Simulator is an in-memory devnet. Accounts start empty and are funded
// through RequestAirdrop, mirroring how the real devnet faucet behaves.
type Simulator struct {
	network     string
	airdropCap  float64
	mu          sync.Mutex
	balancesSOL map[string]float64
}

// NewSimulator builds a devnet simulator. airdropCapSOL <= 0 falls back to
// the public faucet's 2 SOL per request.
func NewSimulator(network string, airdropCapSOL float64) *Simulator {
	if network == "" {
		network = "devnet"
	}
	if airdropCapSOL <= 0 {
		airdropCapSOL = 2
	}
	return &Simulator{
		network:     network,
		airdropCap:  airdropCapSOL,
		balancesSOL: map[string]float64{},
	}
}

func (s *Simulator) Network() string { return s.network }

// newAddress allocates a fresh ed25519 public key in base58, the same
// shape real mint accounts have.
func newAddress() (string, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base58.Encode(pub), nil
}

func newSignature() (string, error) {
	sig := make([]byte, 64)
	if _, err := rand.Read(sig); err != nil {
		return "", err
	}
	return base58.Encode(sig), nil
}

// CreateNonFungibleToken mints a token to ownerAddress and returns the new
// mint account and transaction signature. Each call creates a different
// mint account.
func (s *Simulator) CreateNonFungibleToken(ctx context.Context, ownerAddress string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ownerAddress == "" {
		return nil, errors.New("chain: owner address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balancesSOL[ownerAddress] < simTxFeeSOL {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, ownerAddress)
	}

	mint, err := newAddress()
	if err != nil {
		return nil, err
	}
	sig, err := newSignature()
	if err != nil {
		return nil, err
	}
	s.balancesSOL[ownerAddress] -= simTxFeeSOL
	return &Receipt{MintAddress: mint, Signature: sig}, nil
}

// SubmitTransaction accepts any signed payload and acknowledges it with a
// signature, enough for the wallet adapter's send path.
func (s *Simulator) SubmitTransaction(ctx context.Context, signed []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(signed) == 0 {
		return "", errors.New("chain: empty transaction")
	}
	return newSignature()
}

func (s *Simulator) Balance(ctx context.Context, address string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balancesSOL[address], nil
}

func (s *Simulator) RequestAirdrop(ctx context.Context, address string, sol float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sol <= 0 {
		return errors.New("chain: airdrop amount must be positive")
	}
	if sol > s.airdropCap {
		return fmt.Errorf("%w: requested %.2f, limit %.2f", ErrAirdropLimit, sol, s.airdropCap)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balancesSOL[address] += sol
	return nil
}

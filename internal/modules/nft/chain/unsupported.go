package chain

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoClient is returned by every Unsupported operation.
var ErrNoClient = errors.New("chain: no client bundled for this network")

// Unsupported is the client installed when the configured network has no
// bundled implementation (anything other than devnet). It keeps the mint
// module fully wired so status endpoints and audits work, while every
// submission fails fast instead of silently simulating a mainnet mint.
type Unsupported struct {
	network string
}

func NewUnsupported(network string) *Unsupported {
	if network == "" {
		network = "mainnet-beta"
	}
	return &Unsupported{network: network}
}

func (u *Unsupported) Network() string { return u.network }

func (u *Unsupported) fail() error {
	return fmt.Errorf("%w: %s requires an injected RPC client", ErrNoClient, u.network)
}

func (u *Unsupported) CreateNonFungibleToken(ctx context.Context, ownerAddress string) (*Receipt, error) {
	return nil, u.fail()
}

func (u *Unsupported) SubmitTransaction(ctx context.Context, signed []byte) (string, error) {
	return "", u.fail()
}

func (u *Unsupported) Balance(ctx context.Context, address string) (float64, error) {
	return 0, u.fail()
}

func (u *Unsupported) RequestAirdrop(ctx context.Context, address string, sol float64) error {
	return u.fail()
}

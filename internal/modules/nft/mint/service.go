// Package mint drives the entry-to-NFT state machine. An entry moves
// unminted -> minting -> minted, or back to unminted when anything fails.
// The minting claim is persisted before the first external call, so a
// crash can never leave a half-recorded mint that a restart cannot see.
package mint

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/gateway/notify"
	"github.com/clarity-app/core/internal/modules/journal"
	"github.com/clarity-app/core/internal/modules/nft/chain"
	"github.com/clarity-app/core/internal/modules/nft/metastore"
	"github.com/clarity-app/core/internal/modules/nft/wallet"
	"github.com/clarity-app/core/internal/pkg/apperr"
	"github.com/clarity-app/core/internal/store/entrystore"
)

const defaultMintTimeout = 90 * time.Second

const (
	auditStarted   = "started"
	auditSucceeded = "succeeded"
	auditFailed    = "failed"
)

type Service struct {
	store    *entrystore.Store
	journal  *journal.Service
	wallet   wallet.Adapter
	chain    chain.Client
	meta     metastore.Store
	notifier *notify.Service
	logger   *zap.Logger
	timeout  time.Duration

	// now is swapped out by tests.
	now func() time.Time
}

func NewService(store *entrystore.Store, journalSvc *journal.Service, walletAdapter wallet.Adapter, chainClient chain.Client, metaStore metastore.Store, notifier *notify.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		journal:  journalSvc,
		wallet:   walletAdapter,
		chain:    chainClient,
		meta:     metaStore,
		notifier: notifier,
		logger:   logger,
		timeout:  defaultMintTimeout,
		now:      time.Now,
	}
}

// Wallet exposes the adapter for the HTTP layer.
func (s *Service) Wallet() wallet.Adapter { return s.wallet }

// Network names the chain the service mints on.
func (s *Service) Network() string { return s.chain.Network() }

// ambiguousFailure reports whether the call may have taken effect remotely
// even though it returned an error. Timeouts and cancellations are the
// cases where the collaborator's state is unknown.
func ambiguousFailure(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Mint turns one entry into an NFT, at most once. The flow is:
// preconditions, persist the minting claim, upload metadata, submit the
// chain transaction, record the result. Every failure after the claim
// reverts the entry to unminted; the chain call itself is the only step
// that can leave residue behind, which the returned error flags.
func (s *Service) Mint(ctx context.Context, userID, entryID string) (*models.EntryModel, error) {
	entry, err := s.store.GetEntry(userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.IsMinted || entry.MintState == models.MintStateMinted {
		return nil, apperr.Conflict(apperr.CodeAlreadyMinted, "entry has already been minted")
	}
	if !s.wallet.IsConnected() {
		return nil, apperr.Conflict(apperr.CodeWalletNotConnected, "connect a wallet before minting")
	}
	owner, err := s.wallet.PublicAddress()
	if err != nil {
		return nil, err
	}

	// The claim is the at-most-once gate: a concurrent second call loses
	// the row-level compare-and-set and gets a conflict here.
	if err := s.store.ClaimMint(userID, entryID); err != nil {
		return nil, err
	}

	audit := &models.MintAuditModel{EntryID: entryID, State: auditStarted, OwnerAddress: owner}
	if err := s.store.CreateMintAudit(audit); err != nil {
		s.logger.Error("mint audit write failed", zap.String("entry", entryID), zap.Error(err))
	}
	s.notifier.OnMintStart(entryID)

	mctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := EncodeMetadata(BuildMetadata(entry))
	if err != nil {
		return nil, s.failMint(entryID, audit, apperr.Internal("metadata encode failed", err))
	}

	uri, err := s.meta.Upload(mctx, metadataKey(entryID), raw, "application/json")
	if err != nil {
		return nil, s.failMint(entryID, audit, apperr.Collaborator("metadata", ambiguousFailure(err), err))
	}

	receipt, err := s.chain.CreateNonFungibleToken(mctx, owner)
	if err != nil {
		return nil, s.failMint(entryID, audit, apperr.Collaborator("chain", ambiguousFailure(err), err))
	}

	minted, err := s.journal.ApplyMintResult(ctx, userID, entryID, receipt.MintAddress, receipt.Signature, uri)
	if err != nil {
		// The token exists on chain but the local record failed. The entry
		// reverts so the client can retry; the audit row keeps the receipt
		// for manual recovery of the orphaned token.
		s.recordAudit(audit, map[string]interface{}{
			"mint_address": receipt.MintAddress,
			"signature":    receipt.Signature,
		})
		return nil, s.failMint(entryID, audit, apperr.Collaborator("chain", true,
			errors.New("token minted but local record failed: "+err.Error())))
	}

	s.recordAudit(audit, map[string]interface{}{
		"state":        auditSucceeded,
		"mint_address": receipt.MintAddress,
		"signature":    receipt.Signature,
		"finished_at":  s.now(),
	})
	s.notifier.OnMintSuccess(minted)
	return minted, nil
}

// failMint rolls the entry back to unminted and reports the attempt.
func (s *Service) failMint(entryID string, audit *models.MintAuditModel, cause error) error {
	if err := s.store.RevertMint(entryID); err != nil {
		s.logger.Error("mint revert failed, entry stays in minting until restart",
			zap.String("entry", entryID), zap.Error(err))
	}
	s.recordAudit(audit, map[string]interface{}{
		"state":       auditFailed,
		"fail_reason": cause.Error(),
		"finished_at": s.now(),
	})
	s.notifier.OnMintFail(entryID, cause.Error())
	return cause
}

func (s *Service) recordAudit(audit *models.MintAuditModel, updates map[string]interface{}) {
	if audit == nil || audit.ID == "" {
		return
	}
	if err := s.store.UpdateMintAudit(audit.ID, updates); err != nil {
		s.logger.Error("mint audit update failed", zap.String("audit", audit.ID), zap.Error(err))
	}
}

// ReconcileInterrupted reverts entries a previous process left in the
// minting state. Runs at startup, before any new mint can start, so a
// crashed attempt never blocks the entry forever.
func (s *Service) ReconcileInterrupted() (int, error) {
	stuck, err := s.store.ListStuckMinting()
	if err != nil {
		return 0, err
	}
	reverted := 0
	for i := range stuck {
		entry := &stuck[i]
		if err := s.store.RevertMint(entry.ID); err != nil {
			s.logger.Error("stuck mint revert failed", zap.String("entry", entry.ID), zap.Error(err))
			continue
		}
		audit := &models.MintAuditModel{
			EntryID:    entry.ID,
			State:      auditFailed,
			FailReason: "mint interrupted, found in minting state at startup",
		}
		now := s.now()
		audit.FinishedAt = &now
		if err := s.store.CreateMintAudit(audit); err != nil {
			s.logger.Error("mint audit write failed", zap.String("entry", entry.ID), zap.Error(err))
		}
		s.logger.Warn("reverted interrupted mint", zap.String("entry", entry.ID))
		reverted++
	}
	return reverted, nil
}

// ListMinted returns the gallery view of minted entries.
func (s *Service) ListMinted(userID string) ([]models.EntryModel, error) {
	return s.store.ListMinted(userID)
}

// Audits returns the attempt history for one entry.
func (s *Service) Audits(userID, entryID string) ([]models.MintAuditModel, error) {
	if _, err := s.store.GetEntry(userID, entryID); err != nil {
		return nil, err
	}
	return s.store.ListMintAudits(entryID)
}

// WalletStatusDTO is the client's wallet panel payload.
type WalletStatusDTO struct {
	Connected  bool    `json:"connected"`
	Address    string  `json:"address,omitempty"`
	BalanceSOL float64 `json:"balance_sol"`
	Network    string  `json:"network"`
}

func (s *Service) WalletStatus(ctx context.Context) *WalletStatusDTO {
	status := &WalletStatusDTO{Network: s.chain.Network()}
	if !s.wallet.IsConnected() {
		return status
	}
	status.Connected = true
	if addr, err := s.wallet.PublicAddress(); err == nil {
		status.Address = addr
	}
	if bal, err := s.wallet.Balance(ctx); err == nil {
		status.BalanceSOL = bal
	} else {
		s.logger.Warn("wallet balance unavailable", zap.Error(err))
	}
	return status
}

// GenerateWallet creates a keypair when the adapter supports it and
// records the address on the owner profile.
func (s *Service) GenerateWallet(ctx context.Context, userID string) (string, error) {
	gen, ok := s.wallet.(interface{ Generate() (string, error) })
	if !ok {
		return "", apperr.Conflict(apperr.CodeWalletNotConnected, "this build's wallet adapter cannot create keys")
	}
	addr, err := gen.Generate()
	if err != nil {
		return "", err
	}
	if _, err := s.journal.UpdateUser(ctx, userID, map[string]interface{}{"wallet_address": addr}); err != nil {
		s.logger.Warn("wallet address not recorded on profile", zap.Error(err))
	}
	return addr, nil
}

// Airdrop funds the wallet from the faucet. Refused on mainnet.
func (s *Service) Airdrop(ctx context.Context, sol float64) error {
	if strings.HasPrefix(strings.ToLower(s.chain.Network()), "mainnet") {
		return apperr.Validation(apperr.CodeAirdropUnavailable, "test funds are only available on devnet")
	}
	return s.wallet.RequestTestFunds(ctx, sol)
}

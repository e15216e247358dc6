// Package dlcmanager is the single entry point for incoming DLC protocol
// messages and the periodic reconciliation loop that drives contracts
// through confirmation, oracle attestation, and closure. Spec §4.F
// "Manager / Reconciliation Loop". Grounded on the dispatch shape of
// original_source/ddk-manager/src/manager.rs (on_dlc_message,
// periodic_check, close_confirmed_contract, on_counterparty_close) wired
// onto the teacher's external-collaborator pattern (peer.go holding a
// Brontide, a ChannelDB, and a ChainNotifier rather than owning I/O
// itself).
package dlcmanager

import (
	"context"
	"sync"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/external"
)

// DefaultConfirmationDepth is the confirmation count, N, both funding and
// closing transactions must reach before a contract advances past
// Confirmed/PreClosed. Spec §4.E "N is the confirmation depth (six in the
// reference)".
const DefaultConfirmationDepth = 6

// DefaultMaxOracleFetchesInFlight bounds how many concurrent
// GetAttestation calls a single periodic check issues, per spec §4.F
// "a bounded in-flight set".
const DefaultMaxOracleFetchesInFlight = 8

// Config bundles every external collaborator and tunable the manager
// needs. Spec §6 "Collaborator traits".
type Config struct {
	Wallet         external.Wallet
	SignerProvider external.ContractSignerProvider
	Blockchain     external.Blockchain
	Storage        external.Storage
	Time           external.Time

	// Oracles maps an oracle's x-only public key (OracleAnnouncement.
	// PublicKey) to the implementation that serves its event feed. Spec
	// §4.F "Manager holds a map from oracle public key to
	// implementation".
	Oracles map[[32]byte]external.Oracle

	// ConfirmationDepth overrides DefaultConfirmationDepth when nonzero.
	ConfirmationDepth uint32

	// MaxOracleFetchesInFlight overrides DefaultMaxOracleFetchesInFlight
	// when nonzero.
	MaxOracleFetchesInFlight int64
}

// Manager is the DLC engine's single logical owner of contract state: all
// incoming protocol messages and all periodic-check advancement pass
// through it. Spec §5 "at most one on_dlc_message or periodic_check
// executes for a given contract at a time" — Manager itself does not
// enforce cross-contract exclusion (callers serialize per id if they run
// concurrent dispatch), but every method here only ever mutates the one
// contract it was handed.
type Manager struct {
	cfg Config

	// quit and wg back Start/Stop's background reconciliation loop, see
	// run.go. quit stays nil until Start is called.
	quit chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Manager from cfg, filling in defaults for any
// zero-valued tunable.
func New(cfg Config) *Manager {
	if cfg.ConfirmationDepth == 0 {
		cfg.ConfirmationDepth = DefaultConfirmationDepth
	}
	if cfg.MaxOracleFetchesInFlight == 0 {
		cfg.MaxOracleFetchesInFlight = DefaultMaxOracleFetchesInFlight
	}
	if cfg.Oracles == nil {
		cfg.Oracles = make(map[[32]byte]external.Oracle)
	}
	return &Manager{cfg: cfg}
}

// oracleFor looks up the Oracle implementation for an announcement's
// public key.
func (m *Manager) oracleFor(pubKey [32]byte) (external.Oracle, bool) {
	o, ok := m.cfg.Oracles[pubKey]
	return o, ok
}

// now returns the manager's current time source, spec §6 "Time".
func (m *Manager) now() uint64 {
	return m.cfg.Time.UnixTimeNow()
}

// persist stores c under its current id, recording priorID when
// the caller is promoting a temporary id to a final one. Every call site
// in this package calls lifecycle.Validate immediately before this, so a
// disallowed transition never reaches Storage.
func (m *Manager) persist(ctx context.Context, c *contract.Contract, priorID *contract.ID) error {
	return m.cfg.Storage.UpdateContract(ctx, c, priorID)
}

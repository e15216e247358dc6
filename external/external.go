// Package external defines the narrow collaborator interfaces the DLC
// core consumes — wallet, chain, storage, oracle, and time — without
// depending on any concrete backend. Spec §6 "Collaborator traits".
// Grounded on the trait bounds of original_source/ddk-manager/src/lib.rs
// and manager.rs, translated to Go interfaces the way chainntfs.go and
// healthcheck/healthcheck.go narrow lnd's own chain/wallet dependencies.
package external

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/txbuilder"
)

// Wallet is the UTXO-selection and PSBT-signing surface the core needs to
// fund and sign a contract's non-DLC inputs. Spec §6 "Wallet".
type Wallet interface {
	NewAddress(ctx context.Context) ([]byte, error)
	NewChangeAddress(ctx context.Context) ([]byte, error)
	UTXOsForAmount(ctx context.Context, amount btcutil.Amount, feeRatePerVByte int64, lock bool) ([]txbuilder.FundingInput, error)
	ImportAddress(ctx context.Context, script []byte) error
	SignPSBTInput(ctx context.Context, p *psbt.Packet, index int) error
	UnreserveUTXOs(ctx context.Context, outpoints []wire.OutPoint) error
}

// ContractSignerProvider derives the per-contract funding keypair from a
// stable, opaque key id. Spec §6 "Signer provider"; spec §9 "Signer
// derivation" permits any deterministic scheme keyed off key_id.
type ContractSignerProvider interface {
	DeriveSignerKeyID(isOfferParty bool, temporaryID contract.ID) ([32]byte, error)
	DeriveContractSigner(keyID [32]byte) (*btcec.PrivateKey, *btcec.PublicKey, error)
}

// Blockchain is the chain-query and broadcast surface. Spec §6
// "Blockchain".
type Blockchain interface {
	Network() *chaincfg.Params
	BlockchainHeight(ctx context.Context) (uint32, error)
	BlockAtHeight(ctx context.Context, height uint32) (*wire.MsgBlock, error)
	Transaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
	TransactionConfirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)
	SendTransaction(ctx context.Context, tx *wire.MsgTx) error
}

// Storage is the persistence surface. One logical row per contract, keyed
// by its current id. Spec §6 "Storage".
type Storage interface {
	CreateContract(ctx context.Context, offered *contract.OfferedContract) error
	// UpdateContract persists c under its current id. If priorID is
	// non-nil, the row at priorID is removed atomically with the
	// insertion (the temporary-to-final id promotion when an Offered
	// contract becomes Accepted or Signed, spec §3 "Ownership and
	// lifecycle").
	UpdateContract(ctx context.Context, c *contract.Contract, priorID *contract.ID) error
	DeleteContract(ctx context.Context, id contract.ID) error
	GetContract(ctx context.Context, id contract.ID) (*contract.Contract, error)
	GetContractOffers(ctx context.Context) ([]*contract.Contract, error)
	GetSignedContracts(ctx context.Context) ([]*contract.Contract, error)
	GetConfirmedContracts(ctx context.Context) ([]*contract.Contract, error)
	GetPreClosedContracts(ctx context.Context) ([]*contract.Contract, error)
}

// Oracle is the attestation-transport surface. The manager holds a map
// from oracle public key to implementation. Spec §6 "Oracle".
type Oracle interface {
	PublicKey() [32]byte
	GetAnnouncement(ctx context.Context, eventID string) (*contract.OracleAnnouncement, error)
	GetAttestation(ctx context.Context, eventID string) (*contract.OracleAttestation, error)
}

// Time exists as an interface purely so tests can advance it. Spec §6
// "Time".
type Time interface {
	UnixTimeNow() uint64
}

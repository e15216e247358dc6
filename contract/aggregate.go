package contract

import (
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/txbuilder"
)

// OfferedContract is the initial state: a proposed contract not yet
// accepted by the counterparty. Spec §3 "Offered / Accepted / Signed
// Contracts".
type OfferedContract struct {
	ID              ID
	IsOfferParty    bool
	CounterParty    [33]byte // counterparty's node/peer public key, compressed
	ContractInfo    []ContractInfo
	TotalCollateral btcutil.Amount
	OfferParams     txbuilder.PartyParams
	FundOutputSerialID uint64
	FeeRatePerVByte int64
	CetLockTime     uint32
	RefundLockTime  uint32
}

// AcceptedContract adds the acceptor's contribution: its party params,
// the rebuilt (and possibly spliced) DLC transactions, the acceptor's CET
// adaptor signatures (one slice per contract-info, ordered with the CET
// set), its refund signature, and the adaptor info tables.
type AcceptedContract struct {
	OfferedContract OfferedContract
	AcceptParams    txbuilder.PartyParams
	DlcTransactions txbuilder.DlcTransactions
	AdaptorSignatures [][]adaptor.Signature
	AdaptorInfos      []*AdaptorInfo
	RefundSignature   ecdsa.Signature
	ContractID        ID
}

// GetContractID returns the final contract id computed at accept time.
func (a *AcceptedContract) GetContractID() ID {
	return a.ContractID
}

// SignedContract adds the offerer's CET adaptor signatures, its refund
// signature, and the per-input funding signatures once both sides have
// signed. The same struct also represents Confirmed and Refunded (spec
// §9 "nested aggregates... reimplementers MAY flatten"); Stage
// distinguishes them so this one Go struct still needs a wrapper, see
// Contract below.
type SignedContract struct {
	AcceptedContract  AcceptedContract
	AdaptorSignatures [][]adaptor.Signature
	RefundSignature   ecdsa.Signature
	FundingSignatures []wire.TxWitness // one witness stack per offerer funding input
}

// PreClosedContract is a Signed contract whose winning CET has been
// broadcast but is not yet fully confirmed.
type PreClosedContract struct {
	SignedContract SignedContract
	Attestations   []OracleAttestation
	SignedCet      *wire.MsgTx
}

// ClosedContract is the compact record retained once a CET (or refund, or
// splice) has fully confirmed. Spec §3 "Closed".
type ClosedContract struct {
	Attestations        []OracleAttestation
	SignedCet           *wire.MsgTx
	ContractID          ID
	TemporaryContractID ID
	CounterPartyID      [33]byte
	FundingTxid         chainhash.Hash
	PnLSats             int64
}

// FailedAcceptContract retains an Offered contract and the Accept message
// that failed verification, for audit. Spec §3 "Failed{Accept,Sign}".
type FailedAcceptContract struct {
	OfferedContract OfferedContract
	ErrorMessage    string
}

// FailedSignContract retains an Accepted contract and the Sign message
// that failed verification.
type FailedSignContract struct {
	AcceptedContract AcceptedContract
	ErrorMessage     string
}

// Stage discriminates which lifecycle state a Contract wraps, since
// Confirmed and Refunded share SignedContract's shape but are distinct
// states in the lifecycle DAG (spec §4.E).
type Stage uint8

const (
	StageOffered Stage = iota
	StageAccepted
	StageSigned
	StageConfirmed
	StagePreClosed
	StageClosed
	StageRefunded
	StageFailedAccept
	StageFailedSign
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageOffered:
		return "offered"
	case StageAccepted:
		return "accepted"
	case StageSigned:
		return "signed"
	case StageConfirmed:
		return "confirmed"
	case StagePreClosed:
		return "pre-closed"
	case StageClosed:
		return "closed"
	case StageRefunded:
		return "refunded"
	case StageFailedAccept:
		return "failed accept"
	case StageFailedSign:
		return "failed sign"
	case StageRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Contract is a tagged union over every lifecycle stage, mirroring
// original_source/ddk-manager/src/contract/mod.rs's Contract enum and its
// accessor methods, flattened into a single Go struct per spec §9's
// explicitly permitted alternative to nested nominal types.
type Contract struct {
	Stage Stage

	Offered      *OfferedContract
	Accepted     *AcceptedContract
	Signed       *SignedContract
	PreClosed    *PreClosedContract
	Closed       *ClosedContract
	FailedAccept *FailedAcceptContract
	FailedSign   *FailedSignContract
}

// GetID returns the contract's current id: the temporary id for Offered,
// Rejected, and FailedAccept contracts, the final id otherwise.
func (c *Contract) GetID() ID {
	switch c.Stage {
	case StageOffered, StageRejected:
		return c.Offered.ID
	case StageAccepted:
		return c.Accepted.GetContractID()
	case StageSigned, StageConfirmed, StageRefunded:
		return c.Signed.AcceptedContract.GetContractID()
	case StageFailedAccept:
		return c.FailedAccept.OfferedContract.ID
	case StageFailedSign:
		return c.FailedSign.AcceptedContract.GetContractID()
	case StagePreClosed:
		return c.PreClosed.SignedContract.AcceptedContract.GetContractID()
	case StageClosed:
		return c.Closed.ContractID
	}
	return ID{}
}

// GetTemporaryID returns the random id assigned at offer time.
func (c *Contract) GetTemporaryID() ID {
	switch c.Stage {
	case StageOffered, StageRejected:
		return c.Offered.ID
	case StageAccepted:
		return c.Accepted.OfferedContract.ID
	case StageSigned, StageConfirmed, StageRefunded:
		return c.Signed.AcceptedContract.OfferedContract.ID
	case StageFailedAccept:
		return c.FailedAccept.OfferedContract.ID
	case StageFailedSign:
		return c.FailedSign.AcceptedContract.OfferedContract.ID
	case StagePreClosed:
		return c.PreClosed.SignedContract.AcceptedContract.OfferedContract.ID
	case StageClosed:
		return c.Closed.TemporaryContractID
	}
	return ID{}
}

// IsOfferParty reports whether the local party proposed this contract.
func (c *Contract) IsOfferParty() bool {
	switch c.Stage {
	case StageOffered, StageRejected:
		return c.Offered.IsOfferParty
	case StageAccepted:
		return c.Accepted.OfferedContract.IsOfferParty
	case StageSigned, StageConfirmed, StageRefunded:
		return c.Signed.AcceptedContract.OfferedContract.IsOfferParty
	case StageFailedAccept:
		return c.FailedAccept.OfferedContract.IsOfferParty
	case StageFailedSign:
		return c.FailedSign.AcceptedContract.OfferedContract.IsOfferParty
	case StagePreClosed:
		return c.PreClosed.SignedContract.AcceptedContract.OfferedContract.IsOfferParty
	}
	return false
}

// GetCollateral returns (offer, accept, total) collateral amounts.
func (c *Contract) GetCollateral() (offer, accept, total btcutil.Amount) {
	switch c.Stage {
	case StageOffered, StageRejected:
		o := c.Offered
		return o.OfferParams.CollateralAmount, o.TotalCollateral - o.OfferParams.CollateralAmount, o.TotalCollateral
	case StageAccepted:
		a := c.Accepted
		return a.OfferedContract.OfferParams.CollateralAmount, a.AcceptParams.CollateralAmount, a.OfferedContract.TotalCollateral
	case StageSigned, StageConfirmed, StageRefunded:
		a := c.Signed.AcceptedContract
		return a.OfferedContract.OfferParams.CollateralAmount, a.AcceptParams.CollateralAmount, a.OfferedContract.TotalCollateral
	case StagePreClosed:
		a := c.PreClosed.SignedContract.AcceptedContract
		return a.OfferedContract.OfferParams.CollateralAmount, a.AcceptParams.CollateralAmount, a.OfferedContract.TotalCollateral
	}
	return 0, 0, 0
}

// GetCetLockTime returns the cet_locktime field for non-terminal states,
// and the broadcast CET's own locktime for Closed contracts — these agree
// only when the CET used the default locktime (spec §9 "Open question —
// ClosedContract locktime").
func (c *Contract) GetCetLockTime() uint32 {
	switch c.Stage {
	case StageOffered, StageAccepted:
		return c.offeredOf().CetLockTime
	case StageSigned, StageConfirmed, StageRefunded:
		return c.Signed.AcceptedContract.OfferedContract.CetLockTime
	case StagePreClosed:
		return c.PreClosed.SignedContract.AcceptedContract.OfferedContract.CetLockTime
	case StageClosed:
		if c.Closed.SignedCet != nil {
			return c.Closed.SignedCet.LockTime
		}
	case StageFailedAccept:
		return c.FailedAccept.OfferedContract.CetLockTime
	case StageFailedSign:
		return c.FailedSign.AcceptedContract.OfferedContract.CetLockTime
	}
	return 0
}

// GetRefundLockTime returns the refund_locktime field.
func (c *Contract) GetRefundLockTime() uint32 {
	switch c.Stage {
	case StageOffered, StageAccepted:
		return c.offeredOf().RefundLockTime
	case StageSigned, StageConfirmed, StageRefunded:
		return c.Signed.AcceptedContract.OfferedContract.RefundLockTime
	case StagePreClosed:
		return c.PreClosed.SignedContract.AcceptedContract.OfferedContract.RefundLockTime
	case StageFailedAccept:
		return c.FailedAccept.OfferedContract.RefundLockTime
	case StageFailedSign:
		return c.FailedSign.AcceptedContract.OfferedContract.RefundLockTime
	}
	return 0
}

// GetFundingTxid returns the funding transaction id, once known.
func (c *Contract) GetFundingTxid() (chainhash.Hash, bool) {
	switch c.Stage {
	case StageAccepted:
		return c.Accepted.DlcTransactions.Fund.TxHash(), true
	case StageSigned, StageConfirmed, StageRefunded:
		return c.Signed.AcceptedContract.DlcTransactions.Fund.TxHash(), true
	case StagePreClosed:
		return c.PreClosed.SignedContract.AcceptedContract.DlcTransactions.Fund.TxHash(), true
	case StageClosed:
		return c.Closed.FundingTxid, true
	}
	return chainhash.Hash{}, false
}

// GetOracleAnnouncement returns the first contract-info's first oracle
// announcement, a convenience accessor the reference also provides for
// single-oracle contracts.
func (c *Contract) GetOracleAnnouncement() (*OracleAnnouncement, bool) {
	o := c.offeredOf()
	if o == nil || len(o.ContractInfo) == 0 || len(o.ContractInfo[0].Announcements) == 0 {
		return nil, false
	}
	return &o.ContractInfo[0].Announcements[0], true
}

// GetCetTxid returns the id of the broadcast CET, once one exists.
func (c *Contract) GetCetTxid() (chainhash.Hash, bool) {
	switch c.Stage {
	case StagePreClosed:
		return c.PreClosed.SignedCet.TxHash(), true
	case StageClosed:
		if c.Closed.SignedCet != nil {
			return c.Closed.SignedCet.TxHash(), true
		}
	}
	return chainhash.Hash{}, false
}

// offeredOf returns the embedded OfferedContract for any non-terminal,
// non-closed stage, or nil.
func (c *Contract) offeredOf() *OfferedContract {
	switch c.Stage {
	case StageOffered, StageRejected:
		return c.Offered
	case StageAccepted:
		return &c.Accepted.OfferedContract
	case StageSigned, StageConfirmed, StageRefunded:
		return &c.Signed.AcceptedContract.OfferedContract
	case StagePreClosed:
		return &c.PreClosed.SignedContract.AcceptedContract.OfferedContract
	case StageFailedAccept:
		return &c.FailedAccept.OfferedContract
	case StageFailedSign:
		return &c.FailedSign.AcceptedContract.OfferedContract
	}
	return nil
}

// GetPnL returns the profit (positive) or loss (negative), in satoshis,
// this party realized — zero until the contract is Closed.
func (c *Contract) GetPnL() int64 {
	if c.Stage == StageClosed {
		return c.Closed.PnLSats
	}
	return 0
}

// ComputePnL computes the P&L the local party realized from a signed CET,
// relative to what it contributed to the funding output: its payout minus
// its collateral. Offer and accept payout scripts are compared by
// byte-equality against the party's own payout script to determine which
// output is "ours", since both outputs may be present.
func ComputePnL(isOfferParty bool, offerCollateral, acceptCollateral btcutil.Amount, cet *wire.MsgTx,
	offerPayoutScript, acceptPayoutScript []byte) int64 {

	var ownPayout btcutil.Amount
	for _, out := range cet.TxOut {
		if isOfferParty && scriptEqual(out.PkScript, offerPayoutScript) {
			ownPayout += btcutil.Amount(out.Value)
		}
		if !isOfferParty && scriptEqual(out.PkScript, acceptPayoutScript) {
			ownPayout += btcutil.Amount(out.Value)
		}
	}

	var ownCollateral btcutil.Amount
	if isOfferParty {
		ownCollateral = offerCollateral
	} else {
		ownCollateral = acceptCollateral
	}

	return int64(ownPayout) - int64(ownCollateral)
}

func scriptEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package dlcmanager

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/contractupdater"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/lifecycle"
)

// handleClose completes a counterparty-proposed cooperative close (a
// splice out of the contract, spec §4.D "Cooperative close"): it verifies
// and re-signs the close transaction, broadcasts it, and closes the
// contract out immediately — the two funding signatures already settle
// the dispute, confirmation only matters for wallet accounting.
func (m *Manager) handleClose(ctx context.Context, msg *dlcwire.Close) error {
	existing, err := m.cfg.Storage.GetContract(ctx, msg.ContractID)
	if err != nil {
		return dlcerr.Wrap(dlcerr.InvalidState, err, "close references an unknown contract")
	}
	if existing.Stage != contract.StageSigned && existing.Stage != contract.StageConfirmed {
		return dlcerr.New(dlcerr.InvalidState, "contract %x is not open for cooperative close", msg.ContractID)
	}
	signed := existing.Signed

	localPriv, localPub, err := m.deriveSigner(&signed.AcceptedContract.OfferedContract)
	if err != nil {
		return err
	}

	closeTx, err := contractupdater.CompleteCooperativeClose(signed, msg, localPriv, localPub)
	if err != nil {
		return err
	}
	if err := m.cfg.Blockchain.SendTransaction(ctx, closeTx); err != nil {
		return dlcerr.Wrap(dlcerr.BlockchainError, err, "unable to broadcast cooperative close transaction")
	}

	if err := lifecycle.Validate(existing.Stage, lifecycle.EventSpliceConfirmed, contract.StageClosed); err != nil {
		return err
	}
	closed := &contract.ClosedContract{
		ContractID:          signed.AcceptedContract.ContractID,
		TemporaryContractID: signed.AcceptedContract.OfferedContract.ID,
		CounterPartyID:      signed.AcceptedContract.OfferedContract.CounterParty,
		FundingTxid:         signed.AcceptedContract.DlcTransactions.Fund.TxHash(),
		PnLSats: contract.ComputePnL(signed.AcceptedContract.OfferedContract.IsOfferParty,
			signed.AcceptedContract.OfferedContract.OfferParams.CollateralAmount,
			signed.AcceptedContract.AcceptParams.CollateralAmount, closeTx,
			signed.AcceptedContract.OfferedContract.OfferParams.PayoutScript,
			signed.AcceptedContract.AcceptParams.PayoutScript),
	}
	closedC := &contract.Contract{Stage: contract.StageClosed, Closed: closed}
	if err := m.persist(ctx, closedC, nil); err != nil {
		return dlcerr.Wrap(dlcerr.StorageError, err, "unable to persist cooperatively closed contract")
	}
	log.Infof("contract %x cooperatively closed, pnl=%d sats", closed.ContractID, closed.PnLSats)
	return nil
}

// CloseConfirmedContract manually settles a Confirmed contract with a
// caller-supplied attestation set, bypassing the reconciliation loop's own
// oracle polling — spec §4.F's manual-close escape hatch, e.g. for an
// operator reacting to an attestation observed out of band. now must be
// at or past the contract-info's maturity.
func (m *Manager) CloseConfirmedContract(ctx context.Context, id contract.ID, attestations []contract.OracleAttestation) error {
	existing, err := m.cfg.Storage.GetContract(ctx, id)
	if err != nil {
		return dlcerr.Wrap(dlcerr.InvalidState, err, "unknown contract")
	}
	if existing.Stage != contract.StageConfirmed {
		return dlcerr.New(dlcerr.InvalidState, "contract %x is not confirmed", id)
	}
	signed := existing.Signed
	offered := &signed.AcceptedContract.OfferedContract

	now := m.now()
	if uint64(offered.CetLockTime) > now {
		return dlcerr.New(dlcerr.InvalidState, "contract %x has not yet matured", id)
	}

	localPriv, localPub, err := m.deriveSigner(offered)
	if err != nil {
		return err
	}

	for idx := range offered.ContractInfo {
		cet, err := contractupdater.GetSignedCET(signed, idx, attestations, localPriv, localPub)
		if err != nil {
			continue
		}
		if err := m.cfg.Blockchain.SendTransaction(ctx, cet); err != nil {
			return dlcerr.Wrap(dlcerr.BlockchainError, err, "unable to broadcast cet")
		}
		if err := lifecycle.Validate(contract.StageConfirmed, lifecycle.EventCetBroadcast, contract.StagePreClosed); err != nil {
			return err
		}
		preClosed := &contract.Contract{
			Stage: contract.StagePreClosed,
			PreClosed: &contract.PreClosedContract{
				SignedContract: *signed,
				Attestations:   attestations,
				SignedCet:      cet,
			},
		}
		return m.persist(ctx, preClosed, nil)
	}

	return dlcerr.New(dlcerr.InvalidParameters, "supplied attestations do not satisfy any contract info's threshold")
}

// OnCounterpartyClose records a transaction the reconciliation loop
// observed spending the funding output that this manager did not itself
// broadcast: the counterparty's refund, or its CET either still below
// confirmation depth or already at/above it when first observed. Spec
// §4.F "observing the counterparty's close".
func (m *Manager) OnCounterpartyClose(ctx context.Context, signed *contract.SignedContract,
	closingTx *wire.MsgTx, confirmations uint32) error {

	accepted := &signed.AcceptedContract
	fundOutpoint := wire.OutPoint{
		Hash:  accepted.DlcTransactions.Fund.TxHash(),
		Index: uint32(accepted.DlcTransactions.FundOutputIndex),
	}
	if len(closingTx.TxIn) == 0 || closingTx.TxIn[0].PreviousOutPoint != fundOutpoint {
		return dlcerr.New(dlcerr.InvalidParameters, "closing transaction does not spend this contract's funding output")
	}

	closingTxid := closingTx.TxHash()
	if closingTxid == accepted.DlcTransactions.Refund.TxHash() {
		if err := lifecycle.Validate(contract.StageConfirmed, lifecycle.EventCounterpartyCloseRefund, contract.StageRefunded); err != nil {
			return err
		}
		refunded := &contract.Contract{Stage: contract.StageRefunded, Signed: signed}
		return m.persist(ctx, refunded, nil)
	}

	if confirmations >= m.cfg.ConfirmationDepth {
		if err := lifecycle.Validate(contract.StageConfirmed, lifecycle.EventCounterpartyCloseConfirmed, contract.StageClosed); err != nil {
			return err
		}
		closed := closedFromPreClosed(&contract.PreClosedContract{
			SignedContract: *signed,
			SignedCet:      closingTx,
		})
		closedC := &contract.Contract{Stage: contract.StageClosed, Closed: closed}
		return m.persist(ctx, closedC, nil)
	}

	if err := lifecycle.Validate(contract.StageConfirmed, lifecycle.EventCounterpartyClosePreConfirmed, contract.StagePreClosed); err != nil {
		return err
	}
	preClosed := &contract.Contract{
		Stage: contract.StagePreClosed,
		PreClosed: &contract.PreClosedContract{
			SignedContract: *signed,
			SignedCet:      closingTx,
		},
	}
	return m.persist(ctx, preClosed, nil)
}

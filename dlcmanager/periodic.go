package dlcmanager

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/sync/semaphore"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/contractupdater"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/lifecycle"
	"github.com/btcdlc/dlcd/txbuilder"
)

// PeriodicCheck is the reconciliation loop's single pass: it advances
// Signed contracts to Confirmed, attempts to close Confirmed contracts
// that have matured, and advances PreClosed contracts to Closed. Spec
// §4.F "Periodic Check" — callers are expected to invoke this on a
// regular cadence (a ticker in production, directly in tests).
func (m *Manager) PeriodicCheck(ctx context.Context) error {
	start := time.Now()
	defer func() { periodicCheckDuration.Observe(time.Since(start).Seconds()) }()

	if err := m.checkFundingConfirmations(ctx); err != nil {
		return err
	}
	if err := m.checkMaturedContracts(ctx); err != nil {
		return err
	}
	if err := m.checkCetConfirmations(ctx); err != nil {
		return err
	}
	m.reportStageGauges(ctx)
	return nil
}

// checkFundingConfirmations advances every Signed contract whose funding
// transaction has reached the configured confirmation depth to Confirmed.
func (m *Manager) checkFundingConfirmations(ctx context.Context) error {
	signedContracts, err := m.cfg.Storage.GetSignedContracts(ctx)
	if err != nil {
		return dlcerr.Wrap(dlcerr.StorageError, err, "unable to list signed contracts")
	}

	for _, c := range signedContracts {
		txid, ok := c.GetFundingTxid()
		if !ok {
			continue
		}
		confs, err := m.cfg.Blockchain.TransactionConfirmations(ctx, txid)
		if err != nil {
			log.Warnf("unable to query confirmations for funding tx %v: %v", txid, err)
			continue
		}
		if confs < m.cfg.ConfirmationDepth {
			continue
		}

		if err := lifecycle.Validate(contract.StageSigned, lifecycle.EventFundingConfirmed, contract.StageConfirmed); err != nil {
			log.Errorf("contract %x: %v", c.GetID(), err)
			continue
		}
		confirmed := &contract.Contract{Stage: contract.StageConfirmed, Signed: c.Signed}
		if err := m.persist(ctx, confirmed, nil); err != nil {
			log.Errorf("unable to persist confirmed contract %x: %v", c.GetID(), err)
			continue
		}
		log.Infof("contract %x funding confirmed at depth %d", c.GetID(), confs)

		m.closeSpliceSources(ctx, c.Signed)
	}
	return nil
}

// spliceSources returns every prior contract this signed contract's
// funding transaction references as a splice-in DlcInput, i.e. the
// contracts its confirmation closes out in favor of the new one. Spec
// §4.F "Splice integration".
func spliceSources(signed *contract.SignedContract) []txbuilder.DlcInput {
	offerDlc := signed.AcceptedContract.OfferedContract.OfferParams.DlcInputs
	acceptDlc := signed.AcceptedContract.AcceptParams.DlcInputs
	out := make([]txbuilder.DlcInput, 0, len(offerDlc)+len(acceptDlc))
	out = append(out, offerDlc...)
	out = append(out, acceptDlc...)
	return out
}

// closeSpliceSources transitions every contract new's funding transaction
// spliced in as a funding input to Closed, pairing the new contract's
// funding confirmation with the prior contract's closure in the same
// reconciliation pass. Grounded on the original_contract_id pairing
// ddk-manager's splice execution tests assert.
func (m *Manager) closeSpliceSources(ctx context.Context, newContract *contract.SignedContract) {
	for _, di := range spliceSources(newContract) {
		priorID := contract.ID(di.ContractID)
		prior, err := m.cfg.Storage.GetContract(ctx, priorID)
		if err != nil {
			log.Warnf("unable to load spliced-from contract %x: %v", priorID, err)
			continue
		}
		if prior.Signed == nil {
			log.Warnf("spliced-from contract %x is not in a signed or confirmed stage", priorID)
			continue
		}
		if err := lifecycle.Validate(prior.Stage, lifecycle.EventSpliceConfirmed, contract.StageClosed); err != nil {
			log.Errorf("spliced-from contract %x: %v", priorID, err)
			continue
		}
		closedC := &contract.Contract{Stage: contract.StageClosed, Closed: closedFromSplice(prior.Signed)}
		if err := m.persist(ctx, closedC, nil); err != nil {
			log.Errorf("unable to persist spliced-closed contract %x: %v", priorID, err)
			continue
		}
		log.Infof("contract %x closed by splice into new funding transaction", priorID)
	}
}

// closedFromSplice builds the compact terminal record for a contract
// closed out by a splice rather than a CET or refund: its collateral
// carries forward into the new contract's funding output instead of
// settling, so it records no attestations, no CET, and no PnL of its own.
func closedFromSplice(prior *contract.SignedContract) *contract.ClosedContract {
	accepted := prior.AcceptedContract
	offered := accepted.OfferedContract

	return &contract.ClosedContract{
		ContractID:          accepted.ContractID,
		TemporaryContractID: offered.ID,
		CounterPartyID:      offered.CounterParty,
		FundingTxid:         accepted.DlcTransactions.Fund.TxHash(),
	}
}

// checkMaturedContracts attempts to close every Confirmed contract whose
// earliest contract-info has matured: it fetches attestations from every
// oracle the contract-info names, bounded to at most
// MaxOracleFetchesInFlight concurrent fetches, and either broadcasts the
// winning CET or, once the refund locktime is reached with no valid
// attestation, the refund transaction. Spec §4.F "for each contract-info
// whose maturity has passed, fetch attestations ... broadcast the CET
// that matches, or the refund transaction past its locktime".
func (m *Manager) checkMaturedContracts(ctx context.Context) error {
	confirmedContracts, err := m.cfg.Storage.GetConfirmedContracts(ctx)
	if err != nil {
		return dlcerr.Wrap(dlcerr.StorageError, err, "unable to list confirmed contracts")
	}

	now := m.now()
	for _, c := range confirmedContracts {
		if c.Signed == nil {
			continue
		}
		closed, err := m.tryCloseContract(ctx, c.Signed, now)
		if err != nil {
			log.Warnf("contract %x: %v", c.GetID(), err)
			continue
		}
		if !closed && now >= c.GetRefundLockTime() {
			if err := m.broadcastRefund(ctx, c.Signed); err != nil {
				log.Warnf("contract %x: unable to broadcast refund: %v", c.GetID(), err)
			}
		}
	}
	return nil
}

// tryCloseContract walks signed's contract-infos in order, skipping any
// whose maturity (its CET locktime) has not yet passed, and broadcasts
// the first CET for which enough oracles attested. It reports whether a
// CET was broadcast.
func (m *Manager) tryCloseContract(ctx context.Context, signed *contract.SignedContract, now uint64) (bool, error) {
	offered := &signed.AcceptedContract.OfferedContract
	if uint64(offered.CetLockTime) > now {
		return false, nil
	}

	for idx := range offered.ContractInfo {
		ci := &offered.ContractInfo[idx]
		attestations := m.fetchAttestations(ctx, ci)
		if uint32(len(attestations)) < ci.Threshold {
			continue
		}

		localPriv, localPub, err := m.deriveSigner(offered)
		if err != nil {
			return false, err
		}

		cet, err := contractupdater.GetSignedCET(signed, idx, attestations, localPriv, localPub)
		if err != nil {
			continue
		}

		if err := m.cfg.Blockchain.SendTransaction(ctx, cet); err != nil {
			return false, dlcerr.Wrap(dlcerr.BlockchainError, err, "unable to broadcast cet")
		}

		if err := lifecycle.Validate(contract.StageConfirmed, lifecycle.EventCetBroadcast, contract.StagePreClosed); err != nil {
			return false, err
		}
		preClosed := &contract.Contract{
			Stage: contract.StagePreClosed,
			PreClosed: &contract.PreClosedContract{
				SignedContract: *signed,
				Attestations:   attestations,
				SignedCet:      cet,
			},
		}
		if err := m.persist(ctx, preClosed, nil); err != nil {
			return false, dlcerr.Wrap(dlcerr.StorageError, err, "unable to persist pre-closed contract")
		}
		log.Infof("contract %x broadcast cet for contract info %d", signed.AcceptedContract.ContractID, idx)
		return true, nil
	}
	return false, nil
}

// deriveSigner recomputes the local party's per-contract funding keypair,
// mirroring contractupdater's unexported contractSigner helper since the
// signer must be re-derived here too to produce a CET signature.
func (m *Manager) deriveSigner(offered *contract.OfferedContract) (priv *btcec.PrivateKey, pub *btcec.PublicKey, err error) {
	keyID, err := m.cfg.SignerProvider.DeriveSignerKeyID(offered.IsOfferParty, offered.ID)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to derive signer key id")
	}
	return m.cfg.SignerProvider.DeriveContractSigner(keyID)
}

// fetchAttestations fetches and validates the attestation for every
// announcement ci names, skipping oracles this manager has no
// implementation for and any fetch that errors or fails validation.
// Fetches run concurrently bounded by MaxOracleFetchesInFlight, spec
// §4.F "a bounded in-flight set".
func (m *Manager) fetchAttestations(ctx context.Context, ci *contract.ContractInfo) []contract.OracleAttestation {
	sem := semaphore.NewWeighted(m.cfg.MaxOracleFetchesInFlight)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []contract.OracleAttestation
	)

	for i := range ci.Announcements {
		ann := &ci.Announcements[i]
		oracle, ok := m.oracleFor(ann.PublicKey)
		if !ok {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ann *contract.OracleAnnouncement, oracle external.Oracle) {
			defer wg.Done()
			defer sem.Release(1)

			att, err := oracle.GetAttestation(ctx, ann.EventID)
			if err != nil {
				oracleFetchFailures.WithLabelValues(ann.EventID).Inc()
				return
			}
			if err := att.Validate(ann); err != nil {
				log.Warnf("attestation for event %s failed validation: %v", ann.EventID, err)
				oracleFetchFailures.WithLabelValues(ann.EventID).Inc()
				return
			}

			mu.Lock()
			results = append(results, *att)
			mu.Unlock()
		}(ann, oracle)
	}
	wg.Wait()
	return results
}

// broadcastRefund builds and sends the refund transaction, and persists
// the contract as Refunded. Spec §4.F "once the refund locktime has
// passed with no valid attestation, broadcast the refund transaction".
func (m *Manager) broadcastRefund(ctx context.Context, signed *contract.SignedContract) error {
	refundTx, err := contractupdater.GetSignedRefund(signed)
	if err != nil {
		return dlcerr.Wrap(dlcerr.InvalidState, err, "unable to build refund transaction")
	}
	if err := m.cfg.Blockchain.SendTransaction(ctx, refundTx); err != nil {
		return dlcerr.Wrap(dlcerr.BlockchainError, err, "unable to broadcast refund transaction")
	}

	if err := lifecycle.Validate(contract.StageConfirmed, lifecycle.EventRefundBroadcast, contract.StageRefunded); err != nil {
		return err
	}
	refunded := &contract.Contract{Stage: contract.StageRefunded, Signed: signed}
	if err := m.persist(ctx, refunded, nil); err != nil {
		return dlcerr.Wrap(dlcerr.StorageError, err, "unable to persist refunded contract")
	}
	log.Infof("contract %x refund broadcast", signed.AcceptedContract.ContractID)
	return nil
}

// checkCetConfirmations advances every PreClosed contract whose
// broadcast CET has reached the configured confirmation depth to Closed,
// collapsing it to the compact ClosedContract record.
func (m *Manager) checkCetConfirmations(ctx context.Context) error {
	preClosedContracts, err := m.cfg.Storage.GetPreClosedContracts(ctx)
	if err != nil {
		return dlcerr.Wrap(dlcerr.StorageError, err, "unable to list pre-closed contracts")
	}

	for _, c := range preClosedContracts {
		pc := c.PreClosed
		if pc == nil || pc.SignedCet == nil {
			continue
		}
		confs, err := m.cfg.Blockchain.TransactionConfirmations(ctx, pc.SignedCet.TxHash())
		if err != nil {
			log.Warnf("unable to query cet confirmations for contract %x: %v", c.GetID(), err)
			continue
		}
		if confs < m.cfg.ConfirmationDepth {
			continue
		}

		if err := lifecycle.Validate(contract.StagePreClosed, lifecycle.EventCetConfirmed, contract.StageClosed); err != nil {
			log.Errorf("contract %x: %v", c.GetID(), err)
			continue
		}
		closed := closedFromPreClosed(pc)
		closedC := &contract.Contract{Stage: contract.StageClosed, Closed: closed}
		if err := m.persist(ctx, closedC, nil); err != nil {
			log.Errorf("unable to persist closed contract %x: %v", c.GetID(), err)
			continue
		}
		log.Infof("contract %x closed, pnl=%d sats", closed.ContractID, closed.PnLSats)
	}
	return nil
}

// closedFromPreClosed builds the compact terminal record spec §3 "Closed"
// describes from a confirmed PreClosedContract.
func closedFromPreClosed(pc *contract.PreClosedContract) *contract.ClosedContract {
	accepted := pc.SignedContract.AcceptedContract
	offered := accepted.OfferedContract

	pnl := contract.ComputePnL(offered.IsOfferParty, offered.OfferParams.CollateralAmount,
		accepted.AcceptParams.CollateralAmount, pc.SignedCet,
		offered.OfferParams.PayoutScript, accepted.AcceptParams.PayoutScript)

	return &contract.ClosedContract{
		Attestations:        pc.Attestations,
		SignedCet:           pc.SignedCet,
		ContractID:          accepted.ContractID,
		TemporaryContractID: offered.ID,
		CounterPartyID:      offered.CounterParty,
		FundingTxid:         accepted.DlcTransactions.Fund.TxHash(),
		PnLSats:             pnl,
	}
}

// reportStageGauges refreshes the per-stage contract count gauge from a
// fresh storage scan, best-effort: a failure here never fails the check.
func (m *Manager) reportStageGauges(ctx context.Context) {
	offers, err := m.cfg.Storage.GetContractOffers(ctx)
	if err == nil {
		contractsByStage.WithLabelValues("offered").Set(float64(len(offers)))
	}
	signedContracts, err := m.cfg.Storage.GetSignedContracts(ctx)
	if err == nil {
		contractsByStage.WithLabelValues("signed").Set(float64(len(signedContracts)))
	}
	confirmedContracts, err := m.cfg.Storage.GetConfirmedContracts(ctx)
	if err == nil {
		contractsByStage.WithLabelValues("confirmed").Set(float64(len(confirmedContracts)))
	}
	preClosedContracts, err := m.cfg.Storage.GetPreClosedContracts(ctx)
	if err == nil {
		contractsByStage.WithLabelValues("pre_closed").Set(float64(len(preClosedContracts)))
	}
}

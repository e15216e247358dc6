package dlcmanager

import (
	"context"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/contractupdater"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/lifecycle"
)

// OnDlcMessage dispatches an incoming protocol message by its concrete
// type, the single entry point spec §4.F describes. counterParty is the
// sending peer's node public key, used both to stamp a freshly offered
// contract and, for Accept, to confirm the reply came from the party the
// offer was actually sent to. The returned message, when non-nil, is the
// reply the caller must transport back to counterParty (only Accept
// produces one, per spec §4.F "returns Sign").
func (m *Manager) OnDlcMessage(ctx context.Context, msg dlcwire.Message, counterParty [33]byte) (dlcwire.Message, error) {
	switch tm := msg.(type) {
	case *dlcwire.Offer:
		err := m.handleOffer(ctx, tm, counterParty)
		recordMessage("offer", err)
		return nil, err
	case *dlcwire.Accept:
		reply, err := m.handleAccept(ctx, tm, counterParty)
		recordMessage("accept", err)
		return reply, err
	case *dlcwire.Sign:
		err := m.handleSign(ctx, tm)
		recordMessage("sign", err)
		return nil, err
	case *dlcwire.Close:
		err := m.handleClose(ctx, tm)
		recordMessage("close", err)
		return nil, err
	default:
		return nil, dlcerr.New(dlcerr.InvalidParameters, "unsupported dlc message type %T", msg)
	}
}

func recordMessage(msgType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	messagesProcessed.WithLabelValues(msgType, outcome).Inc()
}

// handleOffer validates and persists a freshly arrived Offer as Offered,
// rejecting a duplicate temporary id. Spec §4.F "Offer: validates, rejects
// duplicate ids, persists as Offered."
func (m *Manager) handleOffer(ctx context.Context, msg *dlcwire.Offer, counterParty [33]byte) error {
	offered, err := contractupdater.OfferedContractFromWire(msg, counterParty)
	if err != nil {
		return err
	}

	if _, err := m.cfg.Storage.GetContract(ctx, offered.ID); err == nil {
		return dlcerr.New(dlcerr.InvalidState, "offer %x duplicates an existing contract id", offered.ID)
	}

	if err := m.cfg.Storage.CreateContract(ctx, offered); err != nil {
		return err
	}
	log.Debugf("persisted offer %x from %x", offered.ID, counterParty)
	return nil
}

// handleAccept loads the Offered contract the Accept message answers,
// verifies it, and persists the resulting SignedContract under its newly
// computed final id; on verification failure it persists a FailedAccept
// terminal record instead. Spec §4.F "Accept: loads Offered by
// temporary_contract_id ... runs verify_accepted_and_sign, persists
// Signed, returns Sign; on error persists FailedAccept".
func (m *Manager) handleAccept(ctx context.Context, msg *dlcwire.Accept, counterParty [33]byte) (*dlcwire.Sign, error) {
	existing, err := m.cfg.Storage.GetContract(ctx, msg.TemporaryContractID)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.InvalidState, err, "accept references an unknown offer")
	}
	if existing.Stage != contract.StageOffered {
		return nil, dlcerr.New(dlcerr.InvalidState, "contract %x is not awaiting accept", msg.TemporaryContractID)
	}
	offered := existing.Offered
	if offered.CounterParty != counterParty {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "accept arrived from an unexpected peer")
	}

	signed, signMsg, err := contractupdater.VerifyAcceptedAndSign(
		ctx, offered, msg, m.cfg.Wallet, m.cfg.Storage, m.cfg.SignerProvider)
	if err != nil {
		failed := &contract.FailedAcceptContract{
			OfferedContract: *offered,
			ErrorMessage:    err.Error(),
		}
		if verr := lifecycle.Validate(contract.StageOffered, lifecycle.EventAcceptVerifyFailed, contract.StageFailedAccept); verr != nil {
			return nil, verr
		}
		failedC := &contract.Contract{Stage: contract.StageFailedAccept, FailedAccept: failed}
		if perr := m.persist(ctx, failedC, nil); perr != nil {
			return nil, perr
		}
		return nil, err
	}

	if verr := lifecycle.Validate(contract.StageOffered, lifecycle.EventAcceptVerified, contract.StageSigned); verr != nil {
		return nil, verr
	}
	signedC := &contract.Contract{Stage: contract.StageSigned, Signed: signed}
	if err := m.persist(ctx, signedC, &offered.ID); err != nil {
		return nil, err
	}
	log.Debugf("accepted and signed contract %x", signed.AcceptedContract.ContractID)
	return signMsg, nil
}

// handleSign loads the Accepted contract a Sign message completes,
// verifies it, broadcasts the now fully-signed funding transaction, and
// persists the resulting SignedContract; on verification failure it
// persists a FailedSign terminal record. Spec §4.F "Sign: loads Accepted
// by contract_id ... on error persists FailedSign".
func (m *Manager) handleSign(ctx context.Context, msg *dlcwire.Sign) error {
	existing, err := m.cfg.Storage.GetContract(ctx, msg.ContractID)
	if err != nil {
		return dlcerr.Wrap(dlcerr.InvalidState, err, "sign references an unknown contract")
	}
	if existing.Stage != contract.StageAccepted {
		return dlcerr.New(dlcerr.InvalidState, "contract %x is not awaiting sign", msg.ContractID)
	}
	accepted := existing.Accepted

	signed, fundTx, err := contractupdater.VerifySigned(
		ctx, accepted, msg, m.cfg.Wallet, m.cfg.Storage, m.cfg.SignerProvider)
	if err != nil {
		failed := &contract.FailedSignContract{
			AcceptedContract: *accepted,
			ErrorMessage:     err.Error(),
		}
		if verr := lifecycle.Validate(contract.StageAccepted, lifecycle.EventSignVerifyFailed, contract.StageFailedSign); verr != nil {
			return verr
		}
		failedC := &contract.Contract{Stage: contract.StageFailedSign, FailedSign: failed}
		if perr := m.persist(ctx, failedC, nil); perr != nil {
			return perr
		}
		return err
	}

	if err := m.cfg.Blockchain.SendTransaction(ctx, fundTx); err != nil {
		return dlcerr.Wrap(dlcerr.BlockchainError, err, "unable to broadcast funding transaction")
	}

	if verr := lifecycle.Validate(contract.StageAccepted, lifecycle.EventSignVerified, contract.StageSigned); verr != nil {
		return verr
	}
	signedC := &contract.Contract{Stage: contract.StageSigned, Signed: signed}
	if err := m.persist(ctx, signedC, nil); err != nil {
		return err
	}
	log.Debugf("signed and broadcast funding tx for contract %x", accepted.ContractID)
	return nil
}

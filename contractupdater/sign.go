package contractupdater

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/txbuilder"
)

// signOwnFundingInputs signs every input belonging to localParams: a
// complete witness for plain UTXOs via the wallet's PSBT signer, or a
// single-element signature share for a spliced DLC input whose full
// witness the counterparty will later complete. Returned in the funding
// transaction's input order, grounded on the funding-input loop of
// verify_accepted_and_sign_contract_internal in contract_updater.rs.
func signOwnFundingInputs(ctx context.Context, wallet external.Wallet, storage external.Storage,
	signerProvider external.ContractSignerProvider, dlcTxs *txbuilder.DlcTransactions,
	localParams, counterpartyParams *txbuilder.PartyParams) ([]wire.TxWitness, error) {

	p, err := populatePSBT(dlcTxs.Fund, localParams, counterpartyParams)
	if err != nil {
		return nil, err
	}

	plain := make(map[wire.OutPoint]bool, len(localParams.FundingInputs))
	for _, fi := range localParams.FundingInputs {
		plain[fi.Outpoint] = true
	}
	dlcByOutpoint := make(map[wire.OutPoint]txbuilder.DlcInput, len(localParams.DlcInputs))
	for _, di := range localParams.DlcInputs {
		dlcByOutpoint[di.Outpoint] = di
	}

	witnesses := make([]wire.TxWitness, 0, len(localParams.FundingInputs)+len(localParams.DlcInputs))
	for i, txIn := range dlcTxs.Fund.TxIn {
		switch {
		case plain[txIn.PreviousOutPoint]:
			if err := wallet.SignPSBTInput(ctx, p, i); err != nil {
				return nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to sign funding input %d", i)
			}
			w, err := decodeFinalWitness(p.Inputs[i].FinalScriptWitness)
			if err != nil {
				return nil, err
			}
			witnesses = append(witnesses, w)

		default:
			di, ok := dlcByOutpoint[txIn.PreviousOutPoint]
			if !ok {
				continue // belongs to the counterparty, not ours to sign yet
			}
			sigBytes, err := signDlcInputShare(ctx, storage, signerProvider, di, dlcTxs.Fund, i)
			if err != nil {
				return nil, err
			}
			witnesses = append(witnesses, wire.TxWitness{sigBytes})
		}
	}
	return witnesses, nil
}

// VerifyAcceptedAndSign is run by the offering party once an Accept
// message arrives: it verifies the acceptor's refund and CET adaptor
// signatures, generates the offerer's own adaptor signatures and refund
// signature, and signs the offerer's own funding inputs, returning the
// SignedContract and the Sign message to send back. Grounded on
// verify_accepted_and_sign_contract_internal in contract_updater.rs.
func VerifyAcceptedAndSign(ctx context.Context, offered *contract.OfferedContract, msg *dlcwire.Accept,
	wallet external.Wallet, storage external.Storage, signerProvider external.ContractSignerProvider,
) (*contract.SignedContract, *dlcwire.Sign, error) {

	accepted, err := acceptedFromWire(offered, msg)
	if err != nil {
		return nil, nil, err
	}

	refundHash, err := refundSigHash(&accepted.DlcTransactions, offered.TotalCollateral)
	if err != nil {
		return nil, nil, err
	}
	if err := adaptor.VerifyPlain(&accepted.RefundSignature, accepted.AcceptParams.FundingPubKey, refundHash); err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "accept refund signature failed verification")
	}

	infos, err := verifyAllContractInfos(offered.ContractInfo, accepted.AcceptParams.FundingPubKey,
		&accepted.DlcTransactions, accepted.AdaptorSignatures)
	if err != nil {
		return nil, nil, err
	}
	accepted.AdaptorInfos = infos

	offerPriv, _, err := contractSigner(signerProvider, true, offered.ID)
	if err != nil {
		return nil, nil, err
	}

	ownAdaptorSigs, _, err := signAllContractInfos(offered.ContractInfo, offerPriv, &accepted.DlcTransactions)
	if err != nil {
		return nil, nil, err
	}

	ownRefundSig, err := adaptor.SignPlain(offerPriv, refundHash)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to sign refund transaction")
	}

	fundingSigs, err := signOwnFundingInputs(ctx, wallet, storage, signerProvider, &accepted.DlcTransactions,
		&offered.OfferParams, &accepted.AcceptParams)
	if err != nil {
		return nil, nil, err
	}

	signed := &contract.SignedContract{
		AcceptedContract:  *accepted,
		AdaptorSignatures: ownAdaptorSigs,
		RefundSignature:   *ownRefundSig,
		FundingSignatures: fundingSigs,
	}

	signMsg := &dlcwire.Sign{
		ContractID:           accepted.ContractID,
		CetAdaptorSignatures: ownAdaptorSigs,
		RefundSignature:      *ownRefundSig,
		FundingSignatures:    fundingSigs,
	}

	log.Debugf("signed contract %x", accepted.ContractID)

	return signed, signMsg, nil
}

// VerifySigned is run by the accepting party once the offerer's Sign
// message arrives: it verifies the offerer's refund and CET adaptor
// signatures against the AcceptedContract it already holds, signs its
// own funding inputs, combines the offerer's transmitted witnesses with
// its own for any spliced DLC inputs, and extracts the fully signed
// funding transaction. Grounded on verify_signed_contract_internal in
// contract_updater.rs.
func VerifySigned(ctx context.Context, accepted *contract.AcceptedContract, msg *dlcwire.Sign,
	wallet external.Wallet, storage external.Storage, signerProvider external.ContractSignerProvider,
) (*contract.SignedContract, *wire.MsgTx, error) {

	if msg.ContractID != accepted.ContractID {
		return nil, nil, dlcerr.New(dlcerr.InvalidParameters, "sign message references an unknown contract id")
	}

	offerParams := &accepted.OfferedContract.OfferParams

	refundHash, err := refundSigHash(&accepted.DlcTransactions, accepted.OfferedContract.TotalCollateral)
	if err != nil {
		return nil, nil, err
	}
	if err := adaptor.VerifyPlain(&msg.RefundSignature, offerParams.FundingPubKey, refundHash); err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "sign refund signature failed verification")
	}

	if _, err := verifyAllContractInfos(accepted.OfferedContract.ContractInfo, offerParams.FundingPubKey,
		&accepted.DlcTransactions, msg.CetAdaptorSignatures); err != nil {
		return nil, nil, err
	}

	fundTx := accepted.DlcTransactions.Fund.Copy()

	offerPlain := make(map[wire.OutPoint]bool, len(offerParams.FundingInputs))
	for _, fi := range offerParams.FundingInputs {
		offerPlain[fi.Outpoint] = true
	}
	offerDlc := make(map[wire.OutPoint]txbuilder.DlcInput, len(offerParams.DlcInputs))
	for _, di := range offerParams.DlcInputs {
		offerDlc[di.Outpoint] = di
	}

	p, err := populatePSBT(fundTx, offerParams, &accepted.AcceptParams)
	if err != nil {
		return nil, nil, err
	}

	offerIdx := 0
	for i, txIn := range fundTx.TxIn {
		di, isOfferDlc := offerDlc[txIn.PreviousOutPoint]

		switch {
		case offerPlain[txIn.PreviousOutPoint]:
			if offerIdx >= len(msg.FundingSignatures) {
				return nil, nil, dlcerr.New(dlcerr.InvalidParameters, "sign message is missing a funding signature")
			}
			fundTx.TxIn[i].Witness = msg.FundingSignatures[offerIdx]
			offerIdx++

		case isOfferDlc:
			if offerIdx >= len(msg.FundingSignatures) || len(msg.FundingSignatures[offerIdx]) != 1 {
				return nil, nil, dlcerr.New(dlcerr.InvalidParameters,
					"sign message is missing a spliced dlc input signature share")
			}
			offererShare := msg.FundingSignatures[offerIdx][0]
			offerIdx++

			ownShare, err := signDlcInputShare(ctx, storage, signerProvider, di, fundTx, i)
			if err != nil {
				return nil, nil, err
			}
			witness, err := combineDlcInputWitness(di, offererShare, ownShare)
			if err != nil {
				return nil, nil, err
			}
			fundTx.TxIn[i].Witness = witness

		default:
			// Accepting party's own plain input: sign it locally now.
			if err := wallet.SignPSBTInput(ctx, p, i); err != nil {
				return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to sign funding input %d", i)
			}
			w, err := decodeFinalWitness(p.Inputs[i].FinalScriptWitness)
			if err != nil {
				return nil, nil, err
			}
			fundTx.TxIn[i].Witness = w
		}
	}

	signed := &contract.SignedContract{
		AcceptedContract:  *accepted,
		AdaptorSignatures: msg.CetAdaptorSignatures,
		RefundSignature:   msg.RefundSignature,
		FundingSignatures: msg.FundingSignatures,
	}

	log.Debugf("verified sign message for contract %x, funding transaction %s", accepted.ContractID, fundTx.TxHash())

	return signed, fundTx, nil
}

package contractupdater

import (
	"context"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/txbuilder"
)

// AcceptContract builds the accepting party's contribution: it selects
// funding UTXOs for its share of the collateral, rebuilds the full
// transaction set, generates one adaptor signature per CET (encrypted to
// each outcome's oracle point) and a plain refund signature, and returns
// both the AcceptedContract and the Accept message to send back to the
// offerer. Grounded on accept_contract/accept_contract_internal in
// contract_updater.rs.
func AcceptContract(ctx context.Context, offered *contract.OfferedContract, wallet external.Wallet,
	signerProvider external.ContractSignerProvider) (*contract.AcceptedContract, *dlcwire.Accept, error) {

	acceptCollateral := offered.TotalCollateral - offered.OfferParams.CollateralAmount

	acceptPriv, acceptPub, err := contractSigner(signerProvider, false, offered.ID)
	if err != nil {
		return nil, nil, err
	}

	fundingInputs, err := wallet.UTXOsForAmount(ctx, acceptCollateral, offered.FeeRatePerVByte, true)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to select funding utxos")
	}
	changeScript, err := wallet.NewChangeAddress(ctx)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to derive change address")
	}
	payoutScript, err := wallet.NewAddress(ctx)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to derive payout address")
	}

	changeSerialID, err := randSerialID()
	if err != nil {
		return nil, nil, err
	}
	payoutSerialID, err := randSerialID()
	if err != nil {
		return nil, nil, err
	}

	acceptParams := txbuilder.PartyParams{
		FundingPubKey:    acceptPub,
		ChangeScript:     changeScript,
		PayoutScript:     payoutScript,
		ChangeSerialID:   changeSerialID,
		PayoutSerialID:   payoutSerialID,
		FundingInputs:    fundingInputs,
		CollateralAmount: acceptCollateral,
	}
	acceptParams.InputAmount = acceptParams.TotalFundingInputAmount()

	accepted := &contract.AcceptedContract{
		OfferedContract: *offered,
		AcceptParams:    acceptParams,
	}
	if err := accepted.Validate(); err != nil {
		return nil, nil, err
	}

	dlcTxs, err := buildTransactions(offered, &acceptParams)
	if err != nil {
		return nil, nil, err
	}
	accepted.DlcTransactions = *dlcTxs
	accepted.ContractID = contract.FinalID(dlcTxs.Fund.TxHash(), uint32(dlcTxs.FundOutputIndex), offered.ID)

	adaptorSigs, adaptorInfos, err := signAllContractInfos(offered.ContractInfo, acceptPriv, dlcTxs)
	if err != nil {
		return nil, nil, err
	}
	accepted.AdaptorSignatures = adaptorSigs
	accepted.AdaptorInfos = adaptorInfos

	sigHash, err := refundSigHash(dlcTxs, offered.TotalCollateral)
	if err != nil {
		return nil, nil, err
	}
	refundSig, err := adaptor.SignPlain(acceptPriv, sigHash)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to sign refund transaction")
	}
	accepted.RefundSignature = *refundSig

	msg := toWireAccept(accepted)

	log.Debugf("accepted contract %x: collateral=%d", accepted.ContractID, acceptCollateral)

	return accepted, msg, nil
}

// acceptedFromWire reconstructs an AcceptedContract on the offerer's side
// from an incoming Accept message, rebuilding the transaction set
// independently so it can be compared against the acceptor's claims.
func acceptedFromWire(offered *contract.OfferedContract, msg *dlcwire.Accept) (*contract.AcceptedContract, error) {
	if msg.TemporaryContractID != offered.ID {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "accept message references an unknown temporary contract id")
	}

	acceptParams := txbuilder.PartyParams{
		FundingPubKey:    msg.FundingPubKey,
		ChangeScript:     msg.ChangeScript,
		PayoutScript:     msg.PayoutScript,
		ChangeSerialID:   msg.ChangeSerialID,
		PayoutSerialID:   msg.PayoutSerialID,
		FundingInputs:    msg.FundingInputs,
		CollateralAmount: msg.AcceptCollateral,
	}
	acceptParams.InputAmount = acceptParams.TotalFundingInputAmount()

	accepted := &contract.AcceptedContract{
		OfferedContract:   *offered,
		AcceptParams:      acceptParams,
		AdaptorSignatures: msg.CetAdaptorSignatures,
		RefundSignature:   msg.RefundSignature,
	}
	if err := accepted.Validate(); err != nil {
		return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "accept message failed validation")
	}

	dlcTxs, err := buildTransactions(offered, &acceptParams)
	if err != nil {
		return nil, err
	}
	accepted.DlcTransactions = *dlcTxs
	accepted.ContractID = contract.FinalID(dlcTxs.Fund.TxHash(), uint32(dlcTxs.FundOutputIndex), offered.ID)

	return accepted, nil
}

func toWireAccept(accepted *contract.AcceptedContract) *dlcwire.Accept {
	return &dlcwire.Accept{
		TemporaryContractID: accepted.OfferedContract.ID,
		AcceptCollateral:    accepted.AcceptParams.CollateralAmount,
		FundingPubKey:       accepted.AcceptParams.FundingPubKey,
		ChangeScript:        accepted.AcceptParams.ChangeScript,
		PayoutScript:        accepted.AcceptParams.PayoutScript,
		FundingInputs:       accepted.AcceptParams.FundingInputs,
		ChangeSerialID:      accepted.AcceptParams.ChangeSerialID,
		PayoutSerialID:      accepted.AcceptParams.PayoutSerialID,
		CetAdaptorSignatures: accepted.AdaptorSignatures,
		RefundSignature:      accepted.RefundSignature,
	}
}

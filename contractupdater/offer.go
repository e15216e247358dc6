package contractupdater

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/txbuilder"
)

// OfferInput bundles the terms the local party proposes, per spec §4.C
// "Contract Info" and §6 "Offer".
type OfferInput struct {
	ContractInfo    []contract.ContractInfo
	OfferCollateral btcutil.Amount
	TotalCollateral btcutil.Amount
	FeeRatePerVByte int64
	CetLockTime     uint32
	RefundLockTime  uint32
	DlcInputs       []txbuilder.DlcInput
	CounterParty    [33]byte
	ChainHash       chainhash.Hash
}

// OfferContract selects funding UTXOs for the local party's collateral,
// derives a fresh per-contract signing key, and assembles an
// OfferedContract plus the Offer message to send the counterparty.
// Grounded on offer_contract in contract_updater.rs.
func OfferContract(ctx context.Context, wallet external.Wallet, signerProvider external.ContractSignerProvider,
	in OfferInput) (*contract.OfferedContract, *dlcwire.Offer, error) {

	if len(in.ContractInfo) == 0 {
		return nil, nil, dlcerr.New(dlcerr.InvalidParameters, "offer has no contract info")
	}

	temporaryID, err := contract.NewTemporaryID()
	if err != nil {
		return nil, nil, err
	}

	_, pubKey, err := contractSigner(signerProvider, true, temporaryID)
	if err != nil {
		return nil, nil, err
	}

	fundingInputs, err := wallet.UTXOsForAmount(ctx, in.OfferCollateral, in.FeeRatePerVByte, true)
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
	fundOutputSerialID, err := randSerialID()
	if err != nil {
		return nil, nil, err
	}

	offerParams := txbuilder.PartyParams{
		FundingPubKey:    pubKey,
		ChangeScript:     changeScript,
		PayoutScript:     payoutScript,
		ChangeSerialID:   changeSerialID,
		PayoutSerialID:   payoutSerialID,
		FundingInputs:    fundingInputs,
		DlcInputs:        in.DlcInputs,
		CollateralAmount: in.OfferCollateral,
	}
	offerParams.InputAmount = offerParams.TotalFundingInputAmount() + offerParams.TotalDlcInputAmount()

	offered := &contract.OfferedContract{
		ID:                 temporaryID,
		IsOfferParty:       true,
		CounterParty:       in.CounterParty,
		ContractInfo:       in.ContractInfo,
		TotalCollateral:    in.TotalCollateral,
		OfferParams:        offerParams,
		FundOutputSerialID: fundOutputSerialID,
		FeeRatePerVByte:    in.FeeRatePerVByte,
		CetLockTime:        in.CetLockTime,
		RefundLockTime:     in.RefundLockTime,
	}
	if err := offered.Validate(); err != nil {
		return nil, nil, err
	}

	msg := &dlcwire.Offer{
		ProtocolVersion:     ProtocolVersion,
		ChainHash:           in.ChainHash,
		TemporaryContractID: offered.ID,
		ContractInfo:        offered.ContractInfo,
		FundingPubKey:       offerParams.FundingPubKey,
		ChangeScript:        offerParams.ChangeScript,
		PayoutScript:        offerParams.PayoutScript,
		OfferCollateral:     offerParams.CollateralAmount,
		FundingInputs:       offerParams.FundingInputs,
		DlcInputs:           offerParams.DlcInputs,
		ChangeSerialID:      offerParams.ChangeSerialID,
		PayoutSerialID:      offerParams.PayoutSerialID,
		FundOutputSerialID:  offered.FundOutputSerialID,
		FeeRatePerVByte:     offered.FeeRatePerVByte,
		CetLockTime:         offered.CetLockTime,
		RefundLockTime:      offered.RefundLockTime,
	}

	log.Debugf("offered contract %x: collateral=%d/%d", offered.ID, offerParams.CollateralAmount, offered.TotalCollateral)

	return offered, msg, nil
}

// OfferedContractFromWire rebuilds an OfferedContract on the receiving
// side from an incoming Offer message, ready to be inspected and either
// accepted (AcceptContract) or rejected.
func OfferedContractFromWire(msg *dlcwire.Offer, counterParty [33]byte) (*contract.OfferedContract, error) {
	if len(msg.ContractInfo) == 0 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "offer has no contract info")
	}

	var totalCollateral btcutil.Amount
	if len(msg.ContractInfo) > 0 {
		totalCollateral = msg.ContractInfo[0].TotalCollateral
	}

	offerParams := txbuilder.PartyParams{
		FundingPubKey:    msg.FundingPubKey,
		ChangeScript:     msg.ChangeScript,
		PayoutScript:     msg.PayoutScript,
		ChangeSerialID:   msg.ChangeSerialID,
		PayoutSerialID:   msg.PayoutSerialID,
		FundingInputs:    msg.FundingInputs,
		DlcInputs:        msg.DlcInputs,
		CollateralAmount: msg.OfferCollateral,
	}
	offerParams.InputAmount = offerParams.TotalFundingInputAmount() + offerParams.TotalDlcInputAmount()

	offered := &contract.OfferedContract{
		ID:                 msg.TemporaryContractID,
		IsOfferParty:       false,
		CounterParty:       counterParty,
		ContractInfo:       msg.ContractInfo,
		TotalCollateral:    totalCollateral,
		OfferParams:        offerParams,
		FundOutputSerialID: msg.FundOutputSerialID,
		FeeRatePerVByte:    msg.FeeRatePerVByte,
		CetLockTime:        msg.CetLockTime,
		RefundLockTime:     msg.RefundLockTime,
	}
	if err := offered.Validate(); err != nil {
		return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "received offer failed validation")
	}
	return offered, nil
}

package contractupdater

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/txbuilder"
)

// buildCloseTx assembles the cooperative-close transaction: one input
// spending the funding outpoint, paying acceptPayout to the acceptor and
// the remainder (after the proposer's chosen fee) to the offerer.
// Grounded on create_cooperative_close in contract_updater.rs.
func buildCloseTx(signed *contract.SignedContract, acceptPayout btcutil.Amount, feeRatePerVByte int64) (*wire.MsgTx, error) {
	accepted := &signed.AcceptedContract
	offered := &accepted.OfferedContract
	dlcTxs := &accepted.DlcTransactions

	fee := txbuilder.FundingFeeReserve(feeRatePerVByte, len(offered.OfferParams.PayoutScript), len(accepted.AcceptParams.PayoutScript))
	offerPayout := offered.TotalCollateral - acceptPayout - btcutil.Amount(fee)
	if offerPayout <= 0 || acceptPayout <= 0 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "cooperative close payout split leaves a non-positive output")
	}

	fundOutpoint := wire.OutPoint{
		Hash:  dlcTxs.Fund.TxHash(),
		Index: uint32(dlcTxs.FundOutputIndex),
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&fundOutpoint, nil, nil)
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(int64(offerPayout), offered.OfferParams.PayoutScript))
	tx.AddTxOut(wire.NewTxOut(int64(acceptPayout), accepted.AcceptParams.PayoutScript))

	return tx, nil
}

// CreateCooperativeClose proposes settling the funding output directly: it
// builds the close transaction, signs it with the local key, and returns
// the Close message to send the counterparty. Grounded on
// create_cooperative_close in contract_updater.rs.
func CreateCooperativeClose(signed *contract.SignedContract, localPriv *btcec.PrivateKey,
	acceptPayout btcutil.Amount, feeRatePerVByte int64) (*dlcwire.Close, error) {

	tx, err := buildCloseTx(signed, acceptPayout, feeRatePerVByte)
	if err != nil {
		return nil, err
	}

	sigHash, err := txbuilder.SigHash(tx, 0, signed.AcceptedContract.DlcTransactions.FundingRedeemScript,
		signed.AcceptedContract.OfferedContract.TotalCollateral)
	if err != nil {
		return nil, err
	}
	sig, err := adaptor.SignPlain(localPriv, sigHash)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to sign cooperative close")
	}

	return &dlcwire.Close{
		ContractID:      signed.AcceptedContract.ContractID,
		CloseSignature:  *sig,
		AcceptPayout:    acceptPayout,
		FeeRatePerVByte: feeRatePerVByte,
	}, nil
}

// CompleteCooperativeClose verifies a counterparty's close proposal,
// rebuilds the same close transaction independently, signs it with the
// local key, and assembles the final spendable transaction.
// proposerIsOfferParty identifies which of the two funding pubkeys signed
// msg.CloseSignature — always the opposite of the local party's own role,
// since Close only ever travels between the contract's two participants.
// Grounded on complete_cooperative_close in contract_updater.rs.
func CompleteCooperativeClose(signed *contract.SignedContract, msg *dlcwire.Close,
	localPriv *btcec.PrivateKey, localPub *btcec.PublicKey) (*wire.MsgTx, error) {

	accepted := &signed.AcceptedContract
	offered := &accepted.OfferedContract

	if msg.ContractID != accepted.ContractID {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "close message references an unknown contract id")
	}

	tx, err := buildCloseTx(signed, msg.AcceptPayout, msg.FeeRatePerVByte)
	if err != nil {
		return nil, err
	}

	sigHash, err := txbuilder.SigHash(tx, 0, accepted.DlcTransactions.FundingRedeemScript, offered.TotalCollateral)
	if err != nil {
		return nil, err
	}

	proposerIsOfferParty := !offered.IsOfferParty
	var proposerPub *btcec.PublicKey
	if proposerIsOfferParty {
		proposerPub = offered.OfferParams.FundingPubKey
	} else {
		proposerPub = accepted.AcceptParams.FundingPubKey
	}
	if err := adaptor.VerifyPlain(&msg.CloseSignature, proposerPub, sigHash); err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "cooperative close signature failed verification")
	}

	localSig, err := adaptor.SignPlain(localPriv, sigHash)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to sign cooperative close")
	}

	var offerPub, acceptPub *btcec.PublicKey
	var offerSig, acceptSig []byte
	if proposerIsOfferParty {
		offerPub, offerSig = offered.OfferParams.FundingPubKey, sigWithHashType(&msg.CloseSignature)
		acceptPub, acceptSig = localPub, sigWithHashType(localSig)
	} else {
		offerPub, offerSig = localPub, sigWithHashType(localSig)
		acceptPub, acceptSig = accepted.AcceptParams.FundingPubKey, sigWithHashType(&msg.CloseSignature)
	}

	tx.TxIn[0].Witness = txbuilder.SpendMultiSigWitness(accepted.DlcTransactions.FundingRedeemScript,
		offerPub, offerSig, acceptPub, acceptSig)

	log.Debugf("completed cooperative close for contract %x", accepted.ContractID)

	return tx, nil
}

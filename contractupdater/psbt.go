package contractupdater

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/txbuilder"
)

// populatePSBT wraps the unsigned funding transaction in a PSBT packet
// and fills in the witness utxo / redeem script of every input from
// parties' funding and (spliced) DLC inputs, so a Wallet can sign its own
// inputs without re-deriving prevout data. Grounded on populate_psbt in
// contract_updater.rs.
func populatePSBT(tx *wire.MsgTx, parties ...*txbuilder.PartyParams) (*psbt.Packet, error) {
	p, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to build psbt for funding transaction")
	}

	type utxoInfo struct {
		txOut  *wire.TxOut
		redeem []byte
	}
	info := make(map[wire.OutPoint]utxoInfo)
	for _, pp := range parties {
		for _, fi := range pp.FundingInputs {
			info[fi.Outpoint] = utxoInfo{txOut: fi.PrevTxOut, redeem: fi.RedeemScript}
		}
		for _, di := range pp.DlcInputs {
			redeem, txOut, err := txbuilder.FundingOutputScript(di.LocalFundPubKey, di.RemoteFundPubKey, int64(di.Value))
			if err != nil {
				return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err,
					"unable to rebuild redeem script for spliced dlc input")
			}
			info[di.Outpoint] = utxoInfo{txOut: txOut, redeem: redeem}
		}
	}

	for i, txIn := range tx.TxIn {
		u, ok := info[txIn.PreviousOutPoint]
		if !ok {
			return nil, dlcerr.New(dlcerr.InvalidParameters,
				"no prevout information for funding input %d", i)
		}
		p.Inputs[i].WitnessUtxo = u.txOut
		p.Inputs[i].RedeemScript = u.redeem
		p.Inputs[i].SighashType = txscript.SigHashAll
	}

	return p, nil
}

// signDlcInputShare produces the local party's half of the 2-of-2
// signature needed to spend a spliced DLC input, re-deriving the prior
// contract's signing key from storage. Grounded on
// get_signature_for_dlc_input in contract_updater.rs.
func signDlcInputShare(ctx context.Context, storage external.Storage, signerProvider external.ContractSignerProvider,
	di txbuilder.DlcInput, fundTx *wire.MsgTx, inputIdx int) ([]byte, error) {

	prior, err := storage.GetContract(ctx, contract.ID(di.ContractID))
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.StorageError, err, "unable to load prior contract for spliced input")
	}

	priv, _, err := contractSigner(signerProvider, prior.IsOfferParty(), prior.GetTemporaryID())
	if err != nil {
		return nil, err
	}

	redeemScript, err := txbuilder.GenMultiSigScript(di.LocalFundPubKey, di.RemoteFundPubKey)
	if err != nil {
		return nil, err
	}
	sigHash, err := txbuilder.SigHash(fundTx, inputIdx, redeemScript, di.Value)
	if err != nil {
		return nil, err
	}
	sig, err := adaptor.SignPlain(priv, sigHash)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to sign spliced dlc input")
	}
	return sigWithHashType(sig), nil
}

// combineDlcInputWitness assembles the final 2-of-2 witness for a spliced
// DLC input from each side's signature share. sigForLocal/sigForRemote
// are the signatures valid under di.LocalFundPubKey/di.RemoteFundPubKey
// respectively (the two roles fixed at the point di was recorded into a
// party's FundingInput set, not the caller's own local/remote role).
func combineDlcInputWitness(di txbuilder.DlcInput, sigForLocal, sigForRemote []byte) (wire.TxWitness, error) {
	redeemScript, err := txbuilder.GenMultiSigScript(di.LocalFundPubKey, di.RemoteFundPubKey)
	if err != nil {
		return nil, err
	}
	return txbuilder.SpendMultiSigWitness(redeemScript, di.LocalFundPubKey, sigForLocal, di.RemoteFundPubKey, sigForRemote), nil
}

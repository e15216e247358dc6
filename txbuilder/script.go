package txbuilder

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/dlcerr"
)

// witnessScriptHash generates a P2WSH scriptPubKey for the given redeem
// script. Grounded on lnwallet/script_utils.go's witnessScriptHash, updated
// to the modern btcd txscript API.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	scriptHash := sha256.Sum256(redeemScript)
	bldr.AddData(scriptHash[:])
	return bldr.Script()
}

// sortedPubKeys returns aPub, bPub reordered so the lexicographically
// smaller serialized pubkey comes first, matching BIP 2-of-2 script sorting
// and spec §4.A's "sorted lexicographically" requirement.
func sortedPubKeys(aPub, bPub *btcec.PublicKey) (lo, hi *btcec.PublicKey) {
	aBytes := aPub.SerializeCompressed()
	bBytes := bPub.SerializeCompressed()
	if bytes.Compare(aBytes, bBytes) <= 0 {
		return aPub, bPub
	}
	return bPub, aPub
}

// GenMultiSigScript generates the 2-of-2 multisig redeem script for the two
// funding public keys, with keys sorted lexicographically so both parties
// derive byte-identical scripts. Grounded on
// lnwallet/script_utils.go:genMultiSigScript.
func GenMultiSigScript(aPub, bPub *btcec.PublicKey) ([]byte, error) {
	lo, hi := sortedPubKeys(aPub, bPub)

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_2)
	bldr.AddData(lo.SerializeCompressed())
	bldr.AddData(hi.SerializeCompressed())
	bldr.AddOp(txscript.OP_2)
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	return bldr.Script()
}

// FundingOutputScript creates the 2-of-2 redeem script and its P2WSH
// scriptPubKey/value pair for the funding output. Grounded on
// lnwallet/script_utils.go:genFundingPkScript.
func FundingOutputScript(aPub, bPub *btcec.PublicKey, amt int64) ([]byte, *wire.TxOut, error) {
	if amt <= 0 {
		return nil, nil, dlcerr.New(dlcerr.InvalidParameters,
			"funding output amount must be positive, got %d", amt)
	}

	redeemScript, err := GenMultiSigScript(aPub, bPub)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.InvalidParameters, err,
			"unable to build 2-of-2 redeem script")
	}

	pkScript, err := witnessScriptHash(redeemScript)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.InvalidParameters, err,
			"unable to build funding p2wsh script")
	}

	return redeemScript, wire.NewTxOut(amt, pkScript), nil
}

// SpendMultiSigWitness assembles the witness stack to spend a 2-of-2 P2WSH
// output, placing the two signatures in the order that matches the sorted
// public keys embedded in redeemScript. Grounded on
// lnwallet/script_utils.go:spendMultiSig.
func SpendMultiSigWitness(redeemScript []byte, pubA *btcec.PublicKey, sigA []byte,
	pubB *btcec.PublicKey, sigB []byte) wire.TxWitness {

	witness := make(wire.TxWitness, 4)
	witness[0] = nil

	aBytes := pubA.SerializeCompressed()
	bBytes := pubB.SerializeCompressed()
	if bytes.Compare(aBytes, bBytes) <= 0 {
		witness[1] = sigA
		witness[2] = sigB
	} else {
		witness[1] = sigB
		witness[2] = sigA
	}
	witness[3] = redeemScript

	return witness
}

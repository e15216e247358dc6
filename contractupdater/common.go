// Package contractupdater drives a contract through its handshake:
// building the proposed transactions, generating and verifying CET
// adaptor signatures and the refund signature, and producing the signed
// funding transaction, mirroring
// original_source/ddk-manager/src/contract_updater.rs. Spec §4.D
// "Contract Updater".
package contractupdater

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/txbuilder"
)

// ProtocolVersion is the wire protocol version this updater emits.
const ProtocolVersion = 1

// randSerialID draws a fresh random serial id for a funding input, change
// output, or payout output, per spec §3 "Serial ids are drawn at random
// by the proposing party".
func randSerialID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to generate serial id")
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// contractSigner re-derives the local party's per-contract funding keypair
// from its temporary id and offer-party role. Spec §9 "Signer derivation":
// keyed purely off (isOfferParty, temporaryID), so it can be recomputed on
// demand instead of persisted on OfferedContract.
func contractSigner(signerProvider external.ContractSignerProvider, isOfferParty bool,
	temporaryID contract.ID) (*btcec.PrivateKey, *btcec.PublicKey, error) {

	keyID, err := signerProvider.DeriveSignerKeyID(isOfferParty, temporaryID)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to derive signer key id")
	}
	priv, pub, err := signerProvider.DeriveContractSigner(keyID)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.WalletError, err, "unable to derive contract signer")
	}
	return priv, pub, nil
}

// buildTransactions constructs the funding, CET, and refund transactions
// for every contract-info an offer carries, all CET sets sharing the one
// funding output (spec §4.A, §4.C). It is the single place both the
// accepting party and the offerer call to rebuild identical transactions.
func buildTransactions(offered *contract.OfferedContract, acceptParams *txbuilder.PartyParams) (*txbuilder.DlcTransactions, error) {
	if len(offered.ContractInfo) == 0 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "offered contract has no contract info")
	}

	buildParams := txbuilder.BuildParams{
		Offer:              &offered.OfferParams,
		Accept:             acceptParams,
		Payouts:            offered.ContractInfo[0].PayoutTable(),
		RefundLockTime:     offered.RefundLockTime,
		CetLockTime:        offered.CetLockTime,
		FeeRatePerVByte:    offered.FeeRatePerVByte,
		FundOutputSerialID: offered.FundOutputSerialID,
	}
	dlcTxs, err := txbuilder.Build(buildParams)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to build dlc transactions")
	}

	if len(offered.ContractInfo) > 1 {
		fundOutpoint := wire.OutPoint{
			Hash:  dlcTxs.Fund.TxHash(),
			Index: uint32(dlcTxs.FundOutputIndex),
		}
		for i := 1; i < len(offered.ContractInfo); i++ {
			extra, err := txbuilder.BuildCETs(fundOutpoint, buildParams, offered.ContractInfo[i].PayoutTable())
			if err != nil {
				return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err,
					"unable to build cets for contract info %d", i)
			}
			dlcTxs.Cets = append(dlcTxs.Cets, extra...)
		}
	}

	return dlcTxs, nil
}

// cetOffsets returns, for each contract-info, the index in a
// DlcTransactions.Cets slice built by buildTransactions where that
// contract-info's own CET set begins.
func cetOffsets(cis []contract.ContractInfo) []int {
	offsets := make([]int, len(cis))
	sum := 0
	for i, ci := range cis {
		offsets[i] = sum
		sum += len(ci.Outcomes)
	}
	return offsets
}

// cetsFor returns contract-info idx's own slice of a built CET set.
func cetsFor(cis []contract.ContractInfo, idx int, allCets []*wire.MsgTx) []*wire.MsgTx {
	offsets := cetOffsets(cis)
	return allCets[offsets[idx] : offsets[idx]+len(cis[idx].Outcomes)]
}

// sigWithHashType appends the SIGHASH_ALL byte a witness-stack DER
// signature needs, per BIP 143.
func sigWithHashType(sig *ecdsa.Signature) []byte {
	return append(sig.Serialize(), byte(txscript.SigHashAll))
}

// refundSigHash computes the sighash for the lone refund transaction
// input.
func refundSigHash(dlcTxs *txbuilder.DlcTransactions, totalCollateral btcutil.Amount) ([]byte, error) {
	return txbuilder.SigHash(dlcTxs.Refund, 0, dlcTxs.FundingRedeemScript, totalCollateral)
}

// decodeFinalWitness parses a PSBT input's raw final_script_witness field
// (BIP 174's serialized witness stack: a varint count followed by
// varint-length-prefixed elements) into a wire.TxWitness.
func decodeFinalWitness(raw []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(raw)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to read witness element count")
	}
	witness := make(wire.TxWitness, count)
	for i := range witness {
		n, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to read witness element length")
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to read witness element")
		}
		witness[i] = buf
	}
	return witness, nil
}

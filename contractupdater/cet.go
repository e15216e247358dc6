package contractupdater

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/txbuilder"
)

// attestationPath extracts, from a set of oracle attestations already
// validated against their announcements, the digit path and attesting
// oracle indices a contract-info's payout table is keyed on: the full
// digit sequence for a numerical event, or the single outcome-index byte
// for an enumerated one.
func attestationPath(ci *contract.ContractInfo, attestations []contract.OracleAttestation) ([]byte, []int, error) {
	oracleIdx := make(map[[32]byte]int, len(ci.Announcements))
	for i, ann := range ci.Announcements {
		oracleIdx[ann.PublicKey] = i
	}

	attesting := make([]int, 0, len(attestations))
	for _, att := range attestations {
		idx, ok := oracleIdx[att.PublicKey]
		if ok {
			attesting = append(attesting, idx)
		}
	}
	if len(attesting) < int(ci.Threshold) {
		return nil, nil, dlcerr.New(dlcerr.InvalidParameters,
			"only %d of %d required oracles attested", len(attesting), ci.Threshold)
	}

	first := attestations[0]
	if ci.isDigitDecomposition() {
		path, err := first.DigitsAsBytes()
		if err != nil {
			return nil, nil, err
		}
		return path, attesting, nil
	}

	if len(first.Outcomes) != 1 {
		return nil, nil, dlcerr.New(dlcerr.InvalidParameters, "enum attestation must carry exactly one outcome")
	}
	for idx, o := range ci.Announcements[0].Descriptor.Outcomes {
		if o == first.Outcomes[0] {
			return []byte{byte(idx)}, attesting, nil
		}
	}
	return nil, nil, dlcerr.New(dlcerr.InvalidParameters, "attested outcome %q is not in the announced set", first.Outcomes[0])
}

// decryptionScalar sums the per-oracle attestation scalars of attestations
// (filtered to the oracles in combo) into the scalar t that decrypts the
// adaptor signature for this (combo, path) pair. Spec §4.B "t_i equal to
// the sum of the revealed attestation scalars".
func decryptionScalar(ci *contract.ContractInfo, combo []int, attestations []contract.OracleAttestation) (*secp256k1.ModNScalar, error) {
	byOracle := make(map[[32]byte]*contract.OracleAttestation, len(attestations))
	for i := range attestations {
		byOracle[attestations[i].PublicKey] = &attestations[i]
	}

	scalars := make([]*secp256k1.ModNScalar, 0, len(combo))
	for _, annIdx := range combo {
		ann := &ci.Announcements[annIdx]
		att, ok := byOracle[ann.PublicKey]
		if !ok {
			return nil, dlcerr.New(dlcerr.InvalidParameters, "missing attestation for oracle %d", annIdx)
		}

		if ci.isDigitDecomposition() {
			digitScalars := make([]*secp256k1.ModNScalar, len(att.Signatures))
			for i, sig := range att.Signatures {
				s, err := adaptor.AttestationScalar(sig[:])
				if err != nil {
					return nil, err
				}
				digitScalars[i] = s
			}
			combined, err := adaptor.CombineAttestationScalars(digitScalars)
			if err != nil {
				return nil, err
			}
			scalars = append(scalars, combined)
			continue
		}

		if len(att.Signatures) != 1 {
			return nil, dlcerr.New(dlcerr.InvalidParameters, "enum attestation must carry exactly one signature")
		}
		s, err := adaptor.AttestationScalar(att.Signatures[0][:])
		if err != nil {
			return nil, err
		}
		scalars = append(scalars, s)
	}

	return adaptor.CombineAttestationScalars(scalars)
}

// GetSignedCET locates the CET matching the attested outcome, decrypts the
// counterparty's adaptor signature with the oracles' revealed attestation
// scalars, signs the CET itself with a plain signature, and assembles the
// final 2-of-2 witness. Grounded on get_signed_cet in contract_updater.rs.
func GetSignedCET(signed *contract.SignedContract, contractInfoIdx int, attestations []contract.OracleAttestation,
	localPriv *btcec.PrivateKey, localPub *btcec.PublicKey) (*wire.MsgTx, error) {

	accepted := &signed.AcceptedContract
	offered := &accepted.OfferedContract
	if contractInfoIdx < 0 || contractInfoIdx >= len(offered.ContractInfo) {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "contract info index %d out of range", contractInfoIdx)
	}
	ci := &offered.ContractInfo[contractInfoIdx]

	path, attestingOracles, err := attestationPath(ci, attestations)
	if err != nil {
		return nil, err
	}
	comboIdx, ok := ci.FindCombination(attestingOracles)
	if !ok {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "attesting oracles do not match any accepted combination")
	}

	info := accepted.AdaptorInfos[contractInfoIdx]
	entries := info.Entries()

	cetIdx := -1
	sigIdx := -1
	for i, e := range entries {
		eComboIdx, ePath := contract.DecodeComboKey(e.Path)
		if eComboIdx == comboIdx && bytesEqual(ePath, path) {
			cetIdx = e.CetIndex
			sigIdx = i
			break
		}
	}
	if cetIdx < 0 {
		return nil, dlcerr.New(dlcerr.NotFound, "no cet matches attested outcome")
	}

	combos := ci.OracleCombinations()
	t, err := decryptionScalar(ci, combos[comboIdx], attestations)
	if err != nil {
		return nil, err
	}

	cis := offered.ContractInfo
	cets := cetsFor(cis, contractInfoIdx, accepted.DlcTransactions.Cets)
	cet := cets[cetIdx]

	// signed.AdaptorSignatures holds the offerer's own signatures; the
	// acceptor's live on the embedded AcceptedContract. Decrypting the
	// counterparty's signature means picking whichever set isn't ours.
	var counterpartyAdaptorSig *adaptor.Signature
	if offered.IsOfferParty {
		counterpartyAdaptorSig = &accepted.AdaptorSignatures[contractInfoIdx][sigIdx]
	} else {
		counterpartyAdaptorSig = &signed.AdaptorSignatures[contractInfoIdx][sigIdx]
	}

	counterpartySig, err := adaptor.Decrypt(counterpartyAdaptorSig, t)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to decrypt counterparty cet signature")
	}

	sigHash, err := txbuilder.SigHash(cet, 0, accepted.DlcTransactions.FundingRedeemScript, offered.TotalCollateral)
	if err != nil {
		return nil, err
	}
	localSig, err := adaptor.SignPlain(localPriv, sigHash)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "unable to sign cet")
	}

	isOfferer := offered.IsOfferParty
	var localWire, counterpartyWire []byte
	localWire = sigWithHashType(localSig)
	counterpartyWire = sigWithHashType(counterpartySig)

	var offerPub, acceptPub *btcec.PublicKey
	var offerSig, acceptSig []byte
	if isOfferer {
		offerPub, offerSig = localPub, localWire
		acceptPub, acceptSig = accepted.AcceptParams.FundingPubKey, counterpartyWire
	} else {
		offerPub, offerSig = offered.OfferParams.FundingPubKey, counterpartyWire
		acceptPub, acceptSig = localPub, localWire
	}

	witness := txbuilder.SpendMultiSigWitness(accepted.DlcTransactions.FundingRedeemScript,
		offerPub, offerSig, acceptPub, acceptSig)

	final := cet.Copy()
	final.TxIn[0].Witness = witness

	return final, nil
}

// GetSignedRefund assembles the final refund transaction from both
// parties' already-exchanged plain refund signatures: signed.RefundSignature
// is always the offerer's (set directly by VerifyAcceptedAndSign, or
// received via the Sign message in VerifySigned), and
// accepted.RefundSignature is always the acceptor's (set directly by
// AcceptContract, or received via the Accept message in
// acceptedFromWire) — neither depends on which side calls this function.
// Grounded on get_signed_refund in contract_updater.rs.
func GetSignedRefund(signed *contract.SignedContract) (*wire.MsgTx, error) {
	accepted := &signed.AcceptedContract
	offered := &accepted.OfferedContract

	witness := txbuilder.SpendMultiSigWitness(accepted.DlcTransactions.FundingRedeemScript,
		offered.OfferParams.FundingPubKey, sigWithHashType(&signed.RefundSignature),
		accepted.AcceptParams.FundingPubKey, sigWithHashType(&accepted.RefundSignature))

	final := accepted.DlcTransactions.Refund.Copy()
	final.TxIn[0].Witness = witness
	return final, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

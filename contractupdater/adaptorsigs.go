package contractupdater

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/txbuilder"
)

// signContractInfoAdaptors produces one adaptor signature per entry of
// ci's adaptor info table, in that table's canonical sorted order, so the
// resulting slice's index i is exactly the index the counterparty's
// verifyContractInfoAdaptors assigns entry i. Spec §4.B "compute an
// adaptor signature on each CET, encrypted to T_i".
func signContractInfoAdaptors(ci *contract.ContractInfo, priv *btcec.PrivateKey, cets []*wire.MsgTx,
	redeemScript []byte) ([]adaptor.Signature, *contract.AdaptorInfo, error) {

	info := ci.BuildAdaptorInfo()
	entries := info.Entries()
	combos := ci.OracleCombinations()

	sigs := make([]adaptor.Signature, len(entries))
	for i, e := range entries {
		comboIdx, path := contract.DecodeComboKey(e.Path)
		if comboIdx < 0 || comboIdx >= len(combos) {
			return nil, nil, dlcerr.New(dlcerr.InvalidParameters,
				"adaptor info entry references unknown oracle combination %d", comboIdx)
		}
		t, err := ci.ComboOutcomePoint(combos[comboIdx], path)
		if err != nil {
			return nil, nil, err
		}
		if e.CetIndex < 0 || e.CetIndex >= len(cets) {
			return nil, nil, dlcerr.New(dlcerr.InvalidParameters,
				"adaptor info entry references cet index %d out of range", e.CetIndex)
		}
		sigHash, err := txbuilder.SigHash(cets[e.CetIndex], 0, redeemScript, ci.TotalCollateral)
		if err != nil {
			return nil, nil, err
		}
		sig, err := adaptor.Sign(priv, t, sigHash)
		if err != nil {
			return nil, nil, dlcerr.Wrap(dlcerr.CryptoVerification, err,
				"unable to sign cet %d adaptor signature", e.CetIndex)
		}
		sigs[i] = *sig
	}
	return sigs, info, nil
}

// verifyContractInfoAdaptors checks sigs against ci's adaptor info table
// in the same canonical order signContractInfoAdaptors produces them.
func verifyContractInfoAdaptors(ci *contract.ContractInfo, pub *btcec.PublicKey, cets []*wire.MsgTx,
	redeemScript []byte, sigs []adaptor.Signature) (*contract.AdaptorInfo, error) {

	info := ci.BuildAdaptorInfo()
	entries := info.Entries()
	if len(sigs) != len(entries) {
		return nil, dlcerr.New(dlcerr.InvalidParameters,
			"expected %d cet adaptor signatures, got %d", len(entries), len(sigs))
	}
	combos := ci.OracleCombinations()

	for i, e := range entries {
		comboIdx, path := contract.DecodeComboKey(e.Path)
		if comboIdx < 0 || comboIdx >= len(combos) {
			return nil, dlcerr.New(dlcerr.InvalidParameters,
				"adaptor info entry references unknown oracle combination %d", comboIdx)
		}
		t, err := ci.ComboOutcomePoint(combos[comboIdx], path)
		if err != nil {
			return nil, err
		}
		if e.CetIndex < 0 || e.CetIndex >= len(cets) {
			return nil, dlcerr.New(dlcerr.InvalidParameters,
				"adaptor info entry references cet index %d out of range", e.CetIndex)
		}
		sigHash, err := txbuilder.SigHash(cets[e.CetIndex], 0, redeemScript, ci.TotalCollateral)
		if err != nil {
			return nil, err
		}
		if err := adaptor.Verify(&sigs[i], pub, t, sigHash); err != nil {
			return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err,
				"cet %d adaptor signature failed verification", e.CetIndex)
		}
	}
	return info, nil
}

// signAllContractInfos runs signContractInfoAdaptors over every
// contract-info of a (possibly multi-event) contract, matching each to
// its own slice of the shared CET set.
func signAllContractInfos(cis []contract.ContractInfo, priv *btcec.PrivateKey,
	dlcTxs *txbuilder.DlcTransactions) ([][]adaptor.Signature, []*contract.AdaptorInfo, error) {

	sigs := make([][]adaptor.Signature, len(cis))
	infos := make([]*contract.AdaptorInfo, len(cis))
	for i := range cis {
		ci := &cis[i]
		cets := cetsFor(cis, i, dlcTxs.Cets)
		s, info, err := signContractInfoAdaptors(ci, priv, cets, dlcTxs.FundingRedeemScript)
		if err != nil {
			return nil, nil, dlcerr.Wrap(dlcerr.CryptoVerification, err,
				"unable to sign contract info %d adaptor signatures", i)
		}
		sigs[i] = s
		infos[i] = info
	}
	return sigs, infos, nil
}

// verifyAllContractInfos runs verifyContractInfoAdaptors over every
// contract-info, checking sigSets[i] against contract-info i.
func verifyAllContractInfos(cis []contract.ContractInfo, pub *btcec.PublicKey,
	dlcTxs *txbuilder.DlcTransactions, sigSets [][]adaptor.Signature) ([]*contract.AdaptorInfo, error) {

	if len(sigSets) != len(cis) {
		return nil, dlcerr.New(dlcerr.InvalidParameters,
			"expected %d contract info adaptor signature sets, got %d", len(cis), len(sigSets))
	}

	infos := make([]*contract.AdaptorInfo, len(cis))
	for i := range cis {
		ci := &cis[i]
		cets := cetsFor(cis, i, dlcTxs.Cets)
		info, err := verifyContractInfoAdaptors(ci, pub, cets, dlcTxs.FundingRedeemScript, sigSets[i])
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err,
				"contract info %d adaptor signatures failed verification", i)
		}
		infos[i] = info
	}
	return infos, nil
}

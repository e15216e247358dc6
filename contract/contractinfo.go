package contract

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/txbuilder"
)

// Outcome is one row of a contract-info's payout function: a digit path
// (for digit-decomposition events, the full NbDigits sequence; for
// enumerated events, a single byte holding the outcome's index in
// Announcements[0].Descriptor.Outcomes) and the payout it resolves to.
// Spec §3 "Contract Info... payout function mapping outcomes to
// (offer_payout, accept_payout) pairs".
type Outcome struct {
	Path   []byte
	Payout txbuilder.PayoutEntry
}

// ContractInfo bundles one or more oracle announcements, a k-of-n
// threshold, and the payout table those oracles jointly determine.
// Spec §3 "Contract Info".
type ContractInfo struct {
	Announcements   []OracleAnnouncement
	Threshold       uint32
	TotalCollateral btcutil.Amount
	Outcomes        []Outcome
}

// Validate enforces the invariants of spec §4.C: every outcome's payout
// sums to total collateral, the threshold is achievable, and the payout
// table is non-empty.
func (ci *ContractInfo) Validate() error {
	if len(ci.Announcements) == 0 {
		return dlcerr.New(dlcerr.InvalidParameters, "contract info has no oracle announcements")
	}
	if ci.Threshold == 0 || int(ci.Threshold) > len(ci.Announcements) {
		return dlcerr.New(dlcerr.InvalidParameters,
			"threshold %d is not achievable with %d announcements", ci.Threshold, len(ci.Announcements))
	}
	if len(ci.Outcomes) == 0 {
		return dlcerr.New(dlcerr.InvalidParameters, "contract info has an empty payout table")
	}
	for i, o := range ci.Outcomes {
		if o.Payout.OfferSats+o.Payout.AcceptSats != ci.TotalCollateral {
			return dlcerr.New(dlcerr.InvalidParameters,
				"outcome %d payout (%d, %d) does not sum to total collateral %d",
				i, o.Payout.OfferSats, o.Payout.AcceptSats, ci.TotalCollateral)
		}
	}
	return nil
}

// PayoutTable returns the ordered payout entries, in the same order as
// the CET set the Transaction Builder produces for this contract-info.
func (ci *ContractInfo) PayoutTable() []txbuilder.PayoutEntry {
	out := make([]txbuilder.PayoutEntry, len(ci.Outcomes))
	for i, o := range ci.Outcomes {
		out[i] = o.Payout
	}
	return out
}

// isDigitDecomposition reports whether this contract-info's event is
// numerical (every announcement must agree; the core does not support
// mixing enum and digit-decomposition oracles on one contract-info).
func (ci *ContractInfo) isDigitDecomposition() bool {
	return ci.Announcements[0].Descriptor.Kind == EventDigitDecomposition
}

// OracleCombinations enumerates every size-Threshold subset of
// Announcements, by index. For an enumerated, single-oracle contract-info
// this is the single trivial combination {0}.
func (ci *ContractInfo) OracleCombinations() [][]int {
	return combinations(len(ci.Announcements), int(ci.Threshold))
}

// combinations returns every k-sized subset of {0,...,n-1}, each in
// ascending order.
func combinations(n, k int) [][]int {
	if k <= 0 || k > n {
		return nil
	}
	var out [][]int
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		combo := make([]int, k)
		copy(combo, idx)
		out = append(out, combo)

		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return out
}

// digitMessage hashes digit's decimal string, the message an oracle signs
// for one digit position, matching OracleAttestation.Outcomes' encoding.
func digitMessage(digit byte) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%d", digit)))
}

// oracleOutcomePoint computes a single oracle's contribution to T for a
// given outcome path: for a digit-decomposition event, the sum of the
// per-digit outcome points (one nonce per digit, spec §4.B); for an
// enumerated event, the single outcome point from its one nonce.
func oracleOutcomePoint(ann *OracleAnnouncement, path []byte) (*btcec.PublicKey, error) {
	if ann.Descriptor.Kind == EventEnum {
		if len(path) != 1 || int(path[0]) >= len(ann.Descriptor.Outcomes) {
			return nil, dlcerr.New(dlcerr.InvalidParameters, "enum outcome path out of range")
		}
		msg := sha256.Sum256([]byte(ann.Descriptor.Outcomes[path[0]]))
		return adaptor.OutcomePoint(ann.Nonces[0], ann.PublicKey, msg)
	}

	if len(path) == 0 || len(path) > len(ann.Nonces) {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "digit path length out of range for announcement")
	}

	points := make([]*btcec.PublicKey, len(path))
	for i, digit := range path {
		msg := digitMessage(digit)
		p, err := adaptor.OutcomePoint(ann.Nonces[i], ann.PublicKey, msg)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}
	return adaptor.CombineOutcomePoints(points)
}

// ComboOutcomePoint computes T for the given outcome path under the
// oracle combination combo (indices into Announcements), by summing each
// participating oracle's outcome point. Spec §4.B "compute a point T_i
// equal to the sum, over all attesting oracles in a threshold-matching
// combination".
func (ci *ContractInfo) ComboOutcomePoint(combo []int, path []byte) (*btcec.PublicKey, error) {
	points := make([]*btcec.PublicKey, len(combo))
	for i, annIdx := range combo {
		p, err := oracleOutcomePoint(&ci.Announcements[annIdx], path)
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err,
				"unable to compute outcome point for oracle %d", annIdx)
		}
		points[i] = p
	}
	return adaptor.CombineOutcomePoints(points)
}

// comboKey prefixes a digit path with its combination index so a single
// AdaptorInfo table can distinguish the same outcome path attested by
// different oracle combinations, each of which encrypts to a distinct T.
func comboKey(comboIdx int, path []byte) []byte {
	out := make([]byte, 0, len(path)+2)
	out = append(out, byte(comboIdx>>8), byte(comboIdx))
	out = append(out, path...)
	return out
}

// BuildAdaptorInfo constructs the (combination, outcome-path) -> CET
// index lookup table for every oracle combination of size Threshold
// crossed with every outcome in the payout table. Spec §3 "Adaptor Info".
func (ci *ContractInfo) BuildAdaptorInfo() *AdaptorInfo {
	combos := ci.OracleCombinations()
	paths := make([][]byte, 0, len(combos)*len(ci.Outcomes))
	cetIndices := make([]int, 0, cap(paths))
	for comboIdx := range combos {
		for cetIdx, outcome := range ci.Outcomes {
			paths = append(paths, comboKey(comboIdx, outcome.Path))
			cetIndices = append(cetIndices, cetIdx)
		}
	}

	entries := make([]adaptorEntry, len(paths))
	for i, p := range paths {
		entries[i] = adaptorEntry{path: p, cetIndex: cetIndices[i]}
	}
	info := &AdaptorInfo{entries: entries}
	sortAdaptorEntries(info.entries)
	return info
}

// FindCombination returns the index of the oracle combination whose
// members are exactly attestingOracles (in any order), and whether one
// exists, used at decryption time to recover the combination half of the
// (combo, path) key an attestation set corresponds to.
func (ci *ContractInfo) FindCombination(attestingOracles []int) (int, bool) {
	combos := ci.OracleCombinations()
	sorted := append([]int(nil), attestingOracles...)
	sortInts(sorted)
	for i, combo := range combos {
		if intSlicesEqual(combo, sorted) {
			return i, true
		}
	}
	return 0, false
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func intSlicesEqual(a, b []int) bool {
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

package contract

import (
	"bytes"
	"sort"

	"github.com/btcdlc/dlcd/dlcerr"
)

// AdaptorInfo maps an outcome digit-path to the index of the CET that
// outcome maturity. The source uses a compressed trie (spec §9 "Open
// question — Adaptor-info trie"); this implementation uses the explicitly
// permitted alternative, a table sorted by digit path with binary-search
// lookup, which is the same O(log n) asymptotic the trie offers for exact
// full-length paths.
type AdaptorInfo struct {
	entries []adaptorEntry
}

type adaptorEntry struct {
	path     []byte
	cetIndex int
}

// NewAdaptorInfo builds a lookup table from cetPaths, a per-CET digit
// path — for an enumerated contract-info, a single-byte path holding the
// outcome's index in its announced order; for a numerical contract-info,
// the full NbDigits-long digit sequence that CET's payout bucket covers.
func NewAdaptorInfo(cetPaths [][]byte) *AdaptorInfo {
	entries := make([]adaptorEntry, len(cetPaths))
	for i, p := range cetPaths {
		entries[i] = adaptorEntry{path: p, cetIndex: i}
	}
	sortAdaptorEntries(entries)
	return &AdaptorInfo{entries: entries}
}

// sortAdaptorEntries orders entries by path so Find can binary search.
func sortAdaptorEntries(entries []adaptorEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].path, entries[j].path) < 0
	})
}

// Find locates the CET index whose digit path exactly equals path via
// binary search. Spec §8 "Threshold discovery... the updater locates
// exactly one CET index."
func (a *AdaptorInfo) Find(path []byte) (int, error) {
	i := sort.Search(len(a.entries), func(i int) bool {
		return bytes.Compare(a.entries[i].path, path) >= 0
	})
	if i < len(a.entries) && bytes.Equal(a.entries[i].path, path) {
		return a.entries[i].cetIndex, nil
	}
	return 0, dlcerr.New(dlcerr.NotFound, "no cet matches attested outcome path")
}

// Len reports the number of distinct outcome paths indexed.
func (a *AdaptorInfo) Len() int {
	return len(a.entries)
}

// Entry is the exported projection of an adaptorEntry, letting callers in
// other packages (the contract updater's adaptor signature generation and
// verification) walk the table in its canonical sorted order — the same
// order both the signer and verifier assign to a contract-info's adaptor
// signature slice.
type Entry struct {
	Path     []byte
	CetIndex int
}

// Entries returns the table's entries in sorted order.
func (a *AdaptorInfo) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	for i, e := range a.entries {
		out[i] = Entry{Path: e.path, CetIndex: e.cetIndex}
	}
	return out
}

// NewAdaptorInfoFromEntries rebuilds a table from its own Entries() output,
// for storage layers that persist the table by its entry list rather than
// recomputing it from a contract-info. Entries need not already be sorted.
func NewAdaptorInfoFromEntries(entries []Entry) *AdaptorInfo {
	out := make([]adaptorEntry, len(entries))
	for i, e := range entries {
		out[i] = adaptorEntry{path: e.Path, cetIndex: e.CetIndex}
	}
	sortAdaptorEntries(out)
	return &AdaptorInfo{entries: out}
}

// DecodeComboKey splits an AdaptorInfo path back into the oracle
// combination index and outcome digit path comboKey combined, the inverse
// of comboKey.
func DecodeComboKey(key []byte) (comboIdx int, path []byte) {
	if len(key) < 2 {
		return 0, nil
	}
	comboIdx = int(key[0])<<8 | int(key[1])
	return comboIdx, key[2:]
}

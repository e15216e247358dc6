package dlctest

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/txbuilder"
)

// EnumContractInfo builds a single-oracle, two-outcome enum contract-info
// ("rust" pays the offerer in full, "go" pays the acceptor in full) bound
// to oracle's announced nonceX, the shape contractupdater's own tests use.
func EnumContractInfo(oracle *Oracle, nonceX [32]byte, totalCollateral int64) contract.ContractInfo {
	return contract.ContractInfo{
		Announcements: []contract.OracleAnnouncement{{
			PublicKey: oracle.PublicKey(),
			EventID:   "rust-vs-go",
			Descriptor: contract.EventDescriptor{
				Kind:     contract.EventEnum,
				Outcomes: []string{"rust", "go"},
			},
			Nonces: [][32]byte{nonceX},
		}},
		Threshold:       1,
		TotalCollateral: btcutil.Amount(totalCollateral),
		Outcomes: []contract.Outcome{
			{Path: []byte{0}, Payout: txbuilder.PayoutEntry{OfferSats: btcutil.Amount(totalCollateral), AcceptSats: 0}},
			{Path: []byte{1}, Payout: txbuilder.PayoutEntry{OfferSats: 0, AcceptSats: btcutil.Amount(totalCollateral)}},
		},
	}
}

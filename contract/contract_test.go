package contract

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/txbuilder"
)

func enumContractInfo() *ContractInfo {
	return &ContractInfo{
		Announcements: []OracleAnnouncement{{
			PublicKey: [32]byte{1},
			EventID:   "rust-vs-go",
			Descriptor: EventDescriptor{
				Kind:     EventEnum,
				Outcomes: []string{"rust", "go"},
			},
			Nonces: [][32]byte{{2}},
		}},
		Threshold:       1,
		TotalCollateral: 100000,
		Outcomes: []Outcome{
			{Path: []byte{0}, Payout: txbuilder.PayoutEntry{OfferSats: 100000, AcceptSats: 0}},
			{Path: []byte{1}, Payout: txbuilder.PayoutEntry{OfferSats: 0, AcceptSats: 100000}},
		},
	}
}

func TestContractInfoValidate(t *testing.T) {
	ci := enumContractInfo()
	require.NoError(t, ci.Validate())

	bad := enumContractInfo()
	bad.Outcomes[0].Payout.AcceptSats = 1
	require.Error(t, bad.Validate())
}

func TestContractInfoCombinations(t *testing.T) {
	ci := enumContractInfo()
	combos := ci.OracleCombinations()
	require.Len(t, combos, 1)
	require.Equal(t, []int{0}, combos[0])
}

func TestAdaptorInfoBuildAndFind(t *testing.T) {
	ci := enumContractInfo()
	info := ci.BuildAdaptorInfo()
	require.Equal(t, 2, info.Len())

	key := comboKey(0, []byte{1})
	idx, err := info.Find(key)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	_, err = info.Find(comboKey(0, []byte{9}))
	require.Error(t, err)
}

func TestFinalIDRoundTrips(t *testing.T) {
	temp, err := NewTemporaryID()
	require.NoError(t, err)

	var txid chainhash.Hash
	for i := range txid {
		txid[i] = byte(i)
	}

	final := FinalID(txid, 1, temp)
	require.NotEqual(t, ID(temp), final)

	// XORing again with the same funding txid/index undoes the
	// transform, proving the formula is reversible (spec §8).
	var reversed [32]byte
	for i := 0; i < 32; i++ {
		reversed[i] = txid[31-i]
	}
	var recovered ID
	for i := 0; i < 32; i++ {
		recovered[i] = reversed[i] ^ final[i]
	}
	recovered[30] ^= byte(uint32(1) >> 8)
	recovered[31] ^= byte(uint32(1))
	require.Equal(t, temp, recovered)
}

func TestContractAccessors(t *testing.T) {
	ci := enumContractInfo()
	offered := OfferedContract{
		ID:              ID{9},
		IsOfferParty:    true,
		ContractInfo:    []ContractInfo{*ci},
		TotalCollateral: 100000,
		OfferParams:     txbuilder.PartyParams{CollateralAmount: 50000},
		CetLockTime:     100,
		RefundLockTime:  200,
	}
	c := &Contract{Stage: StageOffered, Offered: &offered}

	require.Equal(t, offered.ID, c.GetID())
	require.True(t, c.IsOfferParty())
	require.Equal(t, uint32(100), c.GetCetLockTime())
	require.Equal(t, uint32(200), c.GetRefundLockTime())

	offer, accept, total := c.GetCollateral()
	require.Equal(t, btcutil.Amount(50000), offer)
	require.Equal(t, btcutil.Amount(50000), accept)
	require.Equal(t, btcutil.Amount(100000), total)

	ann, ok := c.GetOracleAnnouncement()
	require.True(t, ok)
	require.Equal(t, "rust-vs-go", ann.EventID)
}

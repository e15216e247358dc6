package contract

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcdlc/dlcd/dlcerr"
)

// ID is a 32-byte contract identifier. It holds a random temporary id
// while Offered/Accepted, and the reproducible final id (spec §3) once the
// funding transaction is known.
type ID [32]byte

// NewTemporaryID generates a fresh random temporary contract id.
func NewTemporaryID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, dlcerr.Wrap(dlcerr.InvalidParameters, err, "unable to generate temporary contract id")
	}
	return id, nil
}

// FinalID computes `reverse(funding_txid) XOR temporary_id`, with the last
// two bytes further XORed with the funding output index (big-endian),
// per spec §3 "ContractId" / §8 "Contract-id formula".
func FinalID(fundingTxid chainhash.Hash, fundOutputIndex uint32, temporary ID) ID {
	var reversed [32]byte
	for i := 0; i < 32; i++ {
		reversed[i] = fundingTxid[31-i]
	}

	var final ID
	for i := 0; i < 32; i++ {
		final[i] = reversed[i] ^ temporary[i]
	}

	final[30] ^= byte(fundOutputIndex >> 8)
	final[31] ^= byte(fundOutputIndex)

	return final
}

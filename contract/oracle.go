// Package contract implements the typed DLC contract data model: oracle
// announcements and attestations, contract-info payout tables, adaptor
// info lookup structures, and the nested Offered/Accepted/Signed/PreClosed
// /Closed/Failed* aggregates with their structural invariants (spec §3,
// §4.C). Grounded on original_source/ddk-manager/src/contract/mod.rs for
// the aggregate shape and accessor methods.
package contract

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/btcdlc/dlcd/dlcerr"
)

// EventDescriptorKind distinguishes an enumerated outcome set from a
// digit-decomposition (numerical) event, per spec §3 "Oracle Announcement".
type EventDescriptorKind uint8

const (
	EventEnum EventDescriptorKind = iota
	EventDigitDecomposition
)

// EventDescriptor describes the shape of the outcomes an oracle can
// attest to for one event.
type EventDescriptor struct {
	Kind EventDescriptorKind

	// Enum fields.
	Outcomes []string

	// Digit-decomposition fields.
	Base      uint32
	NbDigits  uint32
	IsSigned  bool
	Unit      string
	Precision int32
}

// OracleAnnouncement is an oracle's advance, signed commitment to an
// event: its public key, the event id, the event's shape, and one nonce
// public key per signable digit (or a single nonce for an enum event).
// Spec §3 "Oracle Announcement".
type OracleAnnouncement struct {
	PublicKey  [32]byte
	EventID    string
	Descriptor EventDescriptor
	Nonces     [][32]byte

	// AnnouncementSignature is the oracle's own BIP340 signature over
	// the announcement body, binding event id, descriptor, and nonces
	// together so the oracle cannot later claim a different descriptor
	// for the same event id.
	AnnouncementSignature [64]byte
}

// OracleAttestation is an oracle's revealed outcome: one BIP340 signature
// per digit (or a single signature for an enum outcome), each over the
// sha256 of that digit's/outcome's string representation, using the nonce
// committed to in the matching OracleAnnouncement. Spec §3 "Attestation".
type OracleAttestation struct {
	PublicKey  [32]byte
	EventID    string
	Outcomes   []string
	Signatures [][64]byte
}

// Validate checks an attestation against its announcement: every signed
// outcome has a matching nonce slot, and every signature verifies under
// the oracle's public key with its embedded nonce equal to the announced
// one. Spec §4.F "validate each against its announcement".
func (a *OracleAttestation) Validate(ann *OracleAnnouncement) error {
	if a.PublicKey != ann.PublicKey {
		return dlcerr.New(dlcerr.OracleError, "attestation public key does not match announcement")
	}
	if a.EventID != ann.EventID {
		return dlcerr.New(dlcerr.OracleError, "attestation event id %q does not match announcement %q",
			a.EventID, ann.EventID)
	}
	if len(a.Signatures) == 0 || len(a.Signatures) != len(a.Outcomes) {
		return dlcerr.New(dlcerr.OracleError, "attestation has mismatched outcomes/signatures count")
	}
	if len(a.Signatures) > len(ann.Nonces) {
		return dlcerr.New(dlcerr.OracleError, "attestation has more signatures than announced nonces")
	}

	pub, err := schnorr.ParsePubKey(a.PublicKey[:])
	if err != nil {
		return dlcerr.Wrap(dlcerr.OracleError, err, "invalid oracle public key")
	}

	for i, sigBytes := range a.Signatures {
		sig, err := schnorr.ParseSignature(sigBytes[:])
		if err != nil {
			return dlcerr.Wrap(dlcerr.OracleError, err, "invalid signature at digit %d", i)
		}

		msgHash := sha256.Sum256([]byte(a.Outcomes[i]))
		if !sig.Verify(msgHash[:], pub) {
			return dlcerr.New(dlcerr.CryptoVerification, "attestation signature at digit %d failed to verify", i)
		}

		nonceFromSig := sigBytes[0:32]
		var nonceArr [32]byte
		copy(nonceArr[:], nonceFromSig)
		if nonceArr != ann.Nonces[i] {
			return dlcerr.New(dlcerr.CryptoVerification,
				"attestation signature at digit %d used an unannounced nonce", i)
		}
	}

	return nil
}

// DigitsAsBytes decodes a digit-decomposition attestation's outcome
// strings (each a decimal digit value, "0".."base-1") into a byte slice
// suitable for AdaptorInfo lookup and numeric reconstruction.
func (a *OracleAttestation) DigitsAsBytes() ([]byte, error) {
	digits := make([]byte, len(a.Outcomes))
	for i, s := range a.Outcomes {
		v, err := parseDigit(s)
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.OracleError, err, "invalid digit outcome at position %d", i)
		}
		digits[i] = v
	}
	return digits, nil
}

func parseDigit(s string) (byte, error) {
	if len(s) == 0 || len(s) > 2 {
		return 0, dlcerr.New(dlcerr.InvalidParameters, "digit string %q out of range", s)
	}
	var v int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, dlcerr.New(dlcerr.InvalidParameters, "digit string %q is not numeric", s)
		}
		v = v*10 + int(c-'0')
	}
	if v > 255 {
		return 0, dlcerr.New(dlcerr.InvalidParameters, "digit value %d exceeds byte range", v)
	}
	return byte(v), nil
}

package dlctest

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
)

// SignerProvider hands out one of two fixed keypairs depending on
// isOfferParty, the simplest possible external.ContractSignerProvider.
type SignerProvider struct {
	OfferPriv, AcceptPriv *btcec.PrivateKey
}

// NewSignerProvider returns a SignerProvider with two fresh keypairs.
func NewSignerProvider(t *testing.T) *SignerProvider {
	t.Helper()
	offerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	acceptPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &SignerProvider{OfferPriv: offerPriv, AcceptPriv: acceptPriv}
}

func (s *SignerProvider) DeriveSignerKeyID(isOfferParty bool, temporaryID contract.ID) ([32]byte, error) {
	var id [32]byte
	if isOfferParty {
		id[0] = 1
	} else {
		id[0] = 2
	}
	return id, nil
}

func (s *SignerProvider) DeriveContractSigner(keyID [32]byte) (*btcec.PrivateKey, *btcec.PublicKey, error) {
	if keyID[0] == 1 {
		return s.OfferPriv, s.OfferPriv.PubKey(), nil
	}
	return s.AcceptPriv, s.AcceptPriv.PubKey(), nil
}

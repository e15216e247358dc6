package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
)

func TestValidateAuthorizedEdges(t *testing.T) {
	cases := []struct {
		from  contract.Stage
		event Event
		to    contract.Stage
	}{
		{contract.StageOffered, EventLocalReject, contract.StageRejected},
		{contract.StageOffered, EventLocalAccept, contract.StageAccepted},
		{contract.StageOffered, EventAcceptVerified, contract.StageSigned},
		{contract.StageOffered, EventAcceptVerifyFailed, contract.StageFailedAccept},
		{contract.StageAccepted, EventSignVerified, contract.StageSigned},
		{contract.StageAccepted, EventSignVerifyFailed, contract.StageFailedSign},
		{contract.StageSigned, EventFundingConfirmed, contract.StageConfirmed},
		{contract.StageSigned, EventSpliceConfirmed, contract.StageClosed},
		{contract.StageConfirmed, EventCetBroadcast, contract.StagePreClosed},
		{contract.StageConfirmed, EventRefundBroadcast, contract.StageRefunded},
		{contract.StageConfirmed, EventSpliceConfirmed, contract.StageClosed},
		{contract.StageConfirmed, EventCounterpartyCloseRefund, contract.StageRefunded},
		{contract.StageConfirmed, EventCounterpartyClosePreConfirmed, contract.StagePreClosed},
		{contract.StageConfirmed, EventCounterpartyCloseConfirmed, contract.StageClosed},
		{contract.StagePreClosed, EventCetConfirmed, contract.StageClosed},
		{contract.StagePreClosed, EventCounterpartyCloseConfirmed, contract.StageClosed},
	}

	for _, c := range cases {
		err := Validate(c.from, c.event, c.to)
		require.NoError(t, err, "expected %s + %s -> %s to be authorized", c.from, c.event, c.to)
	}
}

func TestValidateRejectsUnauthorizedEvent(t *testing.T) {
	err := Validate(contract.StageOffered, EventFundingConfirmed, contract.StageConfirmed)
	require.Error(t, err)
	kind, ok := dlcerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, dlcerr.InvalidState, kind)
}

func TestValidateRejectsWrongDestination(t *testing.T) {
	err := Validate(contract.StageOffered, EventLocalAccept, contract.StageSigned)
	require.Error(t, err)
}

func TestValidateRejectsTransitionsOutOfTerminalStages(t *testing.T) {
	terminal := []contract.Stage{
		contract.StageClosed, contract.StageRefunded, contract.StageRejected,
		contract.StageFailedAccept, contract.StageFailedSign,
	}
	for _, s := range terminal {
		require.True(t, IsTerminal(s))
		err := Validate(s, EventFundingConfirmed, contract.StageConfirmed)
		require.Error(t, err, "terminal stage %s must reject every event", s)
	}
}

func TestValidateRejectsRegression(t *testing.T) {
	// Confirmed has no authorized edge back to Signed or Offered; this
	// exercises the table lookup failing (not ever reaching the rank
	// check), which is the table's job by construction.
	err := Validate(contract.StageConfirmed, EventLocalAccept, contract.StageOffered)
	require.Error(t, err)
}

func TestNonTerminalStagesAreNotTerminal(t *testing.T) {
	nonTerminal := []contract.Stage{
		contract.StageOffered, contract.StageAccepted, contract.StageSigned,
		contract.StageConfirmed, contract.StagePreClosed,
	}
	for _, s := range nonTerminal {
		require.False(t, IsTerminal(s), "%s should not be terminal", s)
	}
}

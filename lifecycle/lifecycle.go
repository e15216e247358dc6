// Package lifecycle enforces the contract lifecycle's transition table: the
// set of (current stage, event) pairs the reconciliation loop and incoming
// wire messages are allowed to drive a contract through, and the guard that
// no contract is ever moved backward. Spec §4.E "Lifecycle State Machine".
// Grounded on the single-step, checkpoint-after-each-transition shape of
// contractcourt/htlc_timeout_resolver.go's Resolve(), adapted from one
// resolver advancing through implicit internal flags to a table-driven
// check over contract.Stage.
package lifecycle

import (
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
)

// Event identifies what drove a transition attempt: an incoming wire
// message, a local action, or an observation made by the reconciliation
// loop (spec §4.F).
type Event uint8

const (
	// EventLocalReject is the offerer or acceptor declining an offer
	// before ever responding to the counterparty.
	EventLocalReject Event = iota
	// EventLocalAccept is the acceptor constructing its Accept message.
	EventLocalAccept
	// EventAcceptVerified is the offerer's Accept-message verification
	// succeeding (refund + every CET adaptor signature check out).
	EventAcceptVerified
	// EventAcceptVerifyFailed is that verification failing.
	EventAcceptVerifyFailed
	// EventSignVerified is the acceptor's Sign-message verification
	// succeeding.
	EventSignVerified
	// EventSignVerifyFailed is that verification failing.
	EventSignVerifyFailed
	// EventFundingConfirmed is the funding transaction reaching the
	// confirmation depth N.
	EventFundingConfirmed
	// EventCetBroadcast is an oracle attestation set meeting its
	// contract-info's threshold and the resulting CET being broadcast.
	EventCetBroadcast
	// EventRefundBroadcast is the refund transaction being broadcast
	// because the refund locktime was reached with no valid attestation.
	EventRefundBroadcast
	// EventCetConfirmed is a broadcast CET reaching confirmation depth N.
	EventCetConfirmed
	// EventSpliceConfirmed is a new contract's splice-funding transaction
	// (which spends this contract's funding output) confirming, closing
	// this contract out in favor of the spliced child.
	EventSpliceConfirmed
	// EventCounterpartyCloseRefund is the reconciliation loop observing
	// the counterparty's refund transaction spend the funding output.
	EventCounterpartyCloseRefund
	// EventCounterpartyClosePreConfirmed is the reconciliation loop
	// observing the counterparty's CET spend the funding output, not yet
	// at confirmation depth N.
	EventCounterpartyClosePreConfirmed
	// EventCounterpartyCloseConfirmed is that same CET already at or
	// beyond confirmation depth N when first observed.
	EventCounterpartyCloseConfirmed
)

func (e Event) String() string {
	switch e {
	case EventLocalReject:
		return "local_reject"
	case EventLocalAccept:
		return "local_accept"
	case EventAcceptVerified:
		return "accept_verified"
	case EventAcceptVerifyFailed:
		return "accept_verify_failed"
	case EventSignVerified:
		return "sign_verified"
	case EventSignVerifyFailed:
		return "sign_verify_failed"
	case EventFundingConfirmed:
		return "funding_confirmed"
	case EventCetBroadcast:
		return "cet_broadcast"
	case EventRefundBroadcast:
		return "refund_broadcast"
	case EventCetConfirmed:
		return "cet_confirmed"
	case EventSpliceConfirmed:
		return "splice_confirmed"
	case EventCounterpartyCloseRefund:
		return "counterparty_close_refund"
	case EventCounterpartyClosePreConfirmed:
		return "counterparty_close_pre_confirmed"
	case EventCounterpartyCloseConfirmed:
		return "counterparty_close_confirmed"
	default:
		return "unknown_event"
	}
}

// transitions enumerates every (stage, event) -> stage edge of spec §4.E's
// diagram. A (stage, event) pair absent from this table is not authorized.
var transitions = map[contract.Stage]map[Event]contract.Stage{
	contract.StageOffered: {
		EventLocalReject:        contract.StageRejected,
		EventLocalAccept:        contract.StageAccepted,
		EventAcceptVerified:     contract.StageSigned,
		EventAcceptVerifyFailed: contract.StageFailedAccept,
	},
	contract.StageAccepted: {
		EventSignVerified:     contract.StageSigned,
		EventSignVerifyFailed: contract.StageFailedSign,
	},
	contract.StageSigned: {
		EventFundingConfirmed: contract.StageConfirmed,
		EventSpliceConfirmed:  contract.StageClosed,
	},
	contract.StageConfirmed: {
		EventCetBroadcast:                  contract.StagePreClosed,
		EventRefundBroadcast:               contract.StageRefunded,
		EventSpliceConfirmed:               contract.StageClosed,
		EventCounterpartyCloseRefund:       contract.StageRefunded,
		EventCounterpartyClosePreConfirmed: contract.StagePreClosed,
		EventCounterpartyCloseConfirmed:    contract.StageClosed,
	},
	contract.StagePreClosed: {
		EventCetConfirmed:               contract.StageClosed,
		EventCounterpartyCloseConfirmed: contract.StageClosed,
	},
}

// rank orders stages along the lifecycle DAG so a backward move can be
// rejected even though the DAG branches (Confirmed can reach Closed either
// by way of PreClosed or directly via a splice). Every terminal stage
// shares the highest rank: none can ever transition again, so their
// relative order against each other doesn't matter, only that nothing can
// move into a terminal stage and then out of it.
var rank = map[contract.Stage]int{
	contract.StageOffered:      0,
	contract.StageAccepted:     1,
	contract.StageSigned:       2,
	contract.StageConfirmed:    3,
	contract.StagePreClosed:    4,
	contract.StageClosed:       5,
	contract.StageRefunded:     5,
	contract.StageRejected:     5,
	contract.StageFailedAccept: 5,
	contract.StageFailedSign:   5,
}

// IsTerminal reports whether no transition ever leaves stage.
func IsTerminal(stage contract.Stage) bool {
	switch stage {
	case contract.StageClosed, contract.StageRefunded, contract.StageRejected,
		contract.StageFailedAccept, contract.StageFailedSign:
		return true
	default:
		return false
	}
}

// Validate checks that moving a contract from "from" to "to" in response to
// event is an authorized edge of the lifecycle DAG, per spec §4.E, and that
// the move does not regress a contract already in a terminal or
// higher-ranked stage — "no state is ever regressed" (spec §4.E).
func Validate(from contract.Stage, event Event, to contract.Stage) error {
	if IsTerminal(from) {
		return dlcerr.New(dlcerr.InvalidState,
			"contract in terminal stage %q cannot process event %q", from, event)
	}

	wantStage, ok := transitions[from][event]
	if !ok {
		return dlcerr.New(dlcerr.InvalidState,
			"event %q is not authorized from stage %q", event, from)
	}
	if wantStage != to {
		return dlcerr.New(dlcerr.InvalidState,
			"event %q from stage %q must land on %q, not %q", event, from, wantStage, to)
	}

	if rank[to] < rank[from] {
		return dlcerr.New(dlcerr.InvalidState,
			"transition from %q to %q would regress the contract's lifecycle rank", from, to)
	}

	return nil
}

package models

type PaymentState string

const (
	PaymentStateInitial           PaymentState = "initial"
	PaymentStateWaitingForSCA     PaymentState = "waiting_for_sca"
	PaymentStateWaitingFor3DS     PaymentState = "waiting_for_3ds_response"
	PaymentStateConfirming        PaymentState = "confirming"
	PaymentStateSentForProcessing PaymentState = "sent_for_processing"
	PaymentStateSettled           PaymentState = "settled"
	PaymentStateFailed            PaymentState = "failed"
	PaymentStateAbandoned         PaymentState = "abandoned"
	PaymentStateVoided            PaymentState = "voided"
	PaymentStateRefunded          PaymentState = "refunded"
	PaymentStateChargebacked      PaymentState = "chargebacked"
)

// IsFinal reports whether no further transition is accepted from s.
// Settled is final except for refunds and chargebacks, see CanTransition.
func (s PaymentState) IsFinal() bool {
	switch s {
	case PaymentStateSettled, PaymentStateFailed, PaymentStateAbandoned,
		PaymentStateVoided, PaymentStateRefunded, PaymentStateChargebacked:
		return true
	}
	return false
}

// progress orders the non-final states. SCA and 3DS are alternatives and share a step.
var progress = map[PaymentState]int{
	PaymentStateInitial:           0,
	PaymentStateWaitingForSCA:     1,
	PaymentStateWaitingFor3DS:     1,
	PaymentStateConfirming:        2,
	PaymentStateSentForProcessing: 3,
}

// CanTransition reports whether the ledger may move a payment from s to next.
// Non-final states only move forward; unknown processor states are accepted
// from any non-final state.
func (s PaymentState) CanTransition(next PaymentState) bool {
	if next == "" || s == next {
		return false
	}
	if s == PaymentStateSettled {
		return next == PaymentStateRefunded || next == PaymentStateChargebacked
	}
	if s.IsFinal() {
		return false
	}
	from, known := progress[s]
	to, nextKnown := progress[next]
	if known && nextKnown && to < from {
		return false
	}
	return true
}

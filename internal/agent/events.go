package agent

import (
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

// Outcomes reported by InvocationEvent.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// InvocationEvent describes one finished action invocation.
type InvocationEvent struct {
	Action   string
	Network  wallet.Network
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Outcome is "success" or "failure".
func (e InvocationEvent) Outcome() string {
	if e.Err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// SubscribeInvocations delivers every invocation event to ch. Delivery is
// synchronous: a subscriber that stops reading blocks invocations, so
// subscribers must drain ch until they unsubscribe.
func (a *Agent) SubscribeInvocations(ch chan<- InvocationEvent) event.Subscription {
	return a.feed.Subscribe(ch)
}

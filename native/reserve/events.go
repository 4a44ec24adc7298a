package reserve

import (
	"fmt"
	"math/big"

	"ideamarket/core/events"
	"ideamarket/core/types"
)

const (
	// EventTypeInvested is emitted when principal is deposited into the pool.
	EventTypeInvested = "reserve.invested"
	// EventTypeRedeemed is emitted when principal is withdrawn.
	EventTypeRedeemed = "reserve.redeemed"
	// EventTypeDonated is emitted when collateral is donated to the reserve.
	EventTypeDonated = "reserve.donated"
	// EventTypeDonatedRedeemed is emitted when a donor reclaims a donation.
	EventTypeDonatedRedeemed = "reserve.donated_redeemed"
	// EventTypeRewardWithdrawn is emitted when accrued rewards are swept.
	EventTypeRewardWithdrawn = "reserve.reward_withdrawn"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// WrapEvent adapts a raw event for the emitter interface.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func (m *Manager) emit(evt *types.Event) {
	if m == nil || m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(eventEnvelope{evt: evt})
}

func hexAddr(addr [20]byte) string { return fmt.Sprintf("0x%x", addr[:]) }

// InvestedEvent reports a pool deposit of principal collateral.
func InvestedEvent(amount, shares *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeInvested,
		Attributes: map[string]string{
			"amount": amount.String(),
			"shares": shares.String(),
		},
	}
}

// RedeemedEvent reports a principal withdrawal paid to recipient.
func RedeemedEvent(recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRedeemed,
		Attributes: map[string]string{
			"recipient": hexAddr(recipient),
			"amount":    amount.String(),
		},
	}
}

// DonatedEvent reports a donation credited to the donor's claim.
func DonatedEvent(donor [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDonated,
		Attributes: map[string]string{
			"donor":  hexAddr(donor),
			"amount": amount.String(),
		},
	}
}

// DonatedRedeemedEvent reports a donor reclaiming part of their claim.
func DonatedRedeemedEvent(donor, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDonatedRedeemed,
		Attributes: map[string]string{
			"donor":     hexAddr(donor),
			"recipient": hexAddr(recipient),
			"amount":    amount.String(),
		},
	}
}

// RewardWithdrawnEvent reports a sweep of the accrued reward balance.
func RewardWithdrawnEvent(recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardWithdrawn,
		Attributes: map[string]string{
			"recipient": hexAddr(recipient),
			"amount":    amount.String(),
		},
	}
}

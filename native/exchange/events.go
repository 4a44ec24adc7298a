package exchange

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"ideamarket/core/events"
	"ideamarket/core/types"
	"ideamarket/native/registry"
)

const (
	// EventTypeTokensBought is emitted on every settled buy.
	EventTypeTokensBought = "exchange.tokens.bought"
	// EventTypeTokensSold is emitted on every settled sell.
	EventTypeTokensSold = "exchange.tokens.sold"
	// EventTypePlatformFeeWithdrawn is emitted when the owner sweeps a
	// market's accrued platform fee.
	EventTypePlatformFeeWithdrawn = "exchange.platformFee.withdrawn"
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

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// TokensBoughtEvent returns the structured payload for a settled buy.
func TokensBoughtEvent(token *registry.TokenInfo, buyer, recipient [20]byte, amount, cost, tradingFee, platformFee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTokensBought,
		Attributes: map[string]string{
			"token":       hexAddr(token.Address),
			"name":        token.Name,
			"buyer":       hexAddr(buyer),
			"recipient":   hexAddr(recipient),
			"amount":      amount.String(),
			"cost":        cost.String(),
			"tradingFee":  tradingFee.String(),
			"platformFee": platformFee.String(),
		},
	}
}

// TokensSoldEvent returns the structured payload for a settled sell.
func TokensSoldEvent(token *registry.TokenInfo, seller, recipient [20]byte, amount, price, tradingFee, platformFee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTokensSold,
		Attributes: map[string]string{
			"token":       hexAddr(token.Address),
			"name":        token.Name,
			"seller":      hexAddr(seller),
			"recipient":   hexAddr(recipient),
			"amount":      amount.String(),
			"price":       price.String(),
			"tradingFee":  tradingFee.String(),
			"platformFee": platformFee.String(),
		},
	}
}

// PlatformFeeWithdrawnEvent returns the structured payload for a fee sweep.
func PlatformFeeWithdrawnEvent(marketID uint64, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePlatformFeeWithdrawn,
		Attributes: map[string]string{
			"marketId":  strconv.FormatUint(marketID, 10),
			"recipient": hexAddr(recipient),
			"amount":    amount.String(),
		},
	}
}

package registry

import (
	"strconv"

	"ideamarket/core/events"
	"ideamarket/core/types"
)

const (
	// EventTypeMarketAdded is emitted when the owner registers a new market.
	EventTypeMarketAdded = "registry.market.added"
	// EventTypeTokenAdded is emitted when a token is listed under a market.
	EventTypeTokenAdded = "registry.token.added"
	// EventTypeTradingFeeUpdated is emitted when a market's trading fee rate changes.
	EventTypeTradingFeeUpdated = "registry.market.tradingFeeUpdated"
	// EventTypePlatformFeeUpdated is emitted when a market's platform fee rate changes.
	EventTypePlatformFeeUpdated = "registry.market.platformFeeUpdated"
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

// MarketAddedEvent returns the structured payload for a market registration.
func MarketAddedEvent(market *Market) *types.Event {
	return &types.Event{
		Type: EventTypeMarketAdded,
		Attributes: map[string]string{
			"marketId":   strconv.FormatUint(market.ID, 10),
			"name":       market.Name,
			"verifierId": market.VerifierID,
			"baseCost":   market.BaseCost.String(),
			"priceRise":  market.PriceRise.String(),
		},
	}
}

// TokenAddedEvent returns the structured payload for a token listing.
func TokenAddedEvent(token *TokenInfo) *types.Event {
	return &types.Event{
		Type: EventTypeTokenAdded,
		Attributes: map[string]string{
			"marketId": strconv.FormatUint(token.MarketID, 10),
			"tokenId":  strconv.FormatUint(token.ID, 10),
			"name":     token.Name,
			"address":  hexAddr(token.Address),
		},
	}
}

// FeeUpdatedEvent returns the structured payload for a fee-rate change.
func FeeUpdatedEvent(eventType string, marketID uint64, rate uint64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"marketId": strconv.FormatUint(marketID, 10),
			"rate":     strconv.FormatUint(rate, 10),
		},
	}
}

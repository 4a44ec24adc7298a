package rpc

import (
	"net/http"

	"ideamarket/native/registry"
)

type marketAddParams struct {
	Caller            string `json:"caller"`
	Name              string `json:"name"`
	VerifierID        string `json:"verifierId"`
	BaseCost          string `json:"baseCost"`
	PriceRise         string `json:"priceRise"`
	TokensPerInterval string `json:"tokensPerInterval"`
	TradingFeeRate    uint64 `json:"tradingFeeRate"`
	PlatformFeeRate   uint64 `json:"platformFeeRate"`
}

type marketGetParams struct {
	ID   uint64 `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type marketResult struct {
	ID                uint64 `json:"id"`
	Name              string `json:"name"`
	VerifierID        string `json:"verifierId"`
	BaseCost          string `json:"baseCost"`
	PriceRise         string `json:"priceRise"`
	TokensPerInterval string `json:"tokensPerInterval"`
	TradingFeeRate    uint64 `json:"tradingFeeRate"`
	PlatformFeeRate   uint64 `json:"platformFeeRate"`
	NumTokens         uint64 `json:"numTokens"`
}

func marketToResult(m *registry.Market) *marketResult {
	return &marketResult{
		ID:                m.ID,
		Name:              m.Name,
		VerifierID:        m.VerifierID,
		BaseCost:          m.BaseCost.String(),
		PriceRise:         m.PriceRise.String(),
		TokensPerInterval: m.TokensPerInterval.String(),
		TradingFeeRate:    m.TradingFeeRate,
		PlatformFeeRate:   m.PlatformFeeRate,
		NumTokens:         m.NumTokens,
	}
}

type tokenAddParams struct {
	Name     string `json:"name"`
	MarketID uint64 `json:"marketId"`
}

type tokenGetParams struct {
	MarketID uint64 `json:"marketId,omitempty"`
	TokenID  uint64 `json:"tokenId,omitempty"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
}

type tokenResult struct {
	ID       uint64 `json:"id"`
	MarketID uint64 `json:"marketId"`
	Name     string `json:"name"`
	Address  string `json:"address"`
}

func tokenToResult(t *registry.TokenInfo) *tokenResult {
	return &tokenResult{ID: t.ID, MarketID: t.MarketID, Name: t.Name, Address: formatAddress(t.Address)}
}

type setFeeParams struct {
	Caller   string `json:"caller"`
	MarketID uint64 `json:"marketId"`
	Rate     uint64 `json:"rate"`
}

func (s *Server) handleMarketAdd(w http.ResponseWriter, req *RPCRequest) {
	var params marketAddParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseCost, err := parseAmount(params.BaseCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	priceRise, err := parseAmount(params.PriceRise)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	interval, err := parseAmount(params.TokensPerInterval)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	market, err := s.node.AddMarket(caller, params.Name, params.VerifierID, baseCost, priceRise, interval, params.TradingFeeRate, params.PlatformFeeRate)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketToResult(market))
}

func (s *Server) handleMarketGet(w http.ResponseWriter, req *RPCRequest) {
	var params marketGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	var (
		market *registry.Market
		ok     bool
	)
	if params.Name != "" {
		market, ok = s.node.MarketByName(params.Name)
	} else {
		market, ok = s.node.MarketByID(params.ID)
	}
	if !ok {
		writeError(w, http.StatusOK, req.ID, codeNotFound, "market not found", nil)
		return
	}
	writeResult(w, req.ID, marketToResult(market))
}

func (s *Server) handleSetFee(w http.ResponseWriter, req *RPCRequest, trading bool) {
	var params setFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if trading {
		err = s.node.SetTradingFee(caller, params.MarketID, params.Rate)
	} else {
		err = s.node.SetPlatformFee(caller, params.MarketID, params.Rate)
	}
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleTokenAdd(w http.ResponseWriter, req *RPCRequest) {
	var params tokenAddParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	token, err := s.node.AddToken(params.Name, params.MarketID)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenToResult(token))
}

func (s *Server) handleTokenGet(w http.ResponseWriter, req *RPCRequest) {
	var params tokenGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	var (
		token *registry.TokenInfo
		ok    bool
	)
	switch {
	case params.Address != "":
		addr, err := parseAddress(params.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		token, ok = s.node.TokenByAddress(addr)
	case params.Name != "":
		token, ok = s.node.TokenByName(params.MarketID, params.Name)
	default:
		token, ok = s.node.TokenByID(params.MarketID, params.TokenID)
	}
	if !ok {
		writeError(w, http.StatusOK, req.ID, codeNotFound, "token not found", nil)
		return
	}
	writeResult(w, req.ID, tokenToResult(token))
}

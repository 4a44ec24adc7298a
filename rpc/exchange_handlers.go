package rpc

import (
	"math/big"
	"net/http"
)

type quoteParams struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type tradeParams struct {
	Caller    string `json:"caller"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Bound     string `json:"bound"`
	Recipient string `json:"recipient,omitempty"`
}

type platformFeeParams struct {
	MarketID uint64 `json:"marketId"`
}

type withdrawPlatformFeeParams struct {
	Caller    string `json:"caller"`
	MarketID  uint64 `json:"marketId"`
	Recipient string `json:"recipient"`
}

type tokenBalanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

func (s *Server) handleQuote(w http.ResponseWriter, req *RPCRequest, buy bool) {
	var params quoteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	token, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var value *big.Int
	if buy {
		value, err = s.node.GetCostForBuyingTokens(token, amount)
	} else {
		value, err = s.node.GetPriceForSellingTokens(token, amount)
	}
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, value.String())
}

// parseTrade resolves the shared trade parameters. The recipient defaults to
// the caller.
func parseTrade(params *tradeParams) (caller, token, recipient [20]byte, amount, bound *big.Int, err error) {
	if caller, err = parseAddress(params.Caller); err != nil {
		return
	}
	if token, err = parseAddress(params.Token); err != nil {
		return
	}
	if amount, err = parseAmount(params.Amount); err != nil {
		return
	}
	if bound, err = parseAmount(params.Bound); err != nil {
		return
	}
	recipient = caller
	if params.Recipient != "" {
		recipient, err = parseAddress(params.Recipient)
	}
	return
}

func (s *Server) handleBuy(w http.ResponseWriter, req *RPCRequest) {
	var params tradeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, token, recipient, amount, maxCost, err := parseTrade(&params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	cost, err := s.node.BuyTokens(caller, token, amount, maxCost, recipient)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cost.String())
}

func (s *Server) handleSell(w http.ResponseWriter, req *RPCRequest) {
	var params tradeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, token, recipient, amount, minPrice, err := parseTrade(&params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := s.node.SellTokens(caller, token, amount, minPrice, recipient)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, price.String())
}

func (s *Server) handlePlatformFee(w http.ResponseWriter, req *RPCRequest) {
	var params platformFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	s.handleBigQuery(w, req, func() (*big.Int, error) {
		return s.node.PlatformFee(params.MarketID)
	})
}

func (s *Server) handleWithdrawPlatformFee(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawPlatformFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	swept, err := s.node.WithdrawPlatformFee(caller, params.MarketID, recipient)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, swept.String())
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, req *RPCRequest) {
	var params tokenBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	token, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	holder, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.handleBigQuery(w, req, func() (*big.Int, error) {
		return s.node.TokenBalance(token, holder)
	})
}

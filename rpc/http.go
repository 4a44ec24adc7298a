package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ideamarket/core"
	nativecommon "ideamarket/native/common"
	"ideamarket/native/exchange"
	"ideamarket/native/registry"
	"ideamarket/native/reserve"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32010
	codeSlippage       = -32020
	codeInsufficient   = -32030
	codeNameRejected   = -32040
	codePaused         = -32050
)

type Server struct {
	node      *core.Node
	authToken string
	log       *slog.Logger
}

// NewServer wraps a node in a JSON-RPC surface. Methods that mutate state
// require the configured bearer token; an empty token disables them.
func NewServer(node *core.Node, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, authToken: strings.TrimSpace(authToken), log: logger}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint at / and the
// Prometheus scrape endpoint at /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeNodeError maps engine errors onto stable RPC codes.
func writeNodeError(w http.ResponseWriter, id interface{}, err error) {
	code := codeServerError
	status := http.StatusOK
	switch {
	case errors.Is(err, nativecommon.ErrUnauthorized), errors.Is(err, nativecommon.ErrNotPendingOwner):
		code = codeUnauthorized
	case errors.Is(err, nativecommon.ErrModulePaused):
		code = codePaused
	case errors.Is(err, registry.ErrMarketNotFound), errors.Is(err, exchange.ErrUnknownToken):
		code = codeNotFound
	case errors.Is(err, registry.ErrNameRejected), errors.Is(err, registry.ErrMarketExists):
		code = codeNameRejected
	case errors.Is(err, exchange.ErrSlippageExceeded):
		code = codeSlippage
	case errors.Is(err, exchange.ErrInsufficientTokens),
		errors.Is(err, reserve.ErrInsufficientCollateral),
		errors.Is(err, reserve.ErrInsufficientReserve),
		errors.Is(err, reserve.ErrInsufficientDonated):
		code = codeInsufficient
	case errors.Is(err, registry.ErrInvalidParameters),
		errors.Is(err, exchange.ErrInvalidAmount),
		errors.Is(err, reserve.ErrInvalidAmount):
		code = codeInvalidParams
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "failed to read request body", err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutating[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	switch req.Method {
	case "market_add":
		s.handleMarketAdd(w, req)
	case "market_get":
		s.handleMarketGet(w, req)
	case "market_count":
		writeResult(w, req.ID, s.node.NumMarkets())
	case "market_setTradingFee":
		s.handleSetFee(w, req, true)
	case "market_setPlatformFee":
		s.handleSetFee(w, req, false)
	case "token_add":
		s.handleTokenAdd(w, req)
	case "token_get":
		s.handleTokenGet(w, req)
	case "token_balance":
		s.handleTokenBalance(w, req)
	case "exchange_getBuyCost":
		s.handleQuote(w, req, true)
	case "exchange_getSellPrice":
		s.handleQuote(w, req, false)
	case "exchange_buy":
		s.handleBuy(w, req)
	case "exchange_sell":
		s.handleSell(w, req)
	case "exchange_platformFee":
		s.handlePlatformFee(w, req)
	case "exchange_withdrawPlatformFee":
		s.handleWithdrawPlatformFee(w, req)
	case "reserve_donate":
		s.handleDonate(w, req)
	case "reserve_redeemDonated":
		s.handleRedeemDonated(w, req)
	case "reserve_donatedBy":
		s.handleDonatedBy(w, req)
	case "reserve_totalDonated":
		s.handleBigQuery(w, req, s.node.TotalDonated)
	case "reserve_poolValue":
		s.handleBigQuery(w, req, s.node.ReservePoolValue)
	case "reserve_withdrawReward":
		s.handleWithdrawReward(w, req)
	case "collateral_mint":
		s.handleCollateralMint(w, req)
	case "collateral_approve":
		s.handleCollateralApprove(w, req)
	case "collateral_balance":
		s.handleCollateralBalance(w, req)
	case "module_accounts":
		s.handleModuleAccounts(w, req)
	case "admin_pause":
		s.handlePauseToggle(w, req, true)
	case "admin_resume":
		s.handlePauseToggle(w, req, false)
	case "admin_setPoolRate":
		s.handleSetPoolRate(w, req)
	case "admin_setPoolRewardDrip":
		s.handleSetPoolRewardDrip(w, req)
	case "admin_transferOwnership":
		s.handleTransferOwnership(w, req)
	case "admin_acceptOwnership":
		s.handleAcceptOwnership(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

// mutating lists the methods that require the bearer token.
var mutating = map[string]bool{
	"market_add":                   true,
	"market_setTradingFee":         true,
	"market_setPlatformFee":        true,
	"token_add":                    true,
	"exchange_buy":                 true,
	"exchange_sell":                true,
	"exchange_withdrawPlatformFee": true,
	"reserve_donate":               true,
	"reserve_redeemDonated":        true,
	"reserve_withdrawReward":       true,
	"collateral_mint":              true,
	"collateral_approve":           true,
	"admin_pause":                  true,
	"admin_resume":                 true,
	"admin_setPoolRate":            true,
	"admin_setPoolRewardDrip":      true,
	"admin_transferOwnership":      true,
	"admin_acceptOwnership":        true,
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "mutating methods disabled: no auth token configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

// Shared parameter helpers.

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if !gethcommon.IsHexAddress(trimmed) {
		return out, fmt.Errorf("invalid address %q", value)
	}
	copy(out[:], gethcommon.HexToAddress(trimmed).Bytes())
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return gethcommon.BytesToAddress(addr[:]).Hex()
}

// decodeParams unmarshals the single positional object parameter.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected one parameter object, got %d", len(req.Params))
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleBigQuery(w http.ResponseWriter, req *RPCRequest, query func() (*big.Int, error)) {
	value, err := query()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, value.String())
}

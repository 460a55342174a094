// Package api is the node's HTTP surface: REST endpoints for relaying
// matches and cancellations and for reading exchange state, a WebSocket
// stream of committed matches, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/swap"
)

const (
	maxBodyBytes       = 1 << 20
	defaultMatchLimit  = 50
	maxMatchLimit      = 500
	requestIDHeader    = "X-Request-ID"
	codeBadRequest     = "BadRequest"
	codeInvalidNonce   = "InvalidNonce"
	codeInvalidAddress = "InvalidAddress"
)

// Server handles REST API and WebSocket connections
type Server struct {
	app     *swap.App
	router  *mux.Router
	hub     *Hub // WebSocket hub
	metrics *Metrics
	origins []string
	log     *zap.SugaredLogger
	http    *http.Server
}

// NewServer creates a new API server. allowedOrigins feeds the CORS policy.
func NewServer(app *swap.App, allowedOrigins []string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("api")
	metrics := NewMetrics()

	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(logger, metrics),
		metrics: metrics,
		origins: allowedOrigins,
		log:     logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)
	s.router.Use(s.metrics.Instrument)

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Exchange endpoints
	api.HandleFunc("/exchange", s.handleExchangeInfo).Methods("GET")
	api.HandleFunc("/orders/hash", s.handleHashOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{maker}/{hash}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/match", s.handleMatch).Methods("POST")
	api.HandleFunc("/matches", s.handleGetMatches).Methods("GET")
	api.HandleFunc("/matchers/{address}/nonce", s.handleGetNonce).Methods("GET")

	// Proxy endpoints
	api.HandleFunc("/proxies", s.handleRegisterProxy).Methods("POST")
	api.HandleFunc("/proxies/{owner}", s.handleGetProxy).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// Hub returns the WebSocket hub; wire app match records into BroadcastMatch.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router behind the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start starts the WebSocket hub and serves until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infow("api_listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestID tags each request with an id, echoed in the response header and
// in the access log.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugw("http_request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config()
	d := s.app.Deployment()
	x := s.app.Exchange()

	regs := x.Registries()
	registries := make([]string, len(regs))
	for i, reg := range regs {
		registries[i] = reg.Hex()
	}

	response := ExchangeInfo{
		Network:            cfg.Exchange.Network,
		Name:               cfg.Exchange.Name,
		Version:            cfg.Exchange.Version,
		ChainID:            cfg.Exchange.ChainID.String(),
		PersonalSignPrefix: cfg.Exchange.PersonalSignPrefix,
		Exchange:           x.Address().Hex(),
		Registries:         registries,
		Atomicizer:         d.Atomicizer.Hex(),
		Static:             d.Static.Hex(),
		Market:             d.Market.Hex(),
		Relayer:            s.app.Relayer().Hex(),
	}
	if d.ERC20 != (common.Address{}) {
		response.ERC20 = d.ERC20.Hex()
		response.ERC721 = d.ERC721.Hex()
	}

	respondJSON(w, response)
}

func (s *Server) handleHashOrder(w http.ResponseWriter, r *http.Request) {
	var payload transaction.OrderPayload
	if err := decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	order, err := payload.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	hash, toSign, err := s.app.HashOrder(order)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	typed, err := s.app.Exchange().Signer().OrderToJSON(order.EIP712())
	if err != nil {
		respondError(w, http.StatusInternalServerError, string(exchange.CodeInternal), err.Error())
		return
	}

	respondJSON(w, OrderHashResponse{
		Hash:       hash.Hex(),
		HashToSign: toSign.Hex(),
		TypedData:  json.RawMessage(typed),
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	maker, ok := parseAddress(w, vars["maker"])
	if !ok {
		return
	}
	hashBytes, err := hexToHash(vars["hash"])
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	status, err := s.app.OrderStatus(maker, hashBytes)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	respondJSON(w, OrderStatus{
		Hash:     status.Hash.Hex(),
		Maker:    status.Maker.Hex(),
		Fill:     status.Fill.String(),
		Approved: status.Approved,
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	tx, ok := readTransaction(w, r)
	if !ok {
		return
	}

	ev, err := s.app.SubmitMatch(r.Context(), tx)
	if err != nil {
		s.metrics.recordMatch(errorCode(err))
		s.respondFailure(w, err)
		return
	}
	s.metrics.recordMatch("ok")

	respondJSON(w, MatchResponse{
		Status:     "matched",
		FirstHash:  ev.FirstHash.Hex(),
		SecondHash: ev.SecondHash.Hex(),
		FirstFill:  ev.NewFirstFill.String(),
		SecondFill: ev.NewSecondFill.String(),
		Matcher:    ev.Matcher.Hex(),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	tx, ok := readTransaction(w, r)
	if !ok {
		return
	}

	hash, err := s.app.SubmitCancel(r.Context(), tx)
	if err != nil {
		s.metrics.recordCancel(errorCode(err))
		s.respondFailure(w, err)
		return
	}
	s.metrics.recordCancel("ok")

	respondJSON(w, CancelResponse{Status: "cancelled", OrderHash: hash.Hex()})
}

func (s *Server) handleGetMatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMatchLimit)
	}

	records, err := s.app.RecentMatches(limit)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	response := make([]MatchInfo, len(records))
	for i, rec := range records {
		response[i] = matchInfo(rec)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	matcher, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	nonce, err := s.app.Nonce(matcher)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, NonceInfo{Matcher: matcher.Hex(), Nonce: nonce})
}

func (s *Server) handleRegisterProxy(w http.ResponseWriter, r *http.Request) {
	var req ProxyRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}

	proxy, err := s.app.RegisterProxy(r.Context(), owner)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, ProxyInfo{Owner: owner.Hex(), Proxy: proxy.Hex()})
}

func (s *Server) handleGetProxy(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(w, mux.Vars(r)["owner"])
	if !ok {
		return
	}
	proxy, err := s.app.Proxy(owner)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if proxy == (common.Address{}) {
		respondError(w, http.StatusNotFound, string(exchange.CodeProxyNotFound), "no proxy registered for "+owner.Hex())
		return
	}
	respondJSON(w, ProxyInfo{Owner: owner.Hex(), Proxy: proxy.Hex()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// errorCode names err for clients and metrics.
func errorCode(err error) string {
	switch {
	case errors.Is(err, swap.ErrMalformed):
		return codeBadRequest
	case errors.Is(err, swap.ErrMatcherSignature), errors.Is(err, swap.ErrCancelSignature):
		return string(exchange.CodeInvalidSignature)
	case errors.Is(err, swap.ErrInvalidNonce):
		return codeInvalidNonce
	}
	return string(exchange.Reason(err))
}

func statusFor(code string) int {
	switch code {
	case codeBadRequest:
		return http.StatusBadRequest
	case string(exchange.CodeInvalidSignature):
		return http.StatusUnauthorized
	case codeInvalidNonce:
		return http.StatusConflict
	case string(exchange.CodeInternal):
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

// respondFailure answers with the error's taxonomy code.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.log.Errorw("request_failed", "err", err)
	}
	respondError(w, status, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func readTransaction(w http.ResponseWriter, r *http.Request) (*transaction.SignedTransaction, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "failed to read body: "+err.Error())
		return nil, false
	}
	tx, err := transaction.Deserialize(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return nil, false
	}
	return tx, true
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, codeInvalidAddress, "invalid address: "+s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func hexToHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, errors.New("hash must be 32 bytes")
	}
	return common.BytesToHash(b), nil
}

// Package api exposes the order gateway over HTTP: order preview and placement,
// order management, P&L recording, state inspection, metrics and a live decision feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/exchange"
	"github.com/chidi150c/tradegate/internal/guards"
	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/risk"
	"github.com/chidi150c/tradegate/internal/tradeplan"
)

const maxBodyBytes = 1 << 16

// Server handles REST API and WebSocket connections
type Server struct {
	gw      *guards.SafeExchange
	hub     *Hub
	router  *mux.Router
	log     *zap.Logger
	origins []string
}

// NewServer wires routes for gw. hub may be shared with the gateway's decision hook.
func NewServer(gw *guards.SafeExchange, hub *Hub, log *zap.Logger, allowedOrigins []string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	s := &Server{
		gw:      gw,
		hub:     hub,
		router:  mux.NewRouter(),
		log:     log,
		origins: allowedOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders/preview", s.handlePreview).Methods("POST")
	api.HandleFunc("/orders", s.handlePlace).Methods("POST")
	api.HandleFunc("/orders", s.handleOrders).Methods("GET")
	api.HandleFunc("/orders/cancel-all", s.handleCancelAll).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/orders/{id}/modify", s.handleModify).Methods("POST")
	api.HandleFunc("/pnl", s.handleRecordPnL).Methods("POST")
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/plans", s.handlePlans).Methods("GET")
	api.HandleFunc("/plans/{id}/filled", s.handleMarkFilled).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("api server stopping")
		return srv.Shutdown(shutCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}
	v, err := s.gw.Preview(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, VerdictResponse{Verdict: v, Summary: v.Result.Format()})
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var body OrderRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toOrder()
	if err != nil {
		s.respondErr(w, err)
		return
	}

	p, err := s.gw.Place(r.Context(), req, body.Reason)
	if err != nil {
		var ue *guards.UnrecordedError
		if errors.As(err, &ue) {
			// the order is live at the exchange; the caller needs the ack as well
			respondJSON(w, http.StatusConflict, struct {
				ErrorResponse
				Placement guards.Placement `json:"placement"`
			}{ErrorResponse{Error: "order not recorded", Message: err.Error()}, p})
			return
		}
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PlacementResponse{Placement: p, Summary: p.Result.Format()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body CancelRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	if err := s.gw.Cancel(r.Context(), id, body.Reason); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"order_id": id, "status": string(exchange.StatusCancelled)})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body ModifyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	change := guards.OrderChange{Quantity: body.Quantity, LimitPrice: body.LimitPrice, StopPrice: body.StopPrice}
	m, err := s.gw.Modify(r.Context(), id, change, body.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ModifyResponse{Modification: m, Summary: m.Result.Format()})
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	var body CancelRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	ids, err := s.gw.CancelAll(r.Context(), body.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, CancelAllResponse{Cancelled: ids, Count: len(ids)})
}

// handleOrders lists exchange orders. ?status=open keeps working orders only.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	openOnly := false
	switch q.Get("status") {
	case "", "all":
	case "open":
		openOnly = true
	default:
		respondError(w, http.StatusBadRequest, "invalid query", "status must be open or all")
		return
	}
	orders, err := s.gw.Orders(r.Context(), q.Get("symbol"), openOnly)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := s.gw.Order(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRecordPnL(w http.ResponseWriter, r *http.Request) {
	var body PnLRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.gw.RecordFill(r.Context(), body.Amount, body.OrderID); err != nil {
		s.respondErr(w, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.gw.Day().Snapshot()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	start, next := s.gw.Day().Bounds()
	lim := s.gw.Engine().Limits()
	respondJSON(w, http.StatusOK, StateResponse{
		DailyState:   snap,
		DayStart:     start,
		NextRollover: next,
		Limits: LimitsInfo{
			MaxOrderValue:   lim.MaxOrderValue.String(),
			DailyLossLimit:  lim.DailyLossLimit.String(),
			MaxPositionPct:  lim.MaxPositionPct.String(),
			DuplicateWindow: s.gw.Engine().DuplicateWindow().String(),
		},
		Breaker: s.gw.BreakerState(),
	})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	plans := []tradeplan.Plan{}
	if store := s.gw.Plans(); store != nil {
		plans = store.Active()
	}
	respondJSON(w, http.StatusOK, plans)
}

func (s *Server) handleMarkFilled(w http.ResponseWriter, r *http.Request) {
	var body CancelRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	p, err := s.gw.MarkFilled(r.Context(), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "ws_clients": s.hub.Clients()})
}

// ==============================
// Helper Functions
// ==============================

func (b OrderRequest) toOrder() (order.Request, error) {
	action, err := order.ParseAction(b.Action)
	if err != nil {
		return order.Request{}, err
	}
	typ, err := order.ParseType(b.OrderType)
	if err != nil {
		return order.Request{}, err
	}
	return order.New(b.Symbol, action, b.Quantity, typ, b.LimitPrice, b.StopPrice)
}

func (s *Server) decodeOrder(w http.ResponseWriter, r *http.Request) (order.Request, bool) {
	var body OrderRequest
	if !decodeBody(w, r, &body) {
		return order.Request{}, false
	}
	req, err := body.toOrder()
	if err != nil {
		s.respondErr(w, err)
		return order.Request{}, false
	}
	return req, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// statusFor maps gateway errors to HTTP statuses.
func statusFor(err error) (int, string) {
	var ve *order.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "invalid order"
	case errors.Is(err, guards.ErrRateLimited):
		return http.StatusTooManyRequests, "rate limited"
	case errors.Is(err, guards.ErrBreakerOpen):
		return http.StatusServiceUnavailable, "circuit breaker open"
	case errors.Is(err, guards.ErrUnrecorded):
		return http.StatusConflict, "order not recorded"
	case errors.Is(err, risk.ErrCorruptState):
		return http.StatusInternalServerError, "daily state corrupt"
	case errors.Is(err, exchange.ErrUnknownOrder):
		return http.StatusNotFound, "unknown order"
	case errors.Is(err, exchange.ErrNotCancelable):
		return http.StatusConflict, "order not cancelable"
	case errors.Is(err, exchange.ErrNotModifiable):
		return http.StatusConflict, "order not modifiable"
	case errors.Is(err, tradeplan.ErrUnknownPlan):
		return http.StatusNotFound, "unknown plan"
	case errors.Is(err, tradeplan.ErrPlanArchived):
		return http.StatusConflict, "plan already archived"
	case errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrInsufficientPosition),
		errors.Is(err, exchange.ErrNoPrice):
		return http.StatusUnprocessableEntity, "rejected by exchange"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status, label := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("error_kind", label), zap.Error(err))
	}
	respondError(w, status, label, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

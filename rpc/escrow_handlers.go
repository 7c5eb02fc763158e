package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"peerescrow/core/events"
	"peerescrow/crypto"
	"peerescrow/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
	codeEscrowUnavailable   = -32026
)

// maxEventPage caps a single escrow_listEvents response.
const maxEventPage = 500

type escrowLookupParams struct {
	Address string `json:"address,omitempty"`
	Seller  string `json:"seller,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

type balanceParams struct {
	Owner    string `json:"owner"`
	Currency string `json:"currency,omitempty"`
}

type balanceResult struct {
	Owner    string `json:"owner"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

type deriveResult struct {
	Config       string `json:"config"`
	Escrow       string `json:"escrow,omitempty"`
	DisputeVault string `json:"disputeVault,omitempty"`
}

type listEventsParams struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit,omitempty"`
}

type listEventsResult struct {
	Events       []events.Record `json:"events"`
	LastSequence uint64          `json:"lastSequence"`
}

type escrowErrorData struct {
	Kind   string      `json:"kind"`
	Error  string      `json:"error"`
	Escrow *escrowJSON `json:"escrow,omitempty"`
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleEscrowSubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params SubmitParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	signed, err := params.Decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	op := signed.Request.Op
	_, span := s.tracer.Start(r.Context(), "escrow.submit", trace.WithAttributes(
		attribute.String("escrow.op", op.String()),
		attribute.String("escrow.seller", optionalAddress(signed.Request.Seller)),
		attribute.String("escrow.order_id", signed.Request.OrderID),
	))
	res, err := s.dispatcher.Submit(signed)
	kind := escrow.Kind(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
	span.SetAttributes(attribute.String("escrow.outcome", outcomeOf(kind)))
	span.End()
	s.metrics.RecordTransition(op.String(), kind)
	s.recordAudit(r, signed.Request, kind)

	logger := s.logger.With(
		slog.String("requestId", RequestIDFrom(r.Context())),
		slog.String("op", op.String()),
		slog.String("seller", optionalAddress(signed.Request.Seller)),
		slog.String("orderId", signed.Request.OrderID),
	)
	if err != nil {
		logger.Warn("escrow request rejected", slog.String("kind", kind), slog.Any("error", err))
		s.writeEscrowError(w, req.ID, err, signed.Request)
		return
	}
	logger.Info("escrow request applied")
	writeResult(w, req.ID, formatResult(res))
}

func (s *Server) recordAudit(r *http.Request, req escrow.Request, kind string) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		RequestID: RequestIDFrom(r.Context()),
		Op:        req.Op.String(),
		Caller:    req.Caller.String(),
		Seller:    optionalAddress(req.Seller),
		OrderID:   req.OrderID,
		Outcome:   outcomeOf(kind),
		ErrorKind: kind,
	}
	if err := s.audit.Insert(r.Context(), entry); err != nil {
		s.logger.Error("audit insert failed", slog.Any("error", err))
	}
}

func outcomeOf(kind string) string {
	if kind == "" {
		return "ok"
	}
	return "rejected"
}

func (s *Server) handleEscrowGetConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowLookupParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := s.resolveConfigAddress(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	snap, err := s.engine.ConfigSnapshot(addr)
	if err != nil {
		s.writeEscrowError(w, req.ID, err, escrow.Request{})
		return
	}
	writeResult(w, req.ID, configSnapshotJSON{
		Config:      formatConfigJSON(snap.Config),
		Data:        encodeData(snap.Data),
		PoolBalance: strconv.FormatUint(snap.PoolBalance, 10),
	})
}

func (s *Server) handleEscrowGetEscrow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowLookupParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := s.resolveEscrowAddress(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	snap, err := s.engine.EscrowSnapshot(addr)
	if err != nil {
		s.writeEscrowError(w, req.ID, err, escrow.Request{})
		return
	}
	writeResult(w, req.ID, escrowSnapshotJSON{
		Escrow:         formatEscrowJSON(snap.Escrow),
		Data:           encodeData(snap.Data),
		CustodyBalance: strconv.FormatUint(snap.CustodyBalance, 10),
	})
}

func (s *Server) handleEscrowDeriveAddress(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowLookupParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := crypto.ParseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", fmt.Sprintf("seller: %v", err))
		return
	}
	configAddr, err := s.engine.ConfigAddress(seller)
	if err != nil {
		s.writeEscrowError(w, req.ID, err, escrow.Request{})
		return
	}
	out := deriveResult{Config: configAddr.String()}
	if params.OrderID != "" {
		escrowAddr, err := s.engine.EscrowAddress(escrow.Ref{Seller: seller, OrderID: params.OrderID})
		if err != nil {
			s.writeEscrowError(w, req.ID, err, escrow.Request{})
			return
		}
		vault, err := s.engine.Deriver().DisputeVaultAddress(escrowAddr)
		if err != nil {
			s.writeEscrowError(w, req.ID, err, escrow.Request{})
			return
		}
		out.Escrow = escrowAddr.String()
		out.DisputeVault = vault.String()
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleEscrowGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := crypto.ParseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", fmt.Sprintf("owner: %v", err))
		return
	}
	currency, err := escrow.ParseCurrency(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.engine.Balance(owner, currency)
	if err != nil {
		s.writeEscrowError(w, req.ID, err, escrow.Request{})
		return
	}
	writeResult(w, req.ID, balanceResult{
		Owner:    owner.String(),
		Currency: currency.String(),
		Balance:  strconv.FormatUint(balance, 10),
	})
}

func (s *Server) handleEscrowListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeEscrowUnavailable, "unavailable", "event recorder not configured")
		return
	}
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	if params.Limit <= 0 || params.Limit > maxEventPage {
		params.Limit = maxEventPage
	}
	writeResult(w, req.ID, listEventsResult{
		Events:       s.recorder.Since(params.After, params.Limit),
		LastSequence: s.recorder.LastSequence(),
	})
}

func (s *Server) resolveConfigAddress(params escrowLookupParams) (solana.PublicKey, error) {
	if strings.TrimSpace(params.Address) != "" {
		return crypto.ParseAddress(params.Address)
	}
	seller, err := crypto.ParseAddress(params.Seller)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("address or seller required: %w", err)
	}
	return s.engine.ConfigAddress(seller)
}

func (s *Server) resolveEscrowAddress(params escrowLookupParams) (solana.PublicKey, error) {
	if strings.TrimSpace(params.Address) != "" {
		return crypto.ParseAddress(params.Address)
	}
	seller, err := crypto.ParseAddress(params.Seller)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("address or seller required: %w", err)
	}
	return s.engine.EscrowAddress(escrow.Ref{Seller: seller, OrderID: params.OrderID})
}

// escrowErrorStatus maps an error kind to its HTTP status and JSON-RPC code.
func escrowErrorStatus(kind string) (int, int, string) {
	switch kind {
	case escrow.KindUnauthorized:
		return http.StatusForbidden, codeEscrowForbidden, "forbidden"
	case escrow.KindNotFound, escrow.KindConfigNotFound:
		return http.StatusNotFound, codeEscrowNotFound, "not_found"
	case escrow.KindWrongState, escrow.KindDuplicateOrder, escrow.KindAlreadyInitialized,
		escrow.KindTooEarly, escrow.KindDispute, escrow.KindInsufficientBalance:
		return http.StatusConflict, codeEscrowConflict, "conflict"
	case escrow.KindInvalidAmount, escrow.KindAmountMismatch, escrow.KindInvalidArgument:
		return http.StatusBadRequest, codeEscrowInvalidParams, "invalid_params"
	case escrow.KindPaused:
		return http.StatusServiceUnavailable, codeEscrowUnavailable, "paused"
	default:
		return http.StatusInternalServerError, codeEscrowInternal, "internal_error"
	}
}

// writeEscrowError reports err with its kind. When the request targets an
// existing escrow, its current state is attached so clients can reconcile.
func (s *Server) writeEscrowError(w http.ResponseWriter, id interface{}, err error, target escrow.Request) {
	if err == nil {
		return
	}
	kind := escrow.Kind(err)
	status, code, message := escrowErrorStatus(kind)
	data := escrowErrorData{Kind: kind, Error: err.Error()}
	if kind == escrow.KindInternal {
		data.Error = "internal error"
		s.logger.Error("escrow engine failure", slog.Any("error", err))
	}
	if !target.Seller.IsZero() && target.OrderID != "" && kind != escrow.KindNotFound {
		if current, lookupErr := s.engine.Escrow(target.Ref()); lookupErr == nil {
			formatted := formatEscrowJSON(current)
			data.Escrow = &formatted
		} else if !errors.Is(lookupErr, escrow.ErrEscrowNotFound) {
			s.logger.Warn("escrow lookup after failure", slog.Any("error", lookupErr))
		}
	}
	writeError(w, status, id, code, message, data)
}

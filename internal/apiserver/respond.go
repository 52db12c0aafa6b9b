package apiserver

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"

	"github.com/coldbell/chronos/backend/internal/chronos"
	"github.com/coldbell/chronos/backend/internal/errs"
)

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
}

const (
	kindAccountNotFound = "AccountNotFound"
	kindAlreadyExists   = "AlreadyExists"
	kindReadOnly        = "ReadOnly"
)

// statusFor maps an error to its HTTP status and reported kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chronos.ErrAccountNotFound):
		return http.StatusNotFound, kindAccountNotFound
	case errors.Is(err, chronos.ErrAlreadyExists):
		return http.StatusConflict, kindAlreadyExists
	case errors.Is(err, chronos.ErrReadOnly):
		return http.StatusServiceUnavailable, kindReadOnly
	}
	kind := errs.KindOf(err)
	switch kind {
	case errs.KindReservationNotFound, errs.KindBatchNotFound:
		return http.StatusNotFound, string(kind)
	case errs.KindInvalidArgument, errs.KindInvalidBatchSize, errs.KindAuctionNotStarted:
		return http.StatusBadRequest, string(kind)
	case errs.KindReservationNotConfirmed, errs.KindCannotCancelExecuted, errs.KindBatchNotPending:
		return http.StatusConflict, string(kind)
	case errs.KindChainUnavailable, errs.KindStaleCache:
		return http.StatusServiceUnavailable, string(kind)
	case errs.KindMalformedAccount:
		return http.StatusUnprocessableEntity, string(kind)
	}
	return http.StatusInternalServerError, "Internal"
}

func (s *Service) respondError(w http.ResponseWriter, err error) {
	code, kind := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", kind, "err", err)
	}
	s.respondJSON(w, code, errorResponse{Error: err.Error(), Kind: kind, Subject: errs.SubjectOf(err)})
}

func (s *Service) respondMessage(w http.ResponseWriter, code int, kind, message string) {
	s.respondJSON(w, code, errorResponse{Error: message, Kind: kind})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}

func invalid(subject, format string, args ...any) error {
	return errs.New(errs.KindInvalidArgument, subject, format, args...)
}

func decodeJSONBody(r *http.Request, destination any) error {
	if r.Body == nil {
		return invalid("", "request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(destination); err != nil {
		return errs.Wrap(errs.KindInvalidArgument, "", err, "invalid request body")
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != io.EOF {
		return invalid("", "invalid request body: multiple JSON values")
	}
	return nil
}

// decodeAndValidate decodes the body and applies its validate tags.
func (s *Service) decodeAndValidate(r *http.Request, destination any) error {
	if err := decodeJSONBody(r, destination); err != nil {
		return err
	}
	if err := s.validate.Struct(destination); err != nil {
		return errs.Wrap(errs.KindInvalidArgument, "", err, "invalid request")
	}
	return nil
}

func pathKey(r *http.Request, name string) (solana.PublicKey, error) {
	raw := mux.Vars(r)[name]
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid %s", name)
	}
	return key, nil
}

// queryKey returns the base58 key under name, or "" when absent.
func queryKey(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", nil
	}
	if _, err := solana.PublicKeyFromBase58(raw); err != nil {
		return "", errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid %s", name)
	}
	return raw, nil
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid %s", key)
	}
	return value, nil
}

func parseOptionalInt64(r *http.Request, key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid %s", key)
	}
	return value, nil
}

func parsePagination(r *http.Request) (limit, offset int, err error) {
	if limit, err = parseOptionalInt(r, "limit", 0); err != nil {
		return 0, 0, err
	}
	if offset, err = parseOptionalInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(started).String(),
		)
	})
}

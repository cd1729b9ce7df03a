// Package handler implements the HTTP API over the market engine.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/engine"
	"github.com/alanyoungcy/predictionamm/internal/server/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// coinExp is the decimal exponent of one smallest unit in coins.
const coinExp = -9

// Clock returns the instant an invocation executes at.
type Clock func() time.Time

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindState:
		return http.StatusConflict
	case domain.KindSolvency:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError reports an engine rejection with the status of its kind.
// Internal failures are logged and their detail is not sent to the client.
func writeEngineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, kind, "internal error")
		return
	}
	writeError(w, statusFor(kind), kind, err.Error())
}

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// call builds the invocation context for r.
func call(r *http.Request, now Clock, attached uint64) engine.Call {
	return engine.Call{
		Caller:   middleware.CallerFrom(r.Context()),
		Now:      now(),
		Attached: attached,
	}
}

// Amount is a coin amount in a request body. Exactly one of Units (a
// decimal string of smallest units) and Coins (a decimal string of whole
// coins such as "1.5") must be set.
type Amount struct {
	Units string `json:"amount,omitempty"`
	Coins string `json:"amount_coins,omitempty"`
}

// Value returns the amount in smallest units.
func (a Amount) Value() (uint64, error) {
	switch {
	case a.Units != "" && a.Coins != "":
		return 0, fmt.Errorf("%w: set amount or amount_coins, not both", domain.ErrInvalidInput)
	case a.Units != "":
		v, err := strconv.ParseUint(strings.TrimSpace(a.Units), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q", domain.ErrInvalidInput, a.Units)
		}
		return v, nil
	case a.Coins != "":
		return parseCoins(a.Coins)
	default:
		return 0, nil
	}
}

var maxUnits = new(big.Int).SetUint64(^uint64(0))

// parseCoins converts a decimal coin string to smallest units. Fractions
// finer than one unit are rejected rather than rounded.
func parseCoins(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return 0, fmt.Errorf("%w: amount_coins %q", domain.ErrInvalidInput, s)
	}
	units := d.Shift(-coinExp)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount_coins %q has more than 9 decimals", domain.ErrInvalidInput, s)
	}
	bi := units.BigInt()
	if bi.Cmp(maxUnits) > 0 {
		return 0, domain.ErrOverflow
	}
	return bi.Uint64(), nil
}

// coins renders smallest units as a decimal coin string.
func coins(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), coinExp).String()
}

// odds renders a multiplier with four decimals.
func odds(m float64) string {
	return decimal.NewFromFloat(m).StringFixed(4)
}

// queryUint parses an optional unsigned query parameter.
func queryUint(r *http.Request, name string) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, name, v)
	}
	return n, nil
}

// queryLimit parses the limit parameter; the engine applies its own bounds.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// marketID reads the {id} path parameter.
func marketID(r *http.Request) (uint64, error) {
	return engine.ParseMarketID(r.PathValue("id"))
}

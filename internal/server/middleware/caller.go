package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CallerHeader carries the identity of the account invoking an operation.
// It is set by an upstream gateway that has already authenticated the user.
const CallerHeader = "X-Caller"

type callerKey struct{}

// Caller stores the normalized caller identity in the request context.
// Hex account addresses are converted to their EIP-55 checksum form so the
// same account always maps to the same ledger key.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := NormalizeAddress(r.Header.Get(CallerHeader)); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), callerKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// CallerFrom returns the caller set by Caller, or "".
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

// NormalizeAddress trims v and checksums it when it is a hex address.
// Other identifiers are returned trimmed.
func NormalizeAddress(v string) string {
	v = strings.TrimSpace(v)
	if common.IsHexAddress(v) {
		return common.HexToAddress(v).Hex()
	}
	return v
}

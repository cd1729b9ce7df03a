package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every rejection returned by the engine wraps exactly one of
// these so callers can classify it with errors.Is or KindOf.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock already held")
)

// Specific rejections.
var (
	ErrMarketNotFound  = fmt.Errorf("%w: market not found", ErrNotFound)
	ErrBetNotFound     = fmt.Errorf("%w: no bet found for user", ErrNotFound)
	ErrNotOwner        = fmt.Errorf("%w: caller is not the owner", ErrUnauthorized)
	ErrNotAdmin        = fmt.Errorf("%w: caller is neither owner nor admin", ErrUnauthorized)
	ErrEmptyDesc       = fmt.Errorf("%w: description is required", ErrInvalidInput)
	ErrBadDuration     = fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	ErrBadCutoff       = fmt.Errorf("%w: betting cutoff offset must be positive", ErrInvalidInput)
	ErrCutoffInPast    = fmt.Errorf("%w: betting end time must be in the future", ErrInvalidInput)
	ErrBelowMinBet     = fmt.Errorf("%w: bet amount below minimum", ErrInvalidInput)
	ErrZeroAmount      = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrEmptyAddress    = fmt.Errorf("%w: address is required", ErrInvalidInput)
	ErrInvalidSide     = fmt.Errorf("%w: side must be yes or no", ErrInvalidInput)
	ErrOverflow        = fmt.Errorf("%w: amount overflows", ErrInvalidInput)
	ErrMarketInactive  = fmt.Errorf("%w: market not active", ErrInvalidState)
	ErrBettingClosed   = fmt.Errorf("%w: betting period ended", ErrInvalidState)
	ErrAlreadySettled  = fmt.Errorf("%w: market already settled", ErrInvalidState)
	ErrNotSettled      = fmt.Errorf("%w: market not settled yet", ErrInvalidState)
	ErrNoWinnings      = fmt.Errorf("%w: no winnings to claim", ErrInvalidState)
	ErrAlreadyClaimed  = fmt.Errorf("%w: winnings already claimed", ErrInvalidState)
	ErrInitialized     = fmt.Errorf("%w: already initialized", ErrInvalidState)
	ErrNotInitialized  = fmt.Errorf("%w: not initialized", ErrInvalidState)
	ErrHouseLiquidity  = fmt.Errorf("%w: house insufficient liquidity", ErrInsufficientFunds)
	ErrHousePayout     = fmt.Errorf("%w: house insufficient balance for payout", ErrInsufficientFunds)
	ErrHouseBalance    = fmt.Errorf("%w: insufficient house balance", ErrInsufficientFunds)
	ErrBelowReserve    = fmt.Errorf("%w: cannot withdraw below minimum reserve", ErrInsufficientFunds)
	ErrCustodyShortage = fmt.Errorf("%w: custody cannot cover transfer", ErrInsufficientFunds)
)

// ErrorKind classifies a rejection for transport layers.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindValidation   ErrorKind = "validation"
	KindState        ErrorKind = "state"
	KindSolvency     ErrorKind = "solvency"
	KindInternal     ErrorKind = "internal"
)

// KindOf returns the kind of err. Errors that wrap none of the kind
// sentinels are internal (storage, encoding, transport).
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrInvalidState):
		return KindState
	case errors.Is(err, ErrInsufficientFunds):
		return KindSolvency
	default:
		return KindInternal
	}
}

package ledger

import "errors"

// Error taxonomy returned by the engine. Callers match with errors.Is and
// map to client-facing responses. Only ErrStoreUnavailable is safe to retry
// automatically: it is returned when an operation aborted without applying
// any state; every other error requires the caller to change its input.
var (
	ErrInvalidOrder         = errors.New("ledger: invalid order")
	ErrAssetNotFound        = errors.New("ledger: asset not found")
	ErrInsufficientFunds    = errors.New("ledger: insufficient funds")
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")
	ErrTradeNotFound        = errors.New("ledger: trade not found")
	ErrTradeAlreadyClosed   = errors.New("ledger: trade already closed")
	ErrStoreUnavailable     = errors.New("ledger: store unavailable")
)

// sentinel reports whether err is one of the engine's typed errors.
func sentinel(err error) bool {
	for _, e := range []error{
		ErrInvalidOrder, ErrAssetNotFound,
		ErrInsufficientFunds, ErrInsufficientHoldings,
		ErrTradeNotFound, ErrTradeAlreadyClosed,
		ErrStoreUnavailable,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

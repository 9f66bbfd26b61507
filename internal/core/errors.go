package core

import "errors"

var (
	// ErrAssetNotFound indicates the asset was never reported by the venue.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrOrderNotTracked indicates the client order id is not in the in-flight ledger.
	ErrOrderNotTracked = errors.New("order not tracked")
	// ErrDuplicateClientOrderID indicates the client order id is already tracked.
	ErrDuplicateClientOrderID = errors.New("duplicate client order id")
	// ErrAuthenticationFailed indicates the venue refused the stream authentication.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccountNotResolved indicates the own account id could not be fetched.
	ErrAccountNotResolved = errors.New("account id not resolved")
	// ErrOrderNotFound indicates the order does not exist on the venue.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the order was rejected by the venue.
	ErrOrderRejected = errors.New("order rejected")
)

package domain

import "errors"

// Validation errors
var (
	ErrNoItems          = errors.New("order must have at least one item")
	ErrInvalidQuantity  = errors.New("item quantity must be positive")
	ErrMissingSKU       = errors.New("item sku is required")
	ErrMissingStation   = errors.New("order requires both from and to stations")
	ErrSameStation      = errors.New("from and to stations must differ")
	ErrInvalidScope     = errors.New("invalid order scope")
	ErrInvalidState     = errors.New("invalid order state")
	ErrMissingID        = errors.New("order id is required")
	ErrMissingTracking  = errors.New("return requires a tracking slug and tracking number")
	ErrInvalidReturn    = errors.New("invalid return request")
	ErrInvalidReceipt   = errors.New("invalid receipt")
	ErrInvalidMeta      = errors.New("invalid order meta")
	ErrMissingCarrier   = errors.New("dispatch requires a carrier and tracking number")
	ErrMissingRequester = errors.New("requester is required")
)

// State errors
var (
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrOrderLocked         = errors.New("order is locked")
	ErrDeleteRestricted    = errors.New("order cannot be deleted in its current state")
	ErrDeleteTooRecent     = errors.New("order was updated within the staleness window")
	ErrScopeNotImplemented = errors.New("onward scope is not implemented")
)

// Lookup errors
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrStationNotFound = errors.New("station not found")
	ErrNodeNotFound    = errors.New("inventory node not found")
)

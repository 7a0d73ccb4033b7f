package relay

import "errors"

var (
	ErrForbidden          = errors.New("relay: caller is not allowed")
	ErrBadRequest         = errors.New("relay: bad request")
	ErrNotFound           = errors.New("relay: not found")
	ErrStorageUnavailable = errors.New("relay: storage unavailable")
)

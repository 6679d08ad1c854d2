package commitment

import "errors"

// Sentinel errors for the commitment service layer.
var (
	ErrNotFound       = errors.New("commitment not found")
	ErrShadowNotFound = errors.New("no deleted backup for commitment")
)

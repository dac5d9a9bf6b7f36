package ranking

import "errors"

// ErrInvalidQuery is returned for a malformed ranking query.
var ErrInvalidQuery = errors.New("invalid ranking query")

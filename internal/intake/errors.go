package intake

import "errors"

// ErrInvalidRequest indicates the submitted request failed validation.
var ErrInvalidRequest = errors.New("invalid request")

package dashboard

import "errors"

// ErrInvalidWindow is returned for an out-of-range analytics window.
var ErrInvalidWindow = errors.New("invalid analytics window")

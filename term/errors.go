package term

import "errors"

// ErrMalformed is returned for records whose framing is inconsistent.
var ErrMalformed = errors.New("term: malformed")

package protocol

import "errors"

// ErrMissingType is returned when an inbound frame has no type discriminator.
var ErrMissingType = errors.New("event frame missing type")

package meshbake

import "github.com/pkg/errors"

var (
	ErrNoGeometry       = errors.New("no valid geometry")
	ErrMissingPosition  = errors.New("missing position input")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrStrideMismatch   = errors.New("index count does not match vertex counts")
	ErrUnknownEncoding  = errors.New("unknown polygon encoding")
	ErrUnknownStream    = errors.New("unknown stream")
	ErrUnknownPrimitive = errors.New("unknown primitive")
)

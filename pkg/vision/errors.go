package vision

import "errors"

var (
	// ErrUnsupportedFrame is returned for frames the detector cannot process:
	// wrong concrete type, empty, or an unexpected channel count.
	ErrUnsupportedFrame = errors.New("unsupported frame")

	// ErrEncode marks an annotated frame that could not be JPEG-encoded.
	ErrEncode = errors.New("jpeg encode failed")
)

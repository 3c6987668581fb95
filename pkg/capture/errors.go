package capture

import "errors"

// ErrNotOpened is returned when reading from a closed or never-opened source.
var ErrNotOpened = errors.New("capture device not opened")

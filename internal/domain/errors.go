package domain

import "errors"

// ErrSourceMissing is returned by input sources when a whole input (a file,
// a table) does not exist, as opposed to existing and being empty.
var ErrSourceMissing = errors.New("input source missing")

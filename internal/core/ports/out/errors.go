package out

import "errors"

var ErrStatusMismatch = errors.New("stored status differs from expected")

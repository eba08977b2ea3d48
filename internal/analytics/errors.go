package analytics

import (
	"errors"
	"fmt"
)

// ErrNotComputable marks insufficient-data and data-quality conditions.
// Callers treat a wrapped ErrNotComputable as "omit this metric", never as a
// hard failure.
var ErrNotComputable = errors.New("not computable")

func notComputable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotComputable, fmt.Sprintf(format, args...))
}

package malloc

import "github.com/pkg/errors"

// ErrNotInitialized is returned by the package-level convenience
// functions (Allocate, Free, DeclareSizeClass, ReservePages,
// ReleasePages) when Init has not been called yet.
var ErrNotInitialized = errors.New("malloc: allocator not initialized")

// ErrInvalidRegion is returned by NewFromAddr when start is not
// strictly less than end.
var ErrInvalidRegion = errors.New("malloc: start address must be less than end address")

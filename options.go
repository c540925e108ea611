package malloc

import "github.com/sirupsen/logrus"

// Option configures an Allocator at construction time.
type Option func(*config)

type config struct {
	log         *logrus.Logger
	sizeClasses []uintptr
}

// WithLogger attaches a *logrus.Logger that receives debug-level lines
// for pool initialization, arena formatting and arena reclamation. A
// nil logger (the default) discards these diagnostics.
func WithLogger(log *logrus.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithSizeClasses declares one or more supplementary size classes as
// part of construction, equivalent to calling DeclareSizeClass after
// New returns. Construction fails if any size is invalid or a
// duplicate.
func WithSizeClasses(sizes ...uintptr) Option {
	return func(c *config) { c.sizeClasses = append(c.sizeClasses, sizes...) }
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = discardLogger()
	}
	return c
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(ioDiscard{})
	return l
}

type ioDiscard struct{}

func (ioDiscard) Write(p []byte) (int, error) { return len(p), nil }

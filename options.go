package mapretry

import "time"

// Default values substituted by OptionsBuilder.Finalize for options
// that were never set.
const (
	DefaultNumRetries    uint8 = 1
	DefaultPreserveOrder       = false
)

// Options is the immutable run configuration of an Engine.
// Build it with an OptionsBuilder; the zero value is not the default
// configuration, use DefaultOptions for that.
type Options struct {
	minDelay      time.Duration
	hasMinDelay   bool
	numRetries    uint8
	preserveOrder bool
}

// DefaultOptions returns the configuration produced by an untouched builder:
// one retry, no delay, no order preservation.
func DefaultOptions() Options {
	return NewOptionsBuilder().Finalize()
}

// NumRetries returns the retry budget applied to every item at its first failure.
func (o Options) NumRetries() uint8 {
	return o.numRetries
}

// MinDelay returns the minimum time a failed item waits before it is
// attempted again, and whether a delay was configured at all.
func (o Options) MinDelay() (time.Duration, bool) {
	return o.minDelay, o.hasMinDelay
}

// PreserveOrder reports whether results are released in source order.
func (o Options) PreserveOrder() bool {
	return o.preserveOrder
}

// Validate reports whether the options can drive an engine.
// Retries need a configured delay, even a zero one.
func (o Options) Validate() error {
	if o.numRetries > 0 && !o.hasMinDelay {
		return ErrMissingDelay
	}
	return nil
}

// OptionsBuilder assembles Options. Every setter returns a new builder
// value, so a partially configured builder can be shared and extended
// without affecting other users.
//
// Example:
//
//	base := mapretry.NewOptionsBuilder().MinDelay(500 * time.Millisecond)
//	patient := base.NumRetries(5).Finalize()
//	ordered := base.PreserveOrder(true).Finalize()
type OptionsBuilder struct {
	preserveOrder *bool
	numRetries    *uint8
	minDelay      *time.Duration
}

// NewOptionsBuilder creates a builder with nothing set.
func NewOptionsBuilder() OptionsBuilder {
	return OptionsBuilder{}
}

// PreserveOrder sets whether results are released in source order.
func (b OptionsBuilder) PreserveOrder(preserveOrder bool) OptionsBuilder {
	b.preserveOrder = &preserveOrder
	return b
}

// NumRetries sets how many additional attempts a failed item gets.
func (b OptionsBuilder) NumRetries(numRetries uint8) OptionsBuilder {
	b.numRetries = &numRetries
	return b
}

// MinDelay sets the minimum wait between two attempts of the same item.
func (b OptionsBuilder) MinDelay(minDelay time.Duration) OptionsBuilder {
	b.minDelay = &minDelay
	return b
}

// Finalize materializes the Options, substituting defaults for anything unset.
func (b OptionsBuilder) Finalize() Options {
	opts := Options{
		numRetries:    DefaultNumRetries,
		preserveOrder: DefaultPreserveOrder,
	}
	if b.numRetries != nil {
		opts.numRetries = *b.numRetries
	}
	if b.preserveOrder != nil {
		opts.preserveOrder = *b.preserveOrder
	}
	if b.minDelay != nil {
		opts.minDelay = *b.minDelay
		opts.hasMinDelay = true
	}
	return opts
}

package compiler

import "go.uber.org/zap"

// Option configures the compiler.
type Option func(*compiler)

// WithLogger sets the logger used to report progress. The package level
// Logger is used by default.
func WithLogger(l *zap.Logger) Option {
	return func(c *compiler) { c.log = l }
}

// WithoutSlotReuse disables the sharing of value spill slots between
// variables whose live ranges do not overlap. Every spilled variable gets a
// field of its own, which makes lowered procedures easier to read.
func WithoutSlotReuse() Option {
	return func(c *compiler) { c.noSlotReuse = true }
}

// WithConcurrency bounds the number of procedures lowered in parallel by
// CompileAll. Zero or a negative value means no limit.
func WithConcurrency(n int) Option {
	return func(c *compiler) { c.concurrency = n }
}

// WithoutCheck disables the structural verification of lowered procedures.
func WithoutCheck() Option {
	return func(c *compiler) { c.noCheck = true }
}

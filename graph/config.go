package graph

import "context"

// Config controls a single invocation of a compiled graph.
type Config struct {
	// ResumeFrom names the nodes to re-enter instead of the entry point.
	// Used to continue a previously suspended run.
	ResumeFrom []string

	// ResumeValue is handed to the re-entered node via ResumeValue(ctx).
	ResumeValue any

	// Configurable carries arbitrary invocation-scoped values (e.g. a
	// session id) readable by nodes through ConfigFromContext.
	Configurable map[string]any
}

type configKey struct{}

// WithConfig attaches an invocation config to the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// ConfigFromContext retrieves the invocation config, or nil if none is set.
func ConfigFromContext(ctx context.Context) *Config {
	config, _ := ctx.Value(configKey{}).(*Config)
	return config
}

type resumeValueKey struct{}

// WithResumeValue adds a resume value to the context. The value is returned
// by ResumeValue when the suspended node re-executes.
func WithResumeValue(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, resumeValueKey{}, value)
}

// ResumeValue retrieves the resume value injected for a re-entered node.
// ok is false on first entry, before any suspension.
func ResumeValue(ctx context.Context) (any, bool) {
	v := ctx.Value(resumeValueKey{})
	return v, v != nil
}

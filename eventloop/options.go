package eventloop

// loopConfig holds configuration resolved from Option values at
// construction time.
type loopConfig struct {
	name           string
	logger         Logger
	metricsEnabled bool
}

// Option configures a Loop at construction. Loop options are applied in
// order, and later options override earlier ones.
type Option interface {
	apply(*loopConfig)
}

type optionFunc func(*loopConfig)

func (f optionFunc) apply(cfg *loopConfig) { f(cfg) }

// WithName assigns a human-readable name to the Loop, used in log output
// and surfaced via Loop.Name.
func WithName(name string) Option {
	return optionFunc(func(cfg *loopConfig) { cfg.name = name })
}

// WithLogger sets the Logger the Loop writes diagnostic output to. The
// default, if omitted, is NewNoopLogger.
func WithLogger(logger Logger) Option {
	return optionFunc(func(cfg *loopConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	})
}

// WithMetrics enables Prometheus instrumentation on the Loop. Disabled by
// default, so a Loop that doesn't ask for it pays nothing for the
// collector updates.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(cfg *loopConfig) { cfg.metricsEnabled = enabled })
}

func resolveOptions(opts []Option) *loopConfig {
	cfg := &loopConfig{logger: NewNoopLogger()}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(cfg)
	}
	return cfg
}

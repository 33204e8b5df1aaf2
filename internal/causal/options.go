package causal

// Option adjusts run behavior without touching Params (and therefore
// without changing the provenance hash).
type Option func(*runConfig)

type runConfig struct {
	traces bool
}

// WithTraces retains every candidate considered per pairing, merge, and
// absorption decision, with component scores and accept/reject reasons.
// Off by default: traces grow linearly with candidate volume.
func WithTraces() Option {
	return func(c *runConfig) { c.traces = true }
}

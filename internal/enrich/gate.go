// Package enrich holds the batch driver and the per-stage orchestrators of
// the catalog pipeline.
package enrich

// ShouldRun is the stage gate: a stage runs for a product when forced or when
// the product has no output for that stage yet. Every orchestrator routes its
// per-item decision through this one predicate so force semantics cannot
// drift between stages.
func ShouldRun(force, hasOutput bool) bool {
	return force || !hasOutput
}

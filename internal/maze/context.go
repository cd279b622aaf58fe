package maze

import "context"

type scenarioKey struct{}

// WithScenario tags ctx with the running scenario's name so service runs
// can be attributed to it.
func WithScenario(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, scenarioKey{}, name)
}

// ScenarioFromContext returns the scenario name set by WithScenario.
func ScenarioFromContext(ctx context.Context) string {
	name, _ := ctx.Value(scenarioKey{}).(string)
	return name
}

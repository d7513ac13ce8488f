package stratum

import "github.com/kingkw1/stratum/migration"

type action struct {
	target migration.Version
	steps  int
}

type ActionConfigurator func(a *action)

// WithTarget bounds a run at the given version: the last one applied
// on the way up, or the one left applied on the way down.
func WithTarget(v migration.Version) ActionConfigurator {
	return func(a *action) {
		a.target = v
	}
}

// WithSteps limits a run to at most n migrations.
func WithSteps(n int) ActionConfigurator {
	return func(a *action) {
		a.steps = n
	}
}

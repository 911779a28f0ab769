// Package sensitivity holds the plantType -> SensitivityProfile registry.
package sensitivity

import (
	"fmt"

	"github.com/weatheralertd/weatheralertd/internal/model"
)

// Registry resolves a plant type to its sensitivity profile, falling back to
// the mandatory "default" entry.
type Registry struct {
	profiles map[string]model.SensitivityProfile
}

// New builds a Registry from a loaded profile map. It is a configuration-fatal
// error for the default profile to be absent.
func New(profiles map[string]model.SensitivityProfile) (*Registry, error) {
	if _, ok := profiles[model.DefaultProfileKey]; !ok {
		return nil, fmt.Errorf("sensitivity registry: missing required %q profile", model.DefaultProfileKey)
	}
	return &Registry{profiles: profiles}, nil
}

// Resolve returns the profile for plantType, or the default profile if none
// is registered for that type.
func (r *Registry) Resolve(plantType string) model.SensitivityProfile {
	if p, ok := r.profiles[plantType]; ok {
		return p
	}
	return r.profiles[model.DefaultProfileKey]
}

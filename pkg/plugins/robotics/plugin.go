package robotics

import "github.com/pcehq/pce/pkg/plugins"

// New bundles the os.robotics domain's capabilities into a plugins.Domain
// for registration with the Plugin Registry.
func New() plugins.Domain {
	return plugins.Domain{
		Name:       Name,
		Integrator: Integrator{},
		Value:      Value{},
		Decision:   Decision{},
	}
}

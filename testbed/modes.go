/*
Package testbed holds the example render modes the engine can run. A mode is
picked by name from the renderer configuration.
*/
package testbed

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/app"
)

var ErrUnknownMode = errors.New("unknown render mode")

var modes = map[string]func() app.AppMode{
	DynamicUniformBufferName: func() app.AppMode { return NewDynamicUniformBufferMode() },
	UniformBufferName:        func() app.AppMode { return NewUniformBufferMode() },
}

// New builds the render mode registered under name.
func New(name string) (app.AppMode, error) {
	factory, ok := modes[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMode, "%q, available: %v", name, Names())
	}
	return factory(), nil
}

func Names() []string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

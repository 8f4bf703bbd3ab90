package processors

import (
	"github.com/wehubfusion/trestle/pkg/embedded/processors/trestle"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
)

// NewProcessorRegistry creates and configures a new processor registry
// with all available processors registered. opts apply to every Trestle node
// the registry creates.
func NewProcessorRegistry(opts ...trestle.Option) runtime.EmbeddedNodeFactory {
	factory := runtime.NewDefaultNodeFactory()

	// Register trestle processor
	factory.Register(trestle.PluginType, trestle.Creator(opts...))

	return factory
}

package processors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/trestle/pkg/credentials"
	"github.com/wehubfusion/trestle/pkg/embedded/processors/trestle"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
)

func TestNewProcessorRegistry(t *testing.T) {
	factory := NewProcessorRegistry(trestle.WithCredentials(credentials.Static{APIKey: "k"}))

	assert.True(t, factory.HasCreator(trestle.PluginType))
	assert.Equal(t, []string{trestle.PluginType}, factory.RegisteredTypes())

	node, err := factory.Create(runtime.EmbeddedNodeConfig{
		NodeId:     "n1",
		PluginType: trestle.PluginType,
		NodeConfig: runtime.NodeConfig{Config: json.RawMessage(`{"phone":"+14155552671"}`)},
	})
	require.NoError(t, err)
	_, ok := node.(runtime.BatchNode)
	assert.True(t, ok)

	_, err = factory.Create(runtime.EmbeddedNodeConfig{PluginType: "plugin-js"})
	assert.ErrorIs(t, err, runtime.ErrNoExecutor)
}

package runtime

// StaticContext is an ExecuteContext backed by fixed values. It is what the CLI
// and the NATS worker hand to a node; per-item overrides let a host supply
// values it resolved for individual items.
type StaticContext struct {
	items          []Item
	params         map[string]interface{}
	overrides      map[int]map[string]interface{}
	continueOnFail bool
}

// NewStaticContext creates a context over items. params may be nil.
func NewStaticContext(items []Item, params map[string]interface{}, continueOnFail bool) *StaticContext {
	if items == nil {
		items = []Item{}
	}
	return &StaticContext{
		items:          items,
		params:         params,
		overrides:      make(map[int]map[string]interface{}),
		continueOnFail: continueOnFail,
	}
}

// SetItemParameter overrides name for the item at itemIndex only.
func (c *StaticContext) SetItemParameter(itemIndex int, name string, value interface{}) {
	if c.overrides[itemIndex] == nil {
		c.overrides[itemIndex] = make(map[string]interface{})
	}
	c.overrides[itemIndex][name] = value
}

// InputItems returns the ordered input batch.
func (c *StaticContext) InputItems() []Item {
	return c.items
}

// GetNodeParameter returns the per-item override, then the batch parameter, then fallback.
func (c *StaticContext) GetNodeParameter(name string, itemIndex int, fallback interface{}) interface{} {
	if o, ok := c.overrides[itemIndex]; ok {
		if v, ok := o[name]; ok {
			return v
		}
	}
	if v, ok := c.params[name]; ok {
		return v
	}
	return fallback
}

// ContinueOnFail reports whether item failures become error results.
func (c *StaticContext) ContinueOnFail() bool {
	return c.continueOnFail
}

var _ ExecuteContext = (*StaticContext)(nil)

package invoiceflow

import "fmt"

// ToolSelector picks one provider from a configured pool for a tool
// category. Selection policy lives behind this interface; the engine only
// calls it and records the result on the run.
type ToolSelector interface {
	SelectProvider(category string) (string, error)
}

// ToolSelectorFunc adapts a function to the ToolSelector interface.
type ToolSelectorFunc func(category string) (string, error)

func (f ToolSelectorFunc) SelectProvider(category string) (string, error) {
	return f(category)
}

// PoolSelector resolves providers from the configured tool pools, preferring
// each pool's default and falling back to the first provider listed.
type PoolSelector struct {
	pools map[string]ToolPool
}

// NewPoolSelector builds a selector over the given pools.
func NewPoolSelector(pools map[string]ToolPool) *PoolSelector {
	return &PoolSelector{pools: pools}
}

func (s *PoolSelector) SelectProvider(category string) (string, error) {
	pool, ok := s.pools[category]
	if !ok {
		return "", fmt.Errorf("no tool pool configured for category %q", category)
	}
	if pool.Default != "" {
		return pool.Default, nil
	}
	if len(pool.Providers) == 0 {
		return "", fmt.Errorf("tool pool %q is empty", category)
	}
	return pool.Providers[0], nil
}

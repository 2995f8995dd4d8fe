package invoiceflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 0.90, cfg.MatchThreshold)
	require.Equal(t, 5.0, cfg.TwoWayTolerancePct)
	require.Equal(t, 10000.0, cfg.AutoApproveThreshold)
	require.Equal(t, "finance-manager", cfg.EscalationApprover)

	require.Equal(t, "tesseract", cfg.ToolPools[ToolCategoryOCR].Default)
	require.Equal(t, "vendor_db", cfg.ToolPools[ToolCategoryEnrichment].Default)
	require.Equal(t, "mock_erp", cfg.ToolPools[ToolCategoryERP].Default)
	require.Equal(t, "sqlite", cfg.ToolPools[ToolCategoryDB].Default)
	require.Equal(t, "sendgrid", cfg.ToolPools[ToolCategoryEmail].Default)
}

func TestLoadConfigString(t *testing.T) {
	cfg, err := LoadConfigString(`
match_threshold: 0.85
auto_approve_threshold: 2500
tool_pools:
  erp:
    providers: [netsuite]
    default: netsuite
`)
	require.NoError(t, err)
	require.Equal(t, 0.85, cfg.MatchThreshold)
	require.Equal(t, 2500.0, cfg.AutoApproveThreshold)
	require.Equal(t, "netsuite", cfg.ToolPools[ToolCategoryERP].Default)

	// Untouched fields keep their defaults.
	require.Equal(t, 5.0, cfg.TwoWayTolerancePct)
	require.Equal(t, "finance-manager", cfg.EscalationApprover)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.MatchThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.MatchThreshold = -0.1 }},
		{"zero auto approve", func(c *Config) { c.AutoApproveThreshold = 0 }},
		{"negative epsilon", func(c *Config) { c.BalanceEpsilon = -0.01 }},
		{"empty pool", func(c *Config) { c.ToolPools["erp"] = ToolPool{} }},
		{"default outside pool", func(c *Config) {
			c.ToolPools["erp"] = ToolPool{Providers: []string{"sap"}, Default: "oracle"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigStringRejectsInvalid(t *testing.T) {
	_, err := LoadConfigString(`match_threshold: 2.0`)
	require.Error(t, err)

	_, err = LoadConfigString(`{not yaml`)
	require.Error(t, err)
}

func TestPoolSelector(t *testing.T) {
	selector := NewPoolSelector(map[string]ToolPool{
		"ocr":  {Providers: []string{"a", "b"}, Default: "b"},
		"mail": {Providers: []string{"x"}},
	})

	provider, err := selector.SelectProvider("ocr")
	require.NoError(t, err)
	require.Equal(t, "b", provider)

	provider, err = selector.SelectProvider("mail")
	require.NoError(t, err)
	require.Equal(t, "x", provider)

	_, err = selector.SelectProvider("unknown")
	require.Error(t, err)
}

package invoiceflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tool pool categories.
const (
	ToolCategoryOCR        = "ocr"
	ToolCategoryEnrichment = "enrichment"
	ToolCategoryERP        = "erp"
	ToolCategoryDB         = "db"
	ToolCategoryEmail      = "email"
)

// ToolPool is a configured pool of provider identifiers for one category.
type ToolPool struct {
	Providers []string `json:"providers" yaml:"providers"`
	Default   string   `json:"default" yaml:"default"`
}

// Config is the immutable process-wide configuration consumed by the engine
// and every stage function. It is constructed once and passed in explicitly,
// never read from ambient state, so tests can vary thresholds freely.
type Config struct {
	// MatchThreshold is the minimum two-way match score that lets a run
	// continue without human review.
	MatchThreshold float64 `json:"match_threshold" yaml:"match_threshold"`

	// TwoWayTolerancePct is the amount tolerance used by match evidence.
	TwoWayTolerancePct float64 `json:"two_way_tolerance_pct" yaml:"two_way_tolerance_pct"`

	// AutoApproveThreshold is the amount below which APPROVE requires no
	// escalation.
	AutoApproveThreshold float64 `json:"auto_approve_threshold" yaml:"auto_approve_threshold"`

	// BalanceEpsilon bounds the permitted debit/credit difference when the
	// reconciliation balance invariant is checked.
	BalanceEpsilon float64 `json:"balance_epsilon" yaml:"balance_epsilon"`

	// EscalationApprover is recorded as the approver for escalated runs.
	EscalationApprover string `json:"escalation_approver" yaml:"escalation_approver"`

	// ReviewBaseURL is the base for constructed review references.
	ReviewBaseURL string `json:"review_base_url" yaml:"review_base_url"`

	// ToolPools configures the provider pool per tool category.
	ToolPools map[string]ToolPool `json:"tool_pools" yaml:"tool_pools"`
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:       0.90,
		TwoWayTolerancePct:   5.0,
		AutoApproveThreshold: 10000.0,
		BalanceEpsilon:       0.01,
		EscalationApprover:   "finance-manager",
		ReviewBaseURL:        "http://localhost:8080/reviews",
		ToolPools: map[string]ToolPool{
			ToolCategoryOCR: {
				Providers: []string{"google_vision", "tesseract", "aws_textract"},
				Default:   "tesseract",
			},
			ToolCategoryEnrichment: {
				Providers: []string{"clearbit", "people_data_labs", "vendor_db"},
				Default:   "vendor_db",
			},
			ToolCategoryERP: {
				Providers: []string{"sap_sandbox", "netsuite", "mock_erp"},
				Default:   "mock_erp",
			},
			ToolCategoryDB: {
				Providers: []string{"postgres", "sqlite", "dynamodb"},
				Default:   "sqlite",
			},
			ToolCategoryEmail: {
				Providers: []string{"sendgrid", "smartlead", "ses"},
				Default:   "sendgrid",
			},
		},
	}
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be between 0 and 1, got %v", c.MatchThreshold)
	}
	if c.AutoApproveThreshold <= 0 {
		return fmt.Errorf("auto_approve_threshold must be positive, got %v", c.AutoApproveThreshold)
	}
	if c.BalanceEpsilon < 0 {
		return fmt.Errorf("balance_epsilon must not be negative, got %v", c.BalanceEpsilon)
	}
	for category, pool := range c.ToolPools {
		if len(pool.Providers) == 0 {
			return fmt.Errorf("tool pool %q has no providers", category)
		}
		if pool.Default != "" && !contains(pool.Providers, pool.Default) {
			return fmt.Errorf("tool pool %q default %q is not in the pool", category, pool.Default)
		}
	}
	return nil
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}

// LoadConfigFile loads a pipeline configuration from a YAML file. Fields not
// present keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigString(string(data))
}

// LoadConfigString loads a pipeline configuration from a YAML string.
func LoadConfigString(data string) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

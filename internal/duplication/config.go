package duplication

import (
	"fmt"
	"time"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

// Thresholds map the overall confidence to a recommended action
type Thresholds struct {
	// Duplicate is the confidence at which an invoice is declared a duplicate
	// and blocked for manual approval. Default: 0.85
	Duplicate float64 `mapstructure:"duplicate" yaml:"duplicate"`

	// Likely flags the invoice but lets it through with a warning. Default: 0.70
	Likely float64 `mapstructure:"likely" yaml:"likely"`

	// Possible only logs. Default: 0.50
	Possible float64 `mapstructure:"possible" yaml:"possible"`
}

// ScenarioConfig holds the trigger levels of the six analyzers. Each
// similarity trigger is strict: a score equal to the level does not fire.
type ScenarioConfig struct {
	SupplierDateSimilarity   float64 `mapstructure:"supplier_date_similarity" yaml:"supplier_date_similarity"`
	AmountTolerance          float64 `mapstructure:"amount_tolerance" yaml:"amount_tolerance"`
	SupplierAmountSimilarity float64 `mapstructure:"supplier_amount_similarity" yaml:"supplier_amount_similarity"`
	AmountSimilarity         float64 `mapstructure:"amount_similarity" yaml:"amount_similarity"`
	DescriptionSimilarity    float64 `mapstructure:"description_similarity" yaml:"description_similarity"`
	ProductAverageSimilarity float64 `mapstructure:"product_average_similarity" yaml:"product_average_similarity"`

	// MinProductMatchFraction is the share of the longer invoice's lines that
	// must find a partner before product similarity can fire. Default: 0.5
	MinProductMatchFraction float64 `mapstructure:"min_product_match_fraction" yaml:"min_product_match_fraction"`

	HSNSimilarity  float64 `mapstructure:"hsn_similarity" yaml:"hsn_similarity"`
	RateSimilarity float64 `mapstructure:"rate_similarity" yaml:"rate_similarity"`
}

// Filters bound the candidate set handed to the analyzers
type Filters struct {
	SupplierSimilarityMin float64 `mapstructure:"supplier_similarity_min" yaml:"supplier_similarity_min"`
	AmountRangePct        float64 `mapstructure:"amount_range_pct" yaml:"amount_range_pct"`
	DateWindowDays        int     `mapstructure:"date_window_days" yaml:"date_window_days"`
	// Limit caps the number of candidates; 0 means unbounded
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// Config holds everything the detector needs
type Config struct {
	Thresholds Thresholds         `mapstructure:"thresholds" yaml:"thresholds"`
	Scenarios  ScenarioConfig     `mapstructure:"scenarios" yaml:"scenarios"`
	Filters    Filters            `mapstructure:"filters" yaml:"filters"`
	Weights    similarity.Weights `mapstructure:"weights" yaml:"weights"`

	// Workers bounds how many candidates are compared concurrently
	Workers int `mapstructure:"workers" yaml:"workers"`

	// RetrievalTimeout caps the candidate retrieval call. Default: 10 seconds
	RetrievalTimeout time.Duration `mapstructure:"retrieval_timeout" yaml:"retrieval_timeout"`
}

// DefaultFilters returns the retrieval contract defaults
func DefaultFilters() Filters {
	return Filters{
		SupplierSimilarityMin: 0.6,
		AmountRangePct:        0.2,
		DateWindowDays:        90,
		Limit:                 200,
	}
}

// DefaultConfig returns the default detection policy
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Duplicate: 0.85,
			Likely:    0.70,
			Possible:  0.50,
		},
		Scenarios: ScenarioConfig{
			SupplierDateSimilarity:   0.8,
			AmountTolerance:          0.01,
			SupplierAmountSimilarity: 0.85,
			AmountSimilarity:         0.99,
			DescriptionSimilarity:    0.8,
			ProductAverageSimilarity: 0.75,
			MinProductMatchFraction:  0.5,
			HSNSimilarity:            0.8,
			RateSimilarity:           0.85,
		},
		Filters:          DefaultFilters(),
		Weights:          similarity.DefaultWeights(),
		Workers:          8,
		RetrievalTimeout: 10 * time.Second,
	}
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", name, v)
	}
	return nil
}

// Validate checks the configuration. Errors carry CONFIG_INVALID.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid duplication config")
	}
	return nil
}

func (c Config) validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"thresholds.duplicate", c.Thresholds.Duplicate},
		{"thresholds.likely", c.Thresholds.Likely},
		{"thresholds.possible", c.Thresholds.Possible},
		{"scenarios.supplier_date_similarity", c.Scenarios.SupplierDateSimilarity},
		{"scenarios.supplier_amount_similarity", c.Scenarios.SupplierAmountSimilarity},
		{"scenarios.amount_similarity", c.Scenarios.AmountSimilarity},
		{"scenarios.description_similarity", c.Scenarios.DescriptionSimilarity},
		{"scenarios.product_average_similarity", c.Scenarios.ProductAverageSimilarity},
		{"scenarios.min_product_match_fraction", c.Scenarios.MinProductMatchFraction},
		{"scenarios.hsn_similarity", c.Scenarios.HSNSimilarity},
		{"scenarios.rate_similarity", c.Scenarios.RateSimilarity},
		{"filters.supplier_similarity_min", c.Filters.SupplierSimilarityMin},
	}
	for _, chk := range checks {
		if err := unit(chk.name, chk.v); err != nil {
			return err
		}
	}

	if !(c.Thresholds.Possible <= c.Thresholds.Likely && c.Thresholds.Likely <= c.Thresholds.Duplicate) {
		return fmt.Errorf("thresholds must satisfy possible <= likely <= duplicate (got %.2f, %.2f, %.2f)",
			c.Thresholds.Possible, c.Thresholds.Likely, c.Thresholds.Duplicate)
	}
	if c.Scenarios.AmountTolerance < 0 {
		return fmt.Errorf("scenarios.amount_tolerance cannot be negative (got %v)", c.Scenarios.AmountTolerance)
	}
	if c.Filters.AmountRangePct < 0 {
		return fmt.Errorf("filters.amount_range_pct cannot be negative (got %v)", c.Filters.AmountRangePct)
	}
	if c.Filters.DateWindowDays < 0 {
		return fmt.Errorf("filters.date_window_days cannot be negative (got %d)", c.Filters.DateWindowDays)
	}
	if c.Filters.Limit < 0 {
		return fmt.Errorf("filters.limit cannot be negative (got %d)", c.Filters.Limit)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Workers > 256 {
		return fmt.Errorf("workers too large (got %d, max 256)", c.Workers)
	}
	if c.RetrievalTimeout <= 0 {
		return fmt.Errorf("retrieval_timeout must be positive (got %v)", c.RetrievalTimeout)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Thresholds: %.2f/%.2f/%.2f, Filters: sim>=%.2f amount±%.0f%% window=%dd limit=%d, "+
			"Weights: %.2f/%.2f/%.2f, Workers: %d, Timeout: %v}",
		c.Thresholds.Duplicate, c.Thresholds.Likely, c.Thresholds.Possible,
		c.Filters.SupplierSimilarityMin, c.Filters.AmountRangePct*100, c.Filters.DateWindowDays, c.Filters.Limit,
		c.Weights.Edit, c.Weights.Name, c.Weights.Token, c.Workers, c.RetrievalTimeout,
	)
}

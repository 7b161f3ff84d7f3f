package binance

import "time"

// Config represents Binance API configuration
type Config struct {
	Name       string        `yaml:"name" json:"name"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	APISecret  string        `yaml:"api_secret" json:"api_secret"`
	UseTestnet bool          `yaml:"use_testnet" json:"use_testnet"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:       "default",
		UseTestnet: false,
		Timeout:    30 * time.Second,
	}
}

// IsValid checks if configuration has required fields
func (c *Config) IsValid() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// GetBaseURL returns the appropriate REST base URL
func (c *Config) GetBaseURL() string {
	if c.UseTestnet {
		return BaseURLSpotTestnet
	}
	return BaseURLSpot
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AdapterProfile configures one market adapter endpoint.
type AdapterProfile struct {
	Name       string  `yaml:"name" json:"name"`
	BaseURL    string  `yaml:"base_url" json:"base_url"`
	APIKey     string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	RateRPS    float64 `yaml:"rate_rps" json:"rate_rps"`
	RateBurst  int     `yaml:"rate_burst" json:"rate_burst"`
	MaxRetries int     `yaml:"max_retries" json:"max_retries"`
}

// AuthenticityProfile carries the tunable authenticity constants: signal
// weights and the reference-hash table location. FontVarianceLimit is on the
// normalized scale of the vision stage's size variance (block heights in
// [0,1], so the variance never exceeds 0.25).
type AuthenticityProfile struct {
	Weights           map[string]float64 `yaml:"weights" json:"weights"`
	ReferenceHashPath string             `yaml:"reference_hash_path" json:"reference_hash_path"`
	FontVarianceLimit float64            `yaml:"font_variance_limit" json:"font_variance_limit"`
}

// PipelineProfile is the YAML-tunable half of the configuration: market
// adapter endpoints and authenticity constants. Environment variables win for
// everything operational; this file carries the slow-changing data.
type PipelineProfile struct {
	Adapters     []AdapterProfile    `yaml:"adapters" json:"adapters"`
	Authenticity AuthenticityProfile `yaml:"authenticity" json:"authenticity"`
}

// DefaultProfile returns the built-in profile used when no file is supplied.
func DefaultProfile() *PipelineProfile {
	return &PipelineProfile{
		Adapters: []AdapterProfile{
			{Name: "auctionfeed", BaseURL: "https://api.auctionfeed.example.com", RateRPS: 5, RateBurst: 10, MaxRetries: 2},
			{Name: "marketplace", BaseURL: "https://api.marketplace.example.com", RateRPS: 5, RateBurst: 10, MaxRetries: 2},
			{Name: "pricehistory", BaseURL: "https://api.pricehistory.example.com", RateRPS: 5, RateBurst: 10, MaxRetries: 2},
		},
		Authenticity: AuthenticityProfile{
			Weights: map[string]float64{
				"visualHash":        0.35,
				"textMatch":         0.25,
				"holoPattern":       0.20,
				"borderConsistency": 0.10,
				"fontValidation":    0.10,
			},
			FontVarianceLimit: 0.01,
		},
	}
}

// LoadProfile reads a pipeline profile YAML from path. Missing fields fall
// back to the built-in defaults.
func LoadProfile(path string) (*PipelineProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if len(profile.Adapters) == 0 {
		return nil, fmt.Errorf("profile %s: no adapters configured", path)
	}
	for _, a := range profile.Adapters {
		if a.Name == "" || a.BaseURL == "" {
			return nil, fmt.Errorf("profile %s: adapter missing name or base_url", path)
		}
	}
	return profile, nil
}

// Adapter returns the profile for a named adapter, or nil.
func (p *PipelineProfile) Adapter(name string) *AdapterProfile {
	for i := range p.Adapters {
		if p.Adapters[i].Name == name {
			return &p.Adapters[i]
		}
	}
	return nil
}

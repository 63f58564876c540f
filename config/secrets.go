package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secrets holds the upstream API credentials. Both are optional;
// collectors that need a missing token are skipped for the cycle.
type Secrets struct {
	AQIToken       string `env:"AQI_TOKEN"`
	OpenWeatherKey string `env:"OPENWEATHER_API_KEY"`
}

func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse secrets: %w", err)
	}
	return s, nil
}

package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Solis     *SolisConfig
	Mqtt      *MqttConfig
	Discovery bool
	Silent    bool
	LogLevel  string
}

type SolisConfig struct {
	KeyID      string
	KeySecret  string
	InverterID string
	Endpoint   string
	Timeout    time.Duration
}

type MqttConfig struct {
	Host     string
	Username string
	Password string
	Prefix   string
	ClientID string
}

// Environment is the deploy-site half of the configuration. It never
// belongs on a command line.
type Environment struct {
	DatabaseURL      string `env:"DATABASE_URL"`
	MigrationsFolder string `env:"MIGRATIONS_FOLDER" envDefault:"migrations"`
	StatusAddr       string `env:"STATUS_ADDR" envDefault:"0.0.0.0:8000"`
	RefreshSchedule  string `env:"REFRESH_SCHEDULE" envDefault:"*/5 * * * *"`
	CleanupSchedule  string `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
}

func FromEnv() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return Environment{}, err
	}
	return e, nil
}

func (c *Config) Validate() error {
	if c.Solis == nil {
		return errors.New("missing soliscloud configuration")
	}
	if c.Solis.KeyID == "" || c.Solis.KeySecret == "" {
		return errors.New("missing soliscloud api credentials")
	}
	if c.Solis.InverterID == "" {
		return errors.New("missing inverter id")
	}
	if c.Mqtt == nil || c.Mqtt.Host == "" {
		return errors.New("missing mqtt broker host")
	}
	if c.Mqtt.Prefix == "" {
		return errors.New("missing mqtt topic prefix")
	}
	return nil
}

package config

import (
	"github.com/kelseyhightower/envconfig"

	"flowbridge/internal/errors"
)

// Settings are process-wide knobs read from FLOWBRIDGE_* environment
// variables.
type Settings struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`

	// MetricsBackend is none, prometheus or datadog.
	MetricsBackend string `envconfig:"METRICS_BACKEND" default:"none"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" default:"http://localhost:9091"`
	DogStatsDAddr  string `envconfig:"DOGSTATSD_ADDR" default:"127.0.0.1:8125"`

	// Parallelism applies to jobs whose runtime.parallelism is 0. 0 here
	// means one worker per CPU.
	Parallelism int `envconfig:"PARALLELISM" default:"0"`
}

// EnvPrefix is the environment variable prefix of Settings.
const EnvPrefix = "FLOWBRIDGE"

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Settings{}, errors.Wrap(err, "load settings")
	}
	return s, nil
}

package internal

import "time"

type Config struct {
	BufferSize        int           `env:"BUFFER_SIZE,default=128"`
	PageSize          int           `env:"PAGE_SIZE,default=15"`
	SearchQuietPeriod time.Duration `env:"SEARCH_QUIET_PERIOD,default=300ms"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=30s"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AuthSigningKey    string        `env:"AUTH_SIGNING_KEY,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
}

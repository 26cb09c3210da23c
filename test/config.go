package test

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PageSize int `envconfig:"TEST_PAGE_SIZE" default:"3"`
	// TEST_MUTATION_BUFFER sizes the channel between the gateway and the
	// side-effect fanout worker.
	MutationBuffer int    `envconfig:"TEST_MUTATION_BUFFER" default:"16"`
	SigningKey     string `envconfig:"TEST_SIGNING_KEY" default:"integration-test-key"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

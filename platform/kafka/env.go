package kafka

import (
	"github.com/caarlos0/env/v10"
)

// LoadEnv заполняет конфигурацию из переменных окружения по env-тегам
func LoadEnv(cfg *Config) error {
	return env.Parse(cfg)
}

package config

import "time"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Store     StoreConfig     `mapstructure:"store"`
	LogLevel  string          `mapstructure:"logLevel" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" validate:"gt=0"`
	Auth            AuthConfig    `mapstructure:"auth"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret" validate:"required"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout" validate:"gt=0"`
	SendBuffer  int           `mapstructure:"sendBuffer" validate:"gt=0"`
}

type StoreConfig struct {
	// Path of the badger directory. Ignored when InMemory is set.
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"inMemory"`
}

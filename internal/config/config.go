package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	ServerAddr     string
	Store          string
	DatabaseDSN    string
	RedisAddr      string
	RedisPassword  string
	SigningKey     []byte
	AllowedOrigins []string
	SweepInterval  time.Duration
}

type Params struct {
	ServerAddr     string
	Store          string
	DatabaseDSN    string
	RedisAddr      string
	RedisPassword  string
	SigningKey     string
	AllowedOrigins []string
	SweepInterval  time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	switch p.Store {
	case StoreMemory:
	case StorePostgres:
		if p.DatabaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreRedis:
		if p.RedisAddr == "" {
			return nil, fmt.Errorf("redis address cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unknown store %q", p.Store)
	}

	if p.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	if p.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(p.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     p.ServerAddr,
		Store:          p.Store,
		DatabaseDSN:    p.DatabaseDSN,
		RedisAddr:      p.RedisAddr,
		RedisPassword:  p.RedisPassword,
		SigningKey:     signingKey,
		AllowedOrigins: p.AllowedOrigins,
		SweepInterval:  p.SweepInterval,
	}, nil
}

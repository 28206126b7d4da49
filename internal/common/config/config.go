package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// TokenTTLHours bounds how long a resolved order token stays cached.
	TokenTTLHours int `yaml:"token_ttl_hours"`
}

type HTTP struct {
	Port int `yaml:"port"`
}

type Hub struct {
	SendBuffer      int `yaml:"send_buffer"`
	PingIntervalSec int `yaml:"ping_interval_sec"`
	PongWaitSec     int `yaml:"pong_wait_sec"`
}

type Gateway struct {
	LockWaitMS int `yaml:"lock_wait_ms"`
}

type Notify struct {
	WebhookURL string `yaml:"webhook_url"`
	Token      string `yaml:"token"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type App struct {
	HTTP     HTTP    `yaml:"http"`
	Database DB      `yaml:"database"`
	Redis    Redis   `yaml:"redis"`
	Hub      Hub     `yaml:"hub"`
	Gateway  Gateway `yaml:"gateway"`
	Notify   Notify  `yaml:"notify"`
	Log      Log     `yaml:"log"`
}

func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}

	a := App{}
	a.HTTP.Port = 3000
	a.Database.Port = 5432
	a.Database.SSLMode = "disable"
	a.Database.MaxConns = 10
	a.Log.Level = "info"
	a.Log.Format = "json"

	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse config: %w", err)
	}

	if a.Database.Host == "" || a.Database.User == "" || a.Database.Database == "" {
		return App{}, errors.New("invalid config: database host/user/database are required")
	}
	return a, nil
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

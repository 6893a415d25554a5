package configuration

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"replkv/internal/configuration/properties"
	"replkv/internal/configuration/util"
	"replkv/internal/statemachine"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDir = "internal/static"
	dirEnvVar  = "REPLKV_CONFIG_DIR"
)

// Dir returns the config directory, REPLKV_CONFIG_DIR when set.
func Dir() string {
	if d, ok := os.LookupEnv(dirEnvVar); ok && d != "" {
		return d
	}
	return DefaultDir
}

// Load reads application.yml from dir, overlays application-<profile>.yml
// when a profile is set, fills defaults and validates the result.
func Load(dir string) (*properties.Config, error) {
	cfg, err := loadBaseConfig(dir)
	if err != nil {
		return nil, err
	}

	if cfg.Application.Profile != "" {
		if err := loadProfileConfig(dir, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadBaseConfig(dir string) (*properties.Config, error) {
	baseConfig, err := util.LoadAndExpandYaml(dir, "application")
	if err != nil {
		slog.Error("Error loading base config", "error", err)
		return nil, err
	}

	cfg := properties.Config{}
	if err := yaml.Unmarshal([]byte(baseConfig), &cfg); err != nil {
		slog.Error("Error parsing base config", "error", err)
		return nil, fmt.Errorf("parse application.yml: %w", err)
	}

	return &cfg, nil
}

func loadProfileConfig(dir string, cfg *properties.Config) error {
	name := "application-" + cfg.Application.Profile
	profileConfig, err := util.LoadAndExpandYaml(dir, name)
	if err != nil {
		slog.Error("Error loading profile config", "profile", cfg.Application.Profile, "error", err)
		return err
	}

	if err := yaml.Unmarshal([]byte(profileConfig), cfg); err != nil {
		slog.Error("Error parsing profile config", "profile", cfg.Application.Profile, "error", err)
		return fmt.Errorf("parse %s.yml: %w", name, err)
	}

	return nil
}

func applyDefaults(cfg *properties.Config) {
	if cfg.Application.LogLevel == "" {
		cfg.Application.LogLevel = "info"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Transport.Network == "" {
		cfg.Transport.Network = "tcp"
	}
	if cfg.Transport.Address == "" {
		cfg.Transport.Address = ":9090"
	}
	if cfg.Transport.RequestTimeout == 0 {
		cfg.Transport.RequestTimeout = 5000
	}
	if cfg.Transport.MaxConcurrentStreams == 0 {
		cfg.Transport.MaxConcurrentStreams = 100
	}
	if cfg.Raft.GroupId == 0 {
		cfg.Raft.GroupId = 1
	}
	if cfg.Raft.NodeId == 0 {
		cfg.Raft.NodeId = 1
	}
	if cfg.Raft.TickInterval == 0 {
		cfg.Raft.TickInterval = 100
	}
}

func validate(cfg *properties.Config) error {
	if cfg.Raft.StorageBaseDir == "" {
		return fmt.Errorf("raft.storage-base-dir is required")
	}
	// request IDs embed the node ID in 16 bits
	if cfg.Raft.NodeId > math.MaxUint16 {
		return fmt.Errorf("raft.node-id %d exceeds %d", cfg.Raft.NodeId, math.MaxUint16)
	}
	if _, err := statemachine.ParseDigestMode(cfg.StateMachine.Digest); err != nil {
		return fmt.Errorf("state-machine.digest: %w", err)
	}
	return nil
}

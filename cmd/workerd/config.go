package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgeworker/internal/protocol/session"
	"github.com/danmuck/edgeworker/internal/targets/fs"
	"github.com/danmuck/edgeworker/internal/worker"
	"github.com/google/uuid"
)

// ProcessConfig is everything one workerd process needs.
type ProcessConfig struct {
	Session   worker.SessionConfig
	Transport session.Config
	FSRoot    string
	AdminAddr string
	LogLevel  string
}

type fileConfig struct {
	WorkerID         string `toml:"worker_id"`
	Implementation   string `toml:"implementation"`
	FSRoot           string `toml:"fs_root"`
	AdminAddr        string `toml:"admin_addr"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	MaxPayloadBytes  int64  `toml:"max_payload_bytes"`
	LogLevel         string `toml:"log_level"`
}

func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		Session: worker.SessionConfig{
			WorkerID: "worker-" + uuid.NewString()[:8],
		},
		Transport: session.DefaultConfig(),
		FSRoot:    string(fs.DefaultRoot),
	}
}

func loadProcessConfig(path string) (ProcessConfig, error) {
	cfg := DefaultProcessConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ProcessConfig{}, fmt.Errorf("load workerd config: %w", err)
	}

	if meta.IsDefined("worker_id") {
		if id := strings.TrimSpace(raw.WorkerID); id != "" {
			cfg.Session.WorkerID = id
		}
	}

	if meta.IsDefined("implementation") {
		cfg.Session.Implementation = strings.TrimSpace(raw.Implementation)
	}

	if meta.IsDefined("fs_root") {
		if root := strings.TrimSpace(raw.FSRoot); root != "" {
			cfg.FSRoot = root
		}
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}

	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return ProcessConfig{}, fmt.Errorf("parse handshake_timeout: %w", err)
		}
		cfg.Transport.HandshakeTimeout = d
	}

	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 {
			return ProcessConfig{}, fmt.Errorf("parse max_payload_bytes: must be positive, got %d", raw.MaxPayloadBytes)
		}
		cfg.Transport.MaxPayloadBytes = uint64(raw.MaxPayloadBytes)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}

// Package config provides configuration loading from environment variables.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Runner kinds.
const (
	RunnerExec   = "exec"
	RunnerDocker = "docker"
)

// Defaults holds env-derived defaults for the topcons-job command.
// Flags override every field.
type Defaults struct {
	Launcher     string        // Path to the job service launcher script (no built-in default)
	Interpreter  string        // Program used to run the launcher; empty runs it directly
	OutputDir    string        // Where result archives are downloaded
	PollInterval time.Duration // Fixed delay between polls
	MaxPolls     int           // Attempt bound for the poll loop
	Runner       string        // "exec" or "docker"
	DockerImage  string        // Image used when Runner is "docker"
	StatusAddr   string        // Optional status server listen address
	CallbackURL  string        // Optional lifecycle callback destination
	CallbackKey  string        // HMAC key for callbacks
	LogLevel     slog.Level
}

// LoadDefaults loads command defaults from environment variables.
func LoadDefaults() *Defaults {
	return &Defaults{
		Launcher:     GetEnv("TOPCONS_LAUNCHER", ""),
		Interpreter:  GetEnv("TOPCONS_INTERPRETER", "python3"),
		OutputDir:    GetEnv("TOPCONS_OUTPUT_DIR", "output_topcons"),
		PollInterval: GetDurationEnv("TOPCONS_POLL_SECONDS", 60*time.Second),
		MaxPolls:     GetIntEnv("TOPCONS_MAX_POLLS", 240),
		Runner:       GetEnv("TOPCONS_RUNNER", RunnerExec),
		DockerImage:  GetEnv("TOPCONS_DOCKER_IMAGE", "python:3.12-slim"),
		StatusAddr:   GetEnv("TOPCONS_STATUS_ADDR", ""),
		CallbackURL:  GetEnv("TOPCONS_CALLBACK_URL", ""),
		CallbackKey:  GetSecretFile(GetEnv("TOPCONS_CALLBACK_KEY_FILE", "")),
		LogLevel:     ParseLevel(GetEnv("LOG_LEVEL", "info")),
	}
}

// ParseLevel parses a slog level name, falling back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

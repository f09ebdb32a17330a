package config

import (
	"time"
)

// Config is the top-level configuration for both gambiarra-server and
// gambiarra-client; each binary reads only the sections relevant to it,
// mirroring the teacher's single-Config-struct-shared-by-every-binary
// convention.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	LLM      LLMConfig      `yaml:"llm"`
	Session  SessionConfig  `yaml:"session"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Approval ApprovalConfig `yaml:"approval"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ClientConfig configures the workspace client's connection to an
// orchestration server and its local sandbox root.
type ClientConfig struct {
	ServerURL        string        `yaml:"server_url"`
	WorkingDirectory string        `yaml:"working_directory"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	MaxReconnects    int           `yaml:"max_reconnects"`
}

// SessionConfig controls default session behavior, mirroring
// models.SessionConfig's fields so a server operator can set fleet-wide
// defaults that create_session may still override per session.
type SessionConfig struct {
	AutoApproveReads         bool   `yaml:"auto_approve_reads"`
	RequireApprovalForWrites bool   `yaml:"require_approval_for_writes"`
	MaxConcurrentFileReads   int    `yaml:"max_concurrent_file_reads"`
	OperatingMode            string `yaml:"operating_mode"`
	IdleTimeout              time.Duration `yaml:"idle_timeout"`
}

// SandboxConfig tunes the client-side path and command sandboxes.
type SandboxConfig struct {
	AllowedRoots    []string `yaml:"allowed_roots"`
	ExtraAllowedCommands []string `yaml:"extra_allowed_commands"`
	ExtraBlockedCommands []string `yaml:"extra_blocked_commands"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
}

// ApprovalConfig tunes the client-side approval pipeline.
type ApprovalConfig struct {
	RepetitionLimit int `yaml:"repetition_limit"`
	MistakeBudget   int `yaml:"mistake_budget"`
}

// LoggingConfig controls structured logging output, grounded on the
// teacher's slog-based LoggingConfig.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

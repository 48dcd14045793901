package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ParseTimeout == 0 {
		cfg.Server.ParseTimeout = 30 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/cvtext/data/db/resumes.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/cvtext/data/indices/bleve"
	}
	if cfg.Parser.MaxTextBytes == 0 {
		cfg.Parser.MaxTextBytes = 512 << 10
	}
	if cfg.Parser.MaxFileBytes == 0 {
		cfg.Parser.MaxFileBytes = 32 << 20
	}
	if cfg.Parser.LegacyEncoding == "" {
		cfg.Parser.LegacyEncoding = "windows-1252"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".pdf", ".doc", ".docx", ".rtf"}
	}
	if cfg.Watch.Workers == 0 {
		cfg.Watch.Workers = 4
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

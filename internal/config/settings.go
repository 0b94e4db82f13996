package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultGatewayAddress = "127.0.0.1:7171"

const (
	defaultHistoryLimit = 200

	defaultMaxAttachmentBytes      = 5 << 20
	defaultMaxAttachmentCount      = 10
	defaultMaxAttachmentTotalBytes = 20 << 20
)

type Settings struct {
	Gateway     GatewaySettings    `toml:"gateway"`
	Chat        ChatSettings       `toml:"chat"`
	Attachments AttachmentSettings `toml:"attachments"`
	Logging     LoggingSettings    `toml:"logging"`
	Debug       DebugSettings      `toml:"debug"`
}

type GatewaySettings struct {
	Address string `toml:"address"`
}

type ChatSettings struct {
	HistoryLimit int `toml:"history_limit"`
}

type AttachmentSettings struct {
	MaxFileBytes  int64 `toml:"max_file_bytes"`
	MaxFiles      int   `toml:"max_files"`
	MaxTotalBytes int64 `toml:"max_total_bytes"`
}

type LoggingSettings struct {
	Level string `toml:"level"`
}

type DebugSettings struct {
	StreamDebug bool `toml:"stream_debug"`
}

func DefaultSettings() Settings {
	return Settings{
		Gateway: GatewaySettings{
			Address: defaultGatewayAddress,
		},
		Chat: ChatSettings{
			HistoryLimit: defaultHistoryLimit,
		},
		Attachments: AttachmentSettings{
			MaxFileBytes:  defaultMaxAttachmentBytes,
			MaxFiles:      defaultMaxAttachmentCount,
			MaxTotalBytes: defaultMaxAttachmentTotalBytes,
		},
		Logging: LoggingSettings{
			Level: "info",
		},
	}
}

func LoadSettings() (Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return Settings{}, err
	}
	return loadSettingsFromPath(path)
}

func loadSettingsFromPath(path string) (Settings, error) {
	cfg := DefaultSettings()
	if err := readTOML(path, &cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func SaveSettings(cfg Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return toml.Unmarshal(data, out)
}

func (s Settings) GatewayAddress() string {
	addr := strings.TrimSpace(s.Gateway.Address)
	if addr == "" {
		return defaultGatewayAddress
	}
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimRight(addr, "/")
	if addr == "" {
		return defaultGatewayAddress
	}
	return addr
}

func (s Settings) GatewayBaseURL() string {
	return "http://" + s.GatewayAddress()
}

func (s Settings) HistoryLimit() int {
	if s.Chat.HistoryLimit <= 0 {
		return defaultHistoryLimit
	}
	return s.Chat.HistoryLimit
}

func (s Settings) LogLevel() string {
	level := strings.TrimSpace(s.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (s Settings) MaxAttachmentBytes() int64 {
	if s.Attachments.MaxFileBytes <= 0 {
		return defaultMaxAttachmentBytes
	}
	return s.Attachments.MaxFileBytes
}

func (s Settings) MaxAttachmentCount() int {
	if s.Attachments.MaxFiles <= 0 {
		return defaultMaxAttachmentCount
	}
	return s.Attachments.MaxFiles
}

func (s Settings) MaxAttachmentTotalBytes() int64 {
	if s.Attachments.MaxTotalBytes <= 0 {
		return defaultMaxAttachmentTotalBytes
	}
	return s.Attachments.MaxTotalBytes
}

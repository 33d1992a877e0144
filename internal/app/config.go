package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"roomchat/internal/log"
)

// EnvPrefix prefixes every environment override, e.g. ROOMCHAT_SERVER_ADDR.
const EnvPrefix = "ROOMCHAT"

type Config struct {
	Server ServerConfig
	Client ClientConfig
	Log    log.Config
}

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr        string
	DBPath      string        `mapstructure:"db_path"`
	UploadDir   string        `mapstructure:"upload_dir"`
	MaxFileSize int64         `mapstructure:"max_file_size"`
	SigningKey  string        `mapstructure:"signing_key"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	Admins      []string
	Rooms       []string
	Timezone    string
}

// ClientConfig defines the parameters the terminal views need.
type ClientConfig struct {
	ServerURL   string `mapstructure:"server_url"`
	Username    string
	Room        string
	DownloadDir string `mapstructure:"download_dir"`
	Timezone    string
	// AdminSingleFlight skips a moderation poll while the previous one runs.
	AdminSingleFlight bool `mapstructure:"admin_single_flight"`
}

// NewViper prepares a viper instance with defaults and env overrides. A
// missing config file is not an error; explicit paths must exist.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("roomchat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "roomchat"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.db_path", DefaultDBPath())
	v.SetDefault("server.upload_dir", DefaultUploadDir())
	v.SetDefault("server.max_file_size", 10*1024*1024)
	v.SetDefault("server.signing_key", "")
	v.SetDefault("server.session_ttl", "24h")
	v.SetDefault("server.admins", []string{"admin"})
	v.SetDefault("server.rooms", []string{"general", "random"})
	v.SetDefault("server.timezone", "")
	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.username", defaultUsername())
	v.SetDefault("client.room", "1")
	v.SetDefault("client.download_dir", "")
	v.SetDefault("client.timezone", "")
	v.SetDefault("client.admin_single_flight", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service", "roomchat")
	v.SetDefault("log.file", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configFile == "" {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// Decode unmarshals the merged configuration.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LoadLocation resolves a timezone name; empty means the local zone.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func defaultUsername() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	return filepath.Join(dataDir(), "roomchat.db")
}

// DefaultUploadDir is where the server keeps uploaded files.
func DefaultUploadDir() string {
	return filepath.Join(dataDir(), "uploads")
}

func dataDir() string {
	if env := os.Getenv("ROOMCHAT_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomchat")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Roomchat")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Roomchat")
		}
		return filepath.Join(home, ".local", "share", "roomchat")
	}
	return filepath.Join(".", ".roomchat")
}

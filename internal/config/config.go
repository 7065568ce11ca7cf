package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is stamped into the default creator label of seeded descriptors.
var Version = "0.1.0"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Data struct {
		Dir string
	}
	Store struct {
		Driver         string
		Path           string
		SQLitePath     string
		Bucket         string
		Key            string
		Region         string
		Endpoint       string
		ResetOnCorrupt bool
	}
	AWS struct {
		Profile string
	}
	Engine struct {
		DownloadDir string
		ListenPort  int
		Seed        bool
		NoUpload    bool
		Private     bool
		Creator     string
	}
	Snapshot struct {
		Interval time.Duration
	}
	Auth struct {
		JWTSecret       string
		PasswordHash    string
		TokenTTLMinutes int
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("SPATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("data.dir"))
	_ = v.ReadInConfig() // optional file

	// paths under the data dir follow it unless set explicitly
	dataDir := v.GetString("data.dir")
	if !v.IsSet("store.path") {
		v.Set("store.path", filepath.Join(dataDir, "torrents.json"))
	}
	if !v.IsSet("store.sqlitepath") {
		v.Set("store.sqlitepath", filepath.Join(dataDir, "spate.db"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "json", "sqlite", "s3":
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "s3" && cfg.Store.Bucket == "" {
		return Config{}, fmt.Errorf("store bucket is required for the s3 driver")
	}
	if cfg.Snapshot.Interval <= 0 {
		return Config{}, fmt.Errorf("snapshot interval must be positive")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("data.dir", defaultDataDir())
	v.SetDefault("store.driver", "json")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.key", "spate/torrents.json")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.resetoncorrupt", false)
	v.SetDefault("aws.profile", "")
	v.SetDefault("engine.downloaddir", defaultDownloadDir())
	v.SetDefault("engine.listenport", 42069)
	v.SetDefault("engine.seed", true)
	v.SetDefault("engine.noupload", false)
	v.SetDefault("engine.private", true)
	v.SetDefault("engine.creator", "Spate "+Version)
	v.SetDefault("snapshot.interval", "1s")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.passwordhash", "")
	v.SetDefault("auth.tokenttlminutes", 720)
	v.SetDefault("log.level", "info")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "Spate")
	}
	return filepath.Join("data", "Spate")
}

func defaultDownloadDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return filepath.Join("data", "downloads")
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}

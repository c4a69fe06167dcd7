// Package config resolves the server settings from defaults, an optional
// config file, FLOODMAP_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key: map.closeZoom is read from
// FLOODMAP_MAP_CLOSEZOOM.
const EnvPrefix = "FLOODMAP"

// DefaultTileURL is Esri World Imagery.
const DefaultTileURL = "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"

// Fixture sources.
const (
	SourceEmbedded = "embedded"
	SourceDir      = "dir"
	SourceSQLite   = "sqlite"
	SourcePgx      = "pgx"
	SourceGenji    = "genji"
)

var ErrInvalid = errors.New("invalid configuration")

type Data struct {
	Dir    string `mapstructure:"dir"`
	Source string `mapstructure:"source"`
	DSN    string `mapstructure:"dsn"`
}

type Map struct {
	CloseZoom      int           `mapstructure:"closeZoom"`
	Padding        int           `mapstructure:"padding"`
	InitialPadding int           `mapstructure:"initialPadding"`
	SettleDelay    time.Duration `mapstructure:"settleDelay"`
	TileURL        string        `mapstructure:"tileURL"`
	IconURL        string        `mapstructure:"iconURL"`
}

type Cache struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type API struct {
	QRCooldown time.Duration `mapstructure:"qrCooldown"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Config is the resolved server configuration.
type Config struct {
	Port      int    `mapstructure:"port"`
	Domain    string `mapstructure:"domain"`
	PublicURL string `mapstructure:"publicURL"`
	Data      Data   `mapstructure:"data"`
	Map       Map    `mapstructure:"map"`
	Cache     Cache  `mapstructure:"cache"`
	API       API    `mapstructure:"api"`
	Log       Log    `mapstructure:"log"`
	Version   bool   `mapstructure:"version"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8765)
	v.SetDefault("domain", "")
	v.SetDefault("publicURL", "")

	v.SetDefault("data.dir", "")
	v.SetDefault("data.source", SourceEmbedded)
	v.SetDefault("data.dsn", "")

	v.SetDefault("map.closeZoom", 14)
	v.SetDefault("map.padding", 100)
	v.SetDefault("map.initialPadding", 50)
	v.SetDefault("map.settleDelay", "100ms")
	v.SetDefault("map.tileURL", DefaultTileURL)
	v.SetDefault("map.iconURL", "")

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("api.qrCooldown", "500ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("version", false)
}

// flag name -> config key
var flagKeys = map[string]string{
	"port":            "port",
	"domain":          "domain",
	"public-url":      "publicURL",
	"data-dir":        "data.dir",
	"data-source":     "data.source",
	"data-dsn":        "data.dsn",
	"close-zoom":      "map.closeZoom",
	"padding":         "map.padding",
	"initial-padding": "map.initialPadding",
	"settle-delay":    "map.settleDelay",
	"tile-url":        "map.tileURL",
	"icon-url":        "map.iconURL",
	"cache-ttl":       "cache.ttl",
	"qr-cooldown":     "api.qrCooldown",
	"log-level":       "log.level",
	"log-pretty":      "log.pretty",
	"version":         "version",
}

// NewFlagSet declares the command-line flags. Defaults shown in --help come
// from the config defaults; an unset flag never overrides file or env.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "config file (JSON, YAML or TOML)")
	fs.Int("port", 8765, "HTTP port (ignored with --domain)")
	fs.String("domain", "", "serve HTTPS for this domain with Let's Encrypt on :443, redirecting :80")
	fs.String("public-url", "", "base URL encoded in sensor QR codes (default: the request host)")
	fs.String("data-dir", "", "read sensors.json, cameras.json and lines.json from this directory")
	fs.String("data-source", SourceEmbedded, "fixture source: embedded, dir, sqlite, pgx or genji")
	fs.String("data-dsn", "", "data source name for the sqlite and pgx sources")
	fs.Int("close-zoom", 14, "zoom used when focusing a single sensor")
	fs.Int("padding", 100, "padding in pixels when fitting several sensors")
	fs.Int("initial-padding", 50, "padding in pixels of the first view")
	fs.Duration("settle-delay", 100*time.Millisecond, "wait before fitting after the list changed")
	fs.String("tile-url", DefaultTileURL, "tile layer URL template")
	fs.String("icon-url", "", "marker icon URL")
	fs.Duration("cache-ttl", 5*time.Minute, "lifetime of cached GeoJSON and QR responses, 0 disables")
	fs.Duration("qr-cooldown", 500*time.Millisecond, "per-client wait between QR code requests, 0 disables")
	fs.String("log-level", "info", "trace, debug, info, warn or error")
	fs.Bool("log-pretty", false, "human-readable console logs")
	fs.Bool("version", false, "print version and exit")
	return fs
}

// Load parses args (without the program name) and resolves the configuration.
// pflag.ErrHelp is returned unwrapped for -h.
func Load(args []string) (Config, error) {
	fs := NewFlagSet("flood-sensor-map")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Data.Source = strings.ToLower(strings.TrimSpace(c.Data.Source))
	if c.Data.Source == "" || (c.Data.Source == SourceEmbedded && c.Data.Dir != "") {
		// A data dir on its own means "read it".
		if c.Data.Dir != "" {
			c.Data.Source = SourceDir
		} else {
			c.Data.Source = SourceEmbedded
		}
	}
	switch c.Data.Source {
	case SourceEmbedded:
	case SourceDir:
		if c.Data.Dir == "" {
			return fmt.Errorf("%w: data.source=dir needs data.dir", ErrInvalid)
		}
	case SourceSQLite, SourcePgx, SourceGenji:
		if c.Data.DSN == "" {
			return fmt.Errorf("%w: data.source=%s needs data.dsn", ErrInvalid, c.Data.Source)
		}
	default:
		return fmt.Errorf("%w: unknown data.source %q", ErrInvalid, c.Data.Source)
	}
	if c.Domain == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	// Zero close zoom, fit padding or settle delay would silently fall back
	// to the map defaults, so they are rejected here instead.
	if c.Map.CloseZoom < 1 || c.Map.CloseZoom > 22 {
		return fmt.Errorf("%w: map.closeZoom %d out of range 1..22", ErrInvalid, c.Map.CloseZoom)
	}
	if c.Map.Padding < 1 {
		return fmt.Errorf("%w: map.padding %d must be positive", ErrInvalid, c.Map.Padding)
	}
	if c.Map.InitialPadding < 0 {
		return fmt.Errorf("%w: negative map.initialPadding", ErrInvalid)
	}
	if c.Map.SettleDelay <= 0 {
		return fmt.Errorf("%w: map.settleDelay %s must be positive", ErrInvalid, c.Map.SettleDelay)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	return nil
}

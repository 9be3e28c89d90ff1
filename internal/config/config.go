// Package config loads server settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Game     Game     `yaml:"game"`
	Scoring  Scoring  `yaml:"scoring"`
	Admin    Admin    `yaml:"admin"`
	Limits   Limits   `yaml:"limits"`
}

type Server struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// TrustedProxies are the addresses or CIDR ranges whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty trusts no one.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type Database struct {
	// Path of the sqlite file, or ":memory:".
	Path string `yaml:"path"`
}

type Game struct {
	QuestionCount      int `yaml:"question_count"`
	MazeCacheSize      int `yaml:"maze_cache_size"`
	SuspiciousAnswerMs int `yaml:"suspicious_answer_ms"`
	MaxTabSwitches     int `yaml:"max_tab_switches"`
}

type Scoring struct {
	// Formula is an optional JavaScript expression; empty uses the built-in rule.
	Formula string `yaml:"formula"`
}

type Admin struct {
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	KeyringService string        `yaml:"keyring_service"`
	// SecretsFile is used when no OS keyring is reachable.
	SecretsFile string `yaml:"secrets_file"`
}

// Limit allows Requests per Window for each client address.
type Limit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type Limits struct {
	General Limit `yaml:"general"`
	Answer  Limit `yaml:"answer"`
	Auth    Limit `yaml:"auth"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:           ":3001",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			RequestTimeout: 30 * time.Second,
		},
		Database: Database{Path: "mindtrap.db"},
		Game: Game{
			QuestionCount:      30,
			MazeCacheSize:      1024,
			SuspiciousAnswerMs: 1500,
			MaxTabSwitches:     10,
		},
		Admin: Admin{
			Username:       "admin",
			TokenTTL:       12 * time.Hour,
			KeyringService: "mindtrap",
		},
		Limits: Limits{
			General: Limit{Requests: 60, Window: time.Minute},
			Answer:  Limit{Requests: 5, Window: 10 * time.Second},
			Auth:    Limit{Requests: 10, Window: 15 * time.Minute},
		},
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer file.Close()
		d := yaml.NewDecoder(file)
		d.KnownFields(true)
		if err := d.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	str("MINDTRAP_DB", &c.Database.Path)
	str("ADMIN_USERNAME", &c.Admin.Username)
	str("ADMIN_PASSWORD", &c.Admin.Password)
	str("JWT_SECRET", &c.Admin.JWTSecret)
	str("MINDTRAP_SCORE_FORMULA", &c.Scoring.Formula)
	if err := num("MINDTRAP_QUESTION_COUNT", &c.Game.QuestionCount); err != nil {
		return err
	}
	if v, ok := lookup("MINDTRAP_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("MINDTRAP_TRUSTED_PROXIES"); ok && v != "" {
		c.Server.TrustedProxies = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParsePrefixes reads addresses and CIDR ranges. A bare address is a
// single-host range.
func ParsePrefixes(items []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(items))
	for _, item := range items {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("config: server.addr is required")
	case c.Database.Path == "":
		return errors.New("config: database.path is required")
	case c.Game.QuestionCount < 1 || c.Game.QuestionCount > 200:
		return fmt.Errorf("config: game.question_count must be 1-200, got %d", c.Game.QuestionCount)
	case c.Game.MazeCacheSize < 0:
		return fmt.Errorf("config: game.maze_cache_size must not be negative")
	case c.Game.SuspiciousAnswerMs < 0 || c.Game.MaxTabSwitches < 0:
		return errors.New("config: game thresholds must not be negative")
	case c.Admin.Username == "":
		return errors.New("config: admin.username is required")
	case c.Admin.Password == "":
		return errors.New("config: admin.password is required (set ADMIN_PASSWORD)")
	case c.Admin.TokenTTL <= 0:
		return errors.New("config: admin.token_ttl must be positive")
	}
	if _, err := ParsePrefixes(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("config: server.trusted_proxies: %w", err)
	}
	for name, l := range map[string]Limit{"general": c.Limits.General, "answer": c.Limits.Answer, "auth": c.Limits.Auth} {
		if l.Requests <= 0 || l.Window <= 0 {
			return fmt.Errorf("config: limits.%s needs positive requests and window", name)
		}
	}
	return nil
}

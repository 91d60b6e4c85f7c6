package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultAddr = ":8081"

type Config struct {
	Addr    string
	Env     string
	APIKey  string
	Offline bool

	Models   ModelConfig
	Provider ProviderConfig
	Session  SessionConfig
	Runway   RunwayConfig
	Search   SearchConfig
}

type ModelConfig struct {
	Chat      string
	Reasoning string
	Image     string
	Edit      string
	Video     string
}

type ProviderConfig struct {
	RPS             float64
	Burst           int
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type SessionConfig struct {
	HistoryWindow    int
	ManualDisclosure bool
	Welcome          string
}

type RunwayConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	AspectRatio  string
	Resolution   string
	Catalog      string
}

type SearchConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// New returns a viper instance carrying every default and environment
// binding. Callers bind their command-line flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ATELIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "local")
	v.SetDefault("offline", false)

	v.SetDefault("models.chat", "")
	v.SetDefault("models.reasoning", "")
	v.SetDefault("models.image", "")
	v.SetDefault("models.edit", "")
	v.SetDefault("models.video", "")

	v.SetDefault("provider.rps", 2.0)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("provider.retry_attempts", 3)
	v.SetDefault("provider.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("provider.breaker_failures", 5)
	v.SetDefault("provider.breaker_timeout", 30*time.Second)

	v.SetDefault("session.history_window", 20)
	v.SetDefault("session.manual_disclosure", false)
	v.SetDefault("session.welcome", "")

	v.SetDefault("runway.poll_interval", 10*time.Second)
	v.SetDefault("runway.max_wait", 10*time.Minute)
	v.SetDefault("runway.aspect_ratio", "9:16")
	v.SetDefault("runway.resolution", "")
	v.SetDefault("runway.catalog", "")

	v.SetDefault("search.cache_size", 128)
	v.SetDefault("search.cache_ttl", time.Hour)

	_ = v.BindEnv("api_key", "ATELIER_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("env", "ATELIER_ENV", "APP_ENV")
	return v
}

// Load reads .env (if present) and resolves the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()
	if v == nil {
		v = New()
	}

	addr := firstNonEmpty(v.GetString("addr"), os.Getenv("PORT"), DefaultAddr)
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	cfg := &Config{
		Addr:    addr,
		Env:     strings.TrimSpace(v.GetString("env")),
		APIKey:  strings.TrimSpace(v.GetString("api_key")),
		Offline: v.GetBool("offline"),
		Models: ModelConfig{
			Chat:      v.GetString("models.chat"),
			Reasoning: v.GetString("models.reasoning"),
			Image:     v.GetString("models.image"),
			Edit:      v.GetString("models.edit"),
			Video:     v.GetString("models.video"),
		},
		Provider: ProviderConfig{
			RPS:             v.GetFloat64("provider.rps"),
			Burst:           v.GetInt("provider.burst"),
			RetryAttempts:   v.GetInt("provider.retry_attempts"),
			RetryBaseDelay:  v.GetDuration("provider.retry_base_delay"),
			BreakerFailures: v.GetUint32("provider.breaker_failures"),
			BreakerTimeout:  v.GetDuration("provider.breaker_timeout"),
		},
		Session: SessionConfig{
			HistoryWindow:    v.GetInt("session.history_window"),
			ManualDisclosure: v.GetBool("session.manual_disclosure"),
			Welcome:          v.GetString("session.welcome"),
		},
		Runway: RunwayConfig{
			PollInterval: v.GetDuration("runway.poll_interval"),
			MaxWait:      v.GetDuration("runway.max_wait"),
			AspectRatio:  v.GetString("runway.aspect_ratio"),
			Resolution:   v.GetString("runway.resolution"),
			Catalog:      strings.TrimSpace(v.GetString("runway.catalog")),
		},
		Search: SearchConfig{
			CacheSize: v.GetInt("search.cache_size"),
			CacheTTL:  v.GetDuration("search.cache_ttl"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Configured reports whether a real provider can be built.
func (c *Config) Configured() bool {
	return !c.Offline && c.APIKey != ""
}

func (c *Config) validate() error {
	switch {
	case c.Provider.RPS < 0:
		return fmt.Errorf("config: provider.rps must not be negative")
	case c.Runway.PollInterval <= 0:
		return fmt.Errorf("config: runway.poll_interval must be positive")
	case c.Runway.MaxWait < c.Runway.PollInterval:
		return fmt.Errorf("config: runway.max_wait (%s) is shorter than runway.poll_interval (%s)", c.Runway.MaxWait, c.Runway.PollInterval)
	case c.Session.HistoryWindow <= 0:
		return fmt.Errorf("config: session.history_window must be positive")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

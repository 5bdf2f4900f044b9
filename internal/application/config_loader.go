package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// envPattern matches ${VAR} and ${VAR:-default}. Bare $VAR is left alone so
// DSNs and passwords may contain dollar signs.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfig reads, expands, decodes and validates the YAML file at path.
// LoadConfig returns an error if the file cannot be read, contains unknown
// fields, or violates a validation rule.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return loadConfig(data, os.LookupEnv)
}

// LoadConfigFromReader behaves like LoadConfig for any io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return loadConfig(data, os.LookupEnv)
}

func loadConfig(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	expanded, err := expandEnv(data, lookupEnv)
	if err != nil {
		return nil, err
	}

	config, err := parseYAML(expanded)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// expandEnv substitutes ${VAR} references. A reference to an unset variable
// without a default is an error rather than an empty string.
func expandEnv(data []byte, lookupEnv func(string) (string, bool)) ([]byte, error) {
	var missing []string
	out := envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		if v, ok := lookupEnv(name); ok {
			return []byte(v)
		}
		if bytes.Contains(match, []byte(":-")) {
			return groups[2]
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return nil, ports.NewConfigError(strings.Join(missing, ","),
			fmt.Errorf("%w: unset environment variable", ports.ErrConfigNotFound))
	}
	return out, nil
}

// parseYAML decodes over DefaultConfig in strict mode, so unknown fields fail
// instead of being silently ignored.
func parseYAML(data []byte) (*Config, error) {
	config := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig runs struct tag validation followed by the cross-field rules
// that tags cannot express.
func validateConfig(config *Config) error {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return err
	}

	if err := v.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

func validateSemantics(config *Config) error {
	if config.Events.Backend == "asynq" && config.Redis.Addr == "" {
		return ports.NewConfigError("redis.addr", errors.New("required by the asynq event backend"))
	}
	if config.Leaderboard.Backend == "redis" && config.Redis.Addr == "" {
		return ports.NewConfigError("redis.addr", errors.New("required by the redis leaderboard backend"))
	}
	if config.Leaderboard.Backend == "redis" && config.Leaderboard.Key == "" {
		return ports.NewConfigError("leaderboard.key", errors.New("must not be empty"))
	}
	if config.Events.Backend == "asynq" && config.Events.Queue == "" {
		return ports.NewConfigError("events.queue", errors.New("must not be empty"))
	}

	for _, path := range []struct {
		key string
		cfg *ProviderPathConfig
	}{
		{"scoring.primary", &config.Scoring.Primary},
		{"scoring.secondary", config.Scoring.Secondary},
	} {
		if path.cfg == nil {
			continue
		}
		r := path.cfg.Retry
		if r.MaxInterval > 0 && r.InitialInterval > r.MaxInterval {
			return ports.NewConfigError(path.key+".retry", errors.New("initial_interval exceeds max_interval"))
		}
		if path.cfg.RateLimit > 0 && path.cfg.RateBurst == 0 {
			return ports.NewConfigError(path.key+".rate_burst", errors.New("must be positive when rate_limit is set"))
		}
		provider, _, _ := strings.Cut(path.cfg.Model, "/")
		if !knownProvider(config, provider) {
			return ports.NewConfigError(path.key+".model", fmt.Errorf("unknown provider %q", provider))
		}
	}

	if _, err := config.TierLadder(); err != nil {
		return ports.NewConfigError("tiers", err)
	}
	return nil
}

func knownProvider(config *Config, name string) bool {
	switch name {
	case "openai", "anthropic", "google":
		return true
	}
	_, ok := config.Scoring.Providers[name]
	return ok
}

// RegisterConfigValidators registers the custom struct tags used by Config.
// RegisterConfigValidators returns an error if any registration fails.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	return nil
}

// validateModelFormat accepts "provider/model" with a non-empty provider and
// model.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}

	provider, name, ok := strings.Cut(model, "/")
	return ok && provider != "" && name != ""
}

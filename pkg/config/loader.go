package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/seastate/oceansync/pkg/syncerrors"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// OCEANSYNC_OUTPUT_CHUNK_SIZE or OCEANSYNC_SOURCES_COPERNICUS_CREDENTIALS_TOKEN.
const EnvPrefix = "OCEANSYNC"

// Load builds the run configuration by layering defaults, the optional YAML
// file at path, and OCEANSYNC_* environment variables, then validates the
// result. Precedence: environment > file > default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerDefaults(v, Default())

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is provided by the operator
		if err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to read config file")
		}
		content := substituteEnvVars(string(data))
		if err := v.ReadConfig(bytes.NewReader([]byte(content))); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to parse config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults makes every key known to viper so environment overrides
// are picked up even when the key is absent from the file.
func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("output.root", d.Output.Root)
	v.SetDefault("output.chunk_size", d.Output.ChunkSize)
	v.SetDefault("output.cleanup_temp_files", d.Output.CleanupTempFiles)

	v.SetDefault("sync.workers", d.Sync.Workers)
	v.SetDefault("sync.max_attempts", d.Sync.MaxAttempts)
	v.SetDefault("sync.retry_delay", d.Sync.RetryDelay)
	v.SetDefault("sync.max_retry_delay", d.Sync.MaxRetryDelay)
	v.SetDefault("sync.run_timeout", d.Sync.RunTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.text_log", d.Logging.TextLog)
	v.SetDefault("logging.event_table", d.Logging.EventTable)
	v.SetDefault("logging.json_summary", d.Logging.JSONSummary)

	for _, name := range d.Sources.Names() {
		sc, _ := d.Sources.ByName(name)
		registerSourceDefaults(v, "sources."+name, sc)
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}

func registerSourceDefaults(v *viper.Viper, prefix string, sc SourceConfig) {
	v.SetDefault(prefix+".enabled", sc.Enabled)
	v.SetDefault(prefix+".base_url", sc.BaseURL)
	v.SetDefault(prefix+".days_back", sc.DaysBack)
	v.SetDefault(prefix+".profile_limit", sc.ProfileLimit)
	v.SetDefault(prefix+".station_limit", sc.StationLimit)
	v.SetDefault(prefix+".request_timeout", sc.RequestTimeout)
	v.SetDefault(prefix+".rate_limit_per_sec", sc.RateLimitPerSec)
	v.SetDefault(prefix+".credentials.token", "")
	v.SetDefault(prefix+".credentials.username", "")
	v.SetDefault(prefix+".credentials.password", "")
}

package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SANCTIONS_SCREEN_MAX_LINKS.
const EnvPrefix = "SANCTIONS_SCREEN"

// Keys shared by the CLI flags, the environment and the config file.
const (
	KeyInputTxt        = "input-txt"
	KeyInputCSV        = "input-csv"
	KeyNameColumn      = "name-column"
	KeyFirstNameColumn = "first-name-column"
	KeyLastNameColumn  = "last-name-column"
	KeyCSVDelimiter    = "csv-delimiter"
	KeyOutput          = "output"
	KeyFormat          = "format"
	KeyMaxLinks        = "max-links"
	KeySleep           = "sleep"
	KeyTimeout         = "timeout"
	KeyLimit           = "limit"
	KeyNoDedupe        = "no-dedupe"
	KeyExtractor       = "extractor"
	KeySearchURL       = "search-url"
	KeyEntityPrefix    = "entity-path-prefix"
	KeyNoMatchMarker   = "no-match-marker"
	KeyUserAgent       = "user-agent"
	KeyMetricsAddr     = "metrics-addr"
	KeyLogFile         = "log-file"
	KeyVerbose         = "verbose"
)

// NewViper returns a viper instance wired for environment overrides and
// seeded with DefaultConfig values.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault(KeyFirstNameColumn, d.Input.FirstNameColumn)
	v.SetDefault(KeyLastNameColumn, d.Input.LastNameColumn)
	v.SetDefault(KeyCSVDelimiter, string(d.Input.CSVDelimiter))
	v.SetDefault(KeyOutput, d.OutputFile)
	v.SetDefault(KeyFormat, d.OutputFormat)
	v.SetDefault(KeyMaxLinks, d.MaxLinks)
	v.SetDefault(KeySleep, d.Delay.Seconds())
	v.SetDefault(KeyTimeout, d.Timeout.Seconds())
	v.SetDefault(KeyLimit, d.Limit)
	v.SetDefault(KeyNoDedupe, !d.Dedupe)
	v.SetDefault(KeyExtractor, d.Extractor)
	v.SetDefault(KeySearchURL, d.SearchURL)
	v.SetDefault(KeyEntityPrefix, d.EntityPathPrefix)
	v.SetDefault(KeyNoMatchMarker, d.NoMatchMarkers)
	v.SetDefault(KeyUserAgent, d.UserAgent)
	return v
}

// ReadFile merges a YAML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

// Load builds a Config from v. Literal names are passed separately since
// they only come from the command line.
func Load(v *viper.Viper, names []string) (*Config, error) {
	cfg := DefaultConfig()

	delimiter, err := parseDelimiter(v.GetString(KeyCSVDelimiter))
	if err != nil {
		return nil, err
	}

	cfg.Input = Input{
		Names:           append([]string(nil), names...),
		TextFile:        v.GetString(KeyInputTxt),
		CSVFile:         v.GetString(KeyInputCSV),
		NameColumn:      v.GetString(KeyNameColumn),
		FirstNameColumn: v.GetString(KeyFirstNameColumn),
		LastNameColumn:  v.GetString(KeyLastNameColumn),
		CSVDelimiter:    delimiter,
	}
	cfg.SearchURL = v.GetString(KeySearchURL)
	cfg.EntityPathPrefix = v.GetString(KeyEntityPrefix)
	cfg.NoMatchMarkers = nonEmpty(stringList(v, KeyNoMatchMarker))
	cfg.Extractor = strings.ToLower(v.GetString(KeyExtractor))
	cfg.MaxLinks = v.GetInt(KeyMaxLinks)
	cfg.Delay = seconds(v.GetFloat64(KeySleep))
	cfg.Timeout = seconds(v.GetFloat64(KeyTimeout))
	cfg.Limit = v.GetInt(KeyLimit)
	cfg.Dedupe = !v.GetBool(KeyNoDedupe)
	cfg.UserAgent = v.GetString(KeyUserAgent)
	cfg.OutputFile = v.GetString(KeyOutput)
	cfg.OutputFormat = strings.ToLower(v.GetString(KeyFormat))
	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.MetricsAddr = v.GetString(KeyMetricsAddr)
	cfg.LogFile = v.GetString(KeyLogFile)

	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("csv delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// stringList keeps a plain string value whole; viper's slice conversion
// would split it on whitespace.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return []string{raw}
	}
	return v.GetStringSlice(key)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			out = append(out, value)
		}
	}
	return out
}

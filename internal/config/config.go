package config

import (
	"errors"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/notify/email"
	"fide-scraper/internal/notify/ratingsapi"
	"fide-scraper/internal/scrapers/fide"
	"fide-scraper/pkg/configutil"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultInputFile  = "fide_ids.txt"
	DefaultOutputFile = "fide_ratings.csv"
	DefaultSMTPServer = "localhost"
	DefaultSMTPPort   = 587
	DefaultSchedule   = "@daily"
	DefaultFideTimeout = time.Second * 10
	DefaultAPITimeout  = time.Second * 5
	DefaultAPIRetries  = 1
)

type FideConfig struct {
	BaseURL          string
	Timeout          time.Duration
	BypassCloudflare bool
	Layout           fide.Layout
}

// Config is built once at startup and handed to every component.
type Config struct {
	InputFile  string
	OutputFile string
	Schedule   string
	// Location is where the clock and the watch schedule are read, UTC
	// unless configured.
	Location   *time.Location
	Fide       FideConfig
	SMTP       email.SMTPConfig
	RatingsAPI ratingsapi.Config
	Otlp       telemetry.OtlpConfig
	// Warnings are problems that did not prevent loading, ex. a partially
	// configured ratings api.
	Warnings []string
}

// EmailEnabled reports whether an smtp server is configured at all.
func (c Config) EmailEnabled() bool {
	return c.SMTP.Server != ""
}

// File is the shape of config.json5.
type File struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Schedule   string `json:"schedule"`
	Timezone   string `json:"timezone"`
	Fide       struct {
		BaseURL          string       `json:"base_url"`
		Timeout          string       `json:"timeout"`
		BypassCloudflare bool         `json:"bypass_cloudflare"`
		Layout           *fide.Layout `json:"layout"`
	} `json:"fide"`
	Smtp struct {
		Server   string `json:"server"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		From     string `json:"from"`
		AdminCC  string `json:"admin_cc"`
	} `json:"smtp"`
	RatingsAPI struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"token"`
		Timeout  string `json:"timeout"`
		Retries  *int   `json:"retries"`
	} `json:"ratings_api"`
	Otlp telemetry.OtlpConfig `json:"otlp"`
}

// Env looks up a variable, returning an empty string when it is unset.
type Env func(key string) string

// EnvWithDotEnv reads variables from the process environment first, then
// from a .env file. The file never overrides the process environment and a
// missing file is not an error.
func EnvWithDotEnv(path string) (Env, error) {
	dotenv, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		dotenv = map[string]string{}
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}, nil
}

func defaults() Config {
	return Config{
		InputFile:  DefaultInputFile,
		OutputFile: DefaultOutputFile,
		Schedule:   DefaultSchedule,
		Location:   time.UTC,
		Fide: FideConfig{
			BaseURL: fide.DefaultBaseURL,
			Timeout: DefaultFideTimeout,
			Layout:  fide.DefaultLayout,
		},
		SMTP: email.SMTPConfig{
			Server: DefaultSMTPServer,
			Port:   DefaultSMTPPort,
		},
		RatingsAPI: ratingsapi.Config{
			Timeout: DefaultAPITimeout,
			Retries: DefaultAPIRetries,
		},
	}
}

// Load builds the configuration from defaults, then the optional config file
// (and its .local override), then the environment.
func Load(path string, env Env) (Config, error) {
	config := defaults()

	if path != "" {
		file, err := configutil.ReadConfig[File](path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		if err == nil {
			err = config.applyFile(file)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	err := config.applyEnv(env)
	if err != nil {
		return Config{}, err
	}

	config.checkRatingsAPI()
	return config, nil
}

func (c *Config) applyFile(f File) error {
	setString(&c.InputFile, f.InputFile)
	setString(&c.OutputFile, f.OutputFile)
	setString(&c.Schedule, f.Schedule)
	err := setLocation(&c.Location, f.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	setString(&c.Fide.BaseURL, f.Fide.BaseURL)
	c.Fide.BypassCloudflare = f.Fide.BypassCloudflare
	if f.Fide.Layout != nil && f.Fide.Layout.Table != "" {
		c.Fide.Layout = *f.Fide.Layout
	}
	err = setDuration(&c.Fide.Timeout, f.Fide.Timeout)
	if err != nil {
		return fmt.Errorf("fide.timeout: %w", err)
	}

	setString(&c.SMTP.Server, f.Smtp.Server)
	if f.Smtp.Port != 0 {
		c.SMTP.Port = f.Smtp.Port
	}
	setString(&c.SMTP.Username, f.Smtp.Username)
	setString(&c.SMTP.Password, f.Smtp.Password)
	setString(&c.SMTP.From, f.Smtp.From)
	setString(&c.SMTP.AdminCC, f.Smtp.AdminCC)

	setString(&c.RatingsAPI.Endpoint, f.RatingsAPI.Endpoint)
	setString(&c.RatingsAPI.Token, f.RatingsAPI.Token)
	if f.RatingsAPI.Retries != nil {
		c.RatingsAPI.Retries = *f.RatingsAPI.Retries
	}
	err = setDuration(&c.RatingsAPI.Timeout, f.RatingsAPI.Timeout)
	if err != nil {
		return fmt.Errorf("ratings_api.timeout: %w", err)
	}

	c.Otlp = f.Otlp
	return nil
}

func (c *Config) applyEnv(env Env) error {
	get := func(key string) string {
		return strings.TrimSpace(env(key))
	}

	setString(&c.InputFile, get("FIDE_INPUT_FILE"))
	setString(&c.OutputFile, get("FIDE_OUTPUT_FILE"))
	setString(&c.Schedule, get("FIDE_SCHEDULE"))
	err := setLocation(&c.Location, get("FIDE_TIMEZONE"))
	if err != nil {
		return fmt.Errorf("FIDE_TIMEZONE: %w", err)
	}
	setString(&c.Fide.BaseURL, get("FIDE_BASE_URL"))
	err = setDuration(&c.Fide.Timeout, get("FIDE_TIMEOUT"))
	if err != nil {
		return fmt.Errorf("FIDE_TIMEOUT: %w", err)
	}

	setString(&c.SMTP.Server, get("SMTP_SERVER"))
	if port := get("SMTP_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("SMTP_PORT: invalid port %q", port)
		}
		c.SMTP.Port = n
	}
	setString(&c.SMTP.Username, get("SMTP_USERNAME"))
	setString(&c.SMTP.Password, get("SMTP_PASSWORD"))
	setString(&c.SMTP.From, get("FROM_EMAIL"))
	setString(&c.SMTP.AdminCC, get("ADMIN_CC_EMAIL"))

	setString(&c.RatingsAPI.Endpoint, get("FIDE_RATINGS_API_ENDPOINT"))
	setString(&c.RatingsAPI.Token, get("API_TOKEN"))
	return nil
}

// checkRatingsAPI disables a half configured ratings api with a warning.
func (c *Config) checkRatingsAPI() {
	endpoint, token := c.RatingsAPI.Endpoint, c.RatingsAPI.Token
	switch {
	case endpoint != "" && token == "":
		c.Warnings = append(c.Warnings, "FIDE_RATINGS_API_ENDPOINT is set but API_TOKEN is missing - API posting disabled")
	case endpoint == "" && token != "":
		c.Warnings = append(c.Warnings, "API_TOKEN is set but FIDE_RATINGS_API_ENDPOINT is missing - API posting disabled")
	default:
		return
	}
	c.RatingsAPI.Endpoint = ""
	c.RatingsAPI.Token = ""
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive: %s", value)
	}
	*dst = d
	return nil
}

func setLocation(dst **time.Location, name string) error {
	if name == "" {
		return nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	*dst = location
	return nil
}

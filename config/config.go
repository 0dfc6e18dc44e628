package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"subuk/gamemango/util"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl"
	"github.com/imdario/mergo"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const TypeMinecraft = "minecraft"

type ServerConfig struct {
	Name            string   `hcl:",key" validate:"required"`
	Type            string   `hcl:"type" validate:"required"`
	InstanceId      string   `hcl:"instance_id" validate:"required"`
	Region          string   `hcl:"region" validate:"required"`
	Port            int      `hcl:"port" validate:"min=1,max=65535"`
	SSHUser         string   `hcl:"ssh_user" validate:"required"`
	SSHKeyPath      string   `hcl:"ssh_key_path" validate:"required"`
	SSHPort         int      `hcl:"ssh_port" validate:"min=1,max=65535"`
	KnownHosts      string   `hcl:"known_hosts"`
	ModpackLink     string   `hcl:"modpack_link" validate:"omitempty,url"`
	CloseScriptPath string   `hcl:"close_script_path" validate:"required"`
	PermittedRoles  []string `hcl:"permitted_roles"`

	// StopOnCloseFailure stops the instance even if the close script fails.
	StopOnCloseFailure bool `hcl:"stop_on_close_failure"`
}

type WatchConfig struct {
	InstancePoll     string `hcl:"instance_poll"`
	ServicePoll      string `hcl:"service_poll"`
	MaxInstancePolls int    `hcl:"max_instance_polls" validate:"min=0"`
	MaxServicePolls  int    `hcl:"max_service_polls" validate:"min=0"`
}

type WebConfig struct {
	Listen         string   `hcl:"listen"`
	TrustedProxies []string `hcl:"trusted_proxies"`
}

type DiscordConfig struct {
	Activity string `hcl:"activity"`
}

// HookConfig runs Script whenever a notice of kind Notice is emitted.
type HookConfig struct {
	Notice string `hcl:",key" validate:"required"`
	Script string `hcl:"script" validate:"required"`
}

type Config struct {
	LogLevel      string         `hcl:"log_level" validate:"oneof=debug info warn error"`
	LogFile       string         `hcl:"log_file"`
	Language      string         `hcl:"language" validate:"required"`
	LanguagesDir  string         `hcl:"languages_dir"`
	CheckInterval string         `hcl:"check_interval"`
	PingTimeout   string         `hcl:"ping_timeout"`
	ShutdownGrace string         `hcl:"shutdown_grace"`
	CloseTimeout  string         `hcl:"close_timeout"`
	HookTimeout   string         `hcl:"hook_timeout"`
	Watch         WatchConfig    `hcl:"watch"`
	Web           WebConfig      `hcl:"web"`
	Discord       DiscordConfig  `hcl:"discord"`
	Servers       []ServerConfig `hcl:"server" validate:"dive"`
	Hooks         []HookConfig   `hcl:"hook" validate:"dive"`
}

func Default() *Config {
	return &Config{
		LogLevel:      "info",
		Language:      "en",
		CheckInterval: "15m",
		PingTimeout:   "20s",
		ShutdownGrace: "10s",
		CloseTimeout:  "5m",
		HookTimeout:   "1m",
		Watch: WatchConfig{
			InstancePoll: "8s",
			ServicePoll:  "20s",
		},
		Discord: DiscordConfig{
			Activity: "gamemango",
		},
	}
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "0" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, util.NewError(err, "invalid %s", name)
	}
	if duration < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", name, value)
	}
	return duration, nil
}

// CheckIntervalDuration is the idle check period, zero when disabled.
func (config *Config) CheckIntervalDuration() time.Duration {
	duration, _ := parseDuration("check_interval", config.CheckInterval)
	return duration
}

func (config *Config) PingTimeoutDuration() time.Duration {
	duration, _ := parseDuration("ping_timeout", config.PingTimeout)
	return duration
}

func (config *Config) ShutdownGraceDuration() time.Duration {
	duration, _ := parseDuration("shutdown_grace", config.ShutdownGrace)
	return duration
}

func (config *Config) CloseTimeoutDuration() time.Duration {
	duration, _ := parseDuration("close_timeout", config.CloseTimeout)
	return duration
}

func (config *Config) HookTimeoutDuration() time.Duration {
	duration, _ := parseDuration("hook_timeout", config.HookTimeout)
	return duration
}

func (watch WatchConfig) InstancePollDuration() time.Duration {
	duration, _ := parseDuration("instance_poll", watch.InstancePoll)
	return duration
}

func (watch WatchConfig) ServicePollDuration() time.Duration {
	duration, _ := parseDuration("service_poll", watch.ServicePoll)
	return duration
}

func (config *Config) Server(name string) *ServerConfig {
	for index := range config.Servers {
		if config.Servers[index].Name == name {
			return &config.Servers[index]
		}
	}
	return nil
}

func Parse(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, util.NewError(err, "cannot read configuration file")
	}
	return ParseBytes(content)
}

func ParseBytes(content []byte) (*Config, error) {
	config := &Config{}
	if err := hcl.Unmarshal(content, config); err != nil {
		return nil, util.NewError(err, "invalid configuration format")
	}
	if err := mergo.Merge(config, Default()); err != nil {
		return nil, util.NewError(err, "cannot apply default configuration value")
	}

	durations := map[string]string{
		"check_interval":      config.CheckInterval,
		"ping_timeout":        config.PingTimeout,
		"shutdown_grace":      config.ShutdownGrace,
		"close_timeout":       config.CloseTimeout,
		"hook_timeout":        config.HookTimeout,
		"watch.instance_poll": config.Watch.InstancePoll,
		"watch.service_poll":  config.Watch.ServicePoll,
	}
	for name, value := range durations {
		if _, err := parseDuration(name, value); err != nil {
			return nil, err
		}
	}
	if config.PingTimeoutDuration() == 0 {
		return nil, errors.New("ping_timeout must be positive")
	}
	if config.Watch.InstancePollDuration() == 0 || config.Watch.ServicePollDuration() == 0 {
		return nil, errors.New("watch poll intervals must be positive")
	}

	if len(config.Servers) == 0 {
		return nil, errors.New("no servers configured")
	}
	serverNames := map[string]struct{}{}
	for index := range config.Servers {
		server := &config.Servers[index]
		if _, exists := serverNames[server.Name]; exists {
			return nil, fmt.Errorf("duplicate server '%s'", server.Name)
		}
		serverNames[server.Name] = struct{}{}

		if server.Port == 0 {
			server.Port = 25565
		}
		if server.SSHPort == 0 {
			server.SSHPort = 22
		}
	}

	if err := validator.New().Struct(config); err != nil {
		validationErrors := validator.ValidationErrors{}
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fieldErr := validationErrors[0]
			return nil, fmt.Errorf("invalid configuration: %s failed on '%s'", fieldErr.Namespace(), fieldErr.Tag())
		}
		return nil, util.NewError(err, "invalid configuration")
	}
	return config, nil
}

// Credentials are secrets taken from the environment.
type Credentials struct {
	DiscordToken       string `envconfig:"TOKEN"`
	AWSAccessKeyId     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	APIToken           string `envconfig:"GAMEMANGO_API_TOKEN"`
}

func (creds Credentials) HasAWS() bool {
	return creds.AWSAccessKeyId != "" && creds.AWSSecretAccessKey != ""
}

// LoadCredentials reads the environment after loading envFilename into it.
// A missing env file is not an error.
func LoadCredentials(envFilename string) (Credentials, error) {
	creds := Credentials{}
	if envFilename != "" {
		if err := godotenv.Load(envFilename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return creds, util.NewError(err, "cannot load env file %s", envFilename)
		}
	}
	if err := envconfig.Process("", &creds); err != nil {
		return creds, util.NewError(err, "cannot read environment")
	}
	return creds, nil
}

package config

import (
	"github.com/flyteorg/flytestdlib/config"
)

//go:generate pflags Config --default-var=defaultConfig

const configSectionKey = "cron"

var (
	defaultConfig = &Config{
		SettingsFile: "/etc/espa/cron.conf",
		Strict:       false,
		LogLevel:     "info",
		LogFormat:    "text",
		Output:       "ini",
	}

	rootSection = config.MustRegisterSection(configSectionKey, defaultConfig)
)

// Top level cron toolkit config.
type Config struct {
	SettingsFile string `json:"settingsFile" pflag:",Path to the INI settings file read by the processing cron."`
	Strict       bool   `json:"strict" pflag:",Reject unknown sections and keys, and require absolute log paths."`
	LogLevel     string `json:"logLevel" pflag:",Level of the disposition, cron and plot log sinks."`
	LogFormat    string `json:"logFormat" pflag:",Format of the log sinks. One of text or json."`
	Output       string `json:"output" pflag:",Output format used when printing settings. One of ini, json or yaml."`
}

// Retrieves the current config value or default.
func GetConfig() *Config {
	return rootSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return rootSection.SetConfig(cfg)
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Panel     PanelConfig `yaml:"panel"`
	Local     LocalConfig `yaml:"local"`
	Cloud     CloudConfig `yaml:"cloud"`
	Bell      BellConfig  `yaml:"bell"`
	Transport string      `yaml:"transport"` // "cloud" or "local"
	Log       string      `yaml:"log"`
	Metrics   string      `yaml:"metrics"` // listen address for /metrics, empty disables
}

type PanelConfig struct {
	Name    string `yaml:"name"`
	Devices int    `yaml:"devices"` // configured expansion modules, 1..63
}

type LocalConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CloudConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	ClientID           string `yaml:"client_id"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Keepalive          int    `yaml:"keepalive"`
	QOS                int    `yaml:"qos"`
	CA                 string `yaml:"ca"`
	Cert               string `yaml:"cert"`
	Key                string `yaml:"key"`
	RejectUnauthorized bool   `yaml:"reject_unauthorized"`
	Prefix             string `yaml:"prefix"`
	Clean              bool   `yaml:"clean"`
}

type BellConfig struct {
	// SilenceWindow is how many seconds a bell confirmation stays active
	// without renewal before it decays. Tunable, not a protocol constant.
	SilenceWindow int `yaml:"silence_window"`
}

func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Set default values
	if config.Panel.Name == "" {
		config.Panel.Name = "firemon"
	}
	if config.Panel.Devices == 0 {
		config.Panel.Devices = 63
	}
	if config.Local.Host == "" {
		config.Local.Host = "localhost"
	}
	if config.Local.Port == 0 {
		config.Local.Port = 4001
	}
	if config.Cloud.Host == "" {
		config.Cloud.Host = "localhost"
	}
	if config.Cloud.Port == 0 {
		config.Cloud.Port = 1883
	}
	if config.Cloud.ClientID == "" {
		config.Cloud.ClientID = "firemon"
	}
	if config.Cloud.Keepalive == 0 {
		config.Cloud.Keepalive = 60
	}
	if config.Cloud.Prefix == "" {
		config.Cloud.Prefix = "firemon"
	}
	if config.Bell.SilenceWindow == 0 {
		config.Bell.SilenceWindow = 30
	}
	if config.Transport == "" {
		config.Transport = "local"
	}
	if config.Log == "" {
		config.Log = "info"
	}

	if config.Panel.Devices < 1 || config.Panel.Devices > 63 {
		return nil, fmt.Errorf("panel.devices must be 1..63, got %d", config.Panel.Devices)
	}
	if config.Cloud.QOS < 0 || config.Cloud.QOS > 2 {
		return nil, fmt.Errorf("cloud.qos must be 0..2, got %d", config.Cloud.QOS)
	}

	return &config, nil
}

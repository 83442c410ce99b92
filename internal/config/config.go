package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// TokenEnvVar is the environment variable consulted when no token is given
// on the command line or in the settings document.
const TokenEnvVar = "FIGMA_TOKEN"

// DefaultFile is the settings document in the working directory.
const DefaultFile = "figma_config.json"

// Config holds one session's settings. Treated as a value: the settings
// screen builds a new Config and swaps it in rather than mutating fields of
// a shared one.
type Config struct {
	FigmaToken string `mapstructure:"figma_token"`
	URLsFile   string `mapstructure:"urls_file"`
	OutputFile string `mapstructure:"output_file"`
	AssetsDir  string `mapstructure:"assets_dir"`
}

// Load reads the settings document at path (DefaultFile when empty),
// layering defaults, the JSON file, and the FIGMA_TOKEN env var.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("figma_token", "")
	v.SetDefault("urls_file", "figma_urls.json")
	v.SetDefault("output_file", "figma_images.json")
	v.SetDefault("assets_dir", "assets")

	if path == "" {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")

	_ = v.BindEnv("figma_token", TokenEnvVar)

	// missing config file is fine, defaults apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes cfg to the settings document at path, creating the parent
// directory if needed. The token is stored in plain text; prefer the env
// var for shared machines.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("figma_token", cfg.FigmaToken)
	v.Set("urls_file", cfg.URLsFile)
	v.Set("output_file", cfg.OutputFile)
	v.Set("assets_dir", cfg.AssetsDir)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/yacobolo/globalcss"
)

var k = koanf.New(".")

// loadConfig loads configuration with precedence: flags > env > file > defaults.
// It must be called after cobra parses flags (in PreRunE or RunE).
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = ".globalcss.yaml"
	}

	if err := loadConfigFromPath(configPath); err != nil {
		return err
	}

	// 3. CLI flags (highest precedence, only flags that were explicitly set)
	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return fmt.Errorf("loading command flags: %w", err)
	}

	return nil
}

// loadConfigFromPath loads configuration from a file and environment variables.
// This is separated from loadConfig to allow testing without a cobra command.
func loadConfigFromPath(configPath string) error {
	// 1. Config file (lowest precedence among providers)
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	// 2. Environment variables (GLOBALCSS_* prefix)
	if err := k.Load(env.Provider("GLOBALCSS_", ".", envKey), nil); err != nil {
		return fmt.Errorf("loading environment variables: %w", err)
	}

	return nil
}

// envKey maps an environment variable to a config key. A double underscore
// separates sections and a single underscore stands for a dash:
//
//	GLOBALCSS_OUTPUT_FILENAME -> output-filename
//	GLOBALCSS_COMPILER__SASS_BINARY -> compiler.sass-binary
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "GLOBALCSS_"))
	parts := strings.Split(s, "__")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "_", "-")
	}
	return strings.Join(parts, ".")
}

// buildConfig constructs the library's Config struct from koanf state.
// Empty values are filled in by Config.WithDefaults.
func buildConfig() globalcss.Config {
	config := globalcss.Config{
		Source:         getStringWithFallback("source", "source", "src/global.scss"),
		OutputFilename: getStringWithFallback("output-filename", "output-filename", ""),
		Assets:         getStringWithFallback("assets", "assets", ""),
		AssetsURL:      getStringWithFallback("assets-url", "assets-url", ""),
		Pages:          getStringWithFallback("pages", "pages", "pages"),
		OutDir:         getStringWithFallback("out-dir", "build.out-dir", ""),
		Placeholder:    getStringWithFallback("placeholder", "placeholder", ""),
		Addr:           getStringWithFallback("addr", "dev.addr", ""),
		Compiler: globalcss.CompilerConfig{
			Backend:    getStringWithFallback("backend", "compiler.backend", ""),
			Style:      getStringWithFallback("style", "compiler.style", ""),
			SassBinary: getStringWithFallback("sass-binary", "compiler.sass-binary", ""),
			LoadPaths:  getStringsWithFallback("load-path", "compiler.load-paths"),
		},
		Include:       getStringsWithFallback("include", "build.include"),
		ComponentExts: getStringsWithFallback("component-exts", "build.component-exts"),
	}
	return config
}

// getStringWithFallback checks the flag key first, then the config file key, then returns the default.
func getStringWithFallback(flagKey, configKey, defaultVal string) string {
	if v := k.String(flagKey); v != "" {
		return v
	}
	if v := k.String(configKey); v != "" {
		return v
	}
	return defaultVal
}

// getStringsWithFallback checks the flag key first, then the config file key.
func getStringsWithFallback(flagKey, configKey string) []string {
	if v := k.Strings(flagKey); len(v) > 0 {
		return v
	}
	return k.Strings(configKey)
}

// getBoolWithFallback checks the flag key first, then the config file key, then returns the default.
func getBoolWithFallback(flagKey, configKey string, defaultVal bool) bool {
	if k.Exists(flagKey) {
		return k.Bool(flagKey)
	}
	if k.Exists(configKey) {
		return k.Bool(configKey)
	}
	return defaultVal
}

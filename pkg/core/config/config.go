//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the authorization
// engine using [Viper].
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the MPA_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the engine looks for mpa-config.yaml in the current directory.
// Override the location using environment variables:
//
//	MPA_CONFIG_PATH=/etc/portalauthz
//	MPA_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	auth:
//	  profile: default
//	  anon_create_dataset: false
//	  allow_dataset_collaborators: true
//	  blacklist: "203.0.113.7 198.51.100.0"
//	opa:
//	  unsafebuiltins: "http.send"
//	extensions:
//	  rego:
//	    path: ./policies
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the MPA_
// prefix. Dots in key names become underscores:
//
//	MPA_LOG_LEVEL=.:debug
//	MPA_AUTH_PROFILE=legacy
//	MPA_AUTH_ALLOW_DATASET_COLLABORATORS=true
//
// Permission settings (auth.*) are not read during evaluation. They are
// captured once into an immutable [Permissions] snapshot by [LoadPermissions].
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all engine environment variables.
	// For example, the key "log.level" becomes MPA_LOG_LEVEL.
	EnvVarPrefix string = "MPA"

	// ConfigPathEnv is the environment variable that specifies the directory
	// containing the configuration file.
	ConfigPathEnv string = "MPA_CONFIG_PATH"

	// ConfigFileNameEnv is the environment variable that specifies the
	// configuration file name (without extension).
	ConfigFileNameEnv string = "MPA_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "mpa-config"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// Profile selects the rule set used to evaluate actions: "default",
	// "legacy" or "publisher".
	//
	// Set via environment: MPA_AUTH_PROFILE=publisher
	Profile string = "auth.profile"

	// Blacklist is a space-separated list of user names (typically remote
	// addresses recorded for anonymous edits) denied every non-read action
	// by the legacy authorizer.
	Blacklist string = "auth.blacklist"

	// UnsafeBuiltIns is a comma-separated list of Rego built-in function names
	// to remove from OPA capabilities.
	//
	// Default: "http.send"
	UnsafeBuiltIns string = "opa.unsafebuiltins"

	// RegoPath points at a directory or file of .rego modules loaded as a
	// chained extension. Empty disables the extension.
	RegoPath string = "extensions.rego.path"

	// RegoQuery is the decision query evaluated by the rego extension.
	//
	// Default: "data.portal.authz.decision"
	RegoQuery string = "extensions.rego.query"

	// RegoAuxData points at a directory loaded into input.auxdata of the
	// rego extension.
	RegoAuxData string = "extensions.rego.auxdata"

	// PrettyAccessLog enables indented access log records on stdout.
	PrettyAccessLog string = "accesslog.pretty"
)

// DefaultProfile is used when auth.profile is unset.
const DefaultProfile = "default"

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance.
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	// In most cases, applications don't need to access VConfig directly;
	// configuration is handled by [core.NewEngine].
	VConfig *viper.Viper
	logger  = logging.GetLogger("portalauthz.config")
)

// Init initializes the configuration system without loading config files.
// Safe to call multiple times; subsequent calls are no-ops.
func Init() {
	once.Do(func() {
		doInitialize()
	})
}

func getConfigPath() string {
	configPath, ok := os.LookupEnv(ConfigPathEnv)
	if ok {
		return configPath
	}

	return ConfigDefaultPath
}

func getConfigFileName() string {
	configName, ok := os.LookupEnv(ConfigFileNameEnv)
	if ok {
		return configName
	}

	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// default is './mpa-config.yaml', overridden with $(MPA_CONFIG_PATH)/$(MPA_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// keys such as 'auth.profile' become 'MPA_AUTH_PROFILE'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(Profile, DefaultProfile)
	VConfig.SetDefault(Blacklist, "")
	VConfig.SetDefault(UnsafeBuiltIns, "http.send")
	VConfig.SetDefault(RegoPath, "")
	VConfig.SetDefault(RegoQuery, "data.portal.authz.decision")
	VConfig.SetDefault(RegoAuxData, "")
	VConfig.SetDefault(PrettyAccessLog, false)

	for _, d := range permissionDefaults {
		VConfig.SetDefault(authPrefix+d.name, d.value)
	}
}

// Load initializes configuration and loads settings from files and environment.
//
// Load performs the following steps:
//  1. Calls [Init] if not already called
//  2. Reads the configuration file (if present; missing files are not an error)
//  3. Applies environment variable overrides
//  4. Updates log levels based on configuration
//
// Subsequent calls after the first load are no-ops returning the first result.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from environment variable allows us to debug the config loading.
		earlyLoglevel := os.Getenv("MPA_LOG_LEVEL")
		if earlyLoglevel != "" {
			if err := logging.UpdateLogLevels(earlyLoglevel); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", earlyLoglevel, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		err := VConfig.ReadInConfig()
		if err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig clears all configuration and reinitializes with defaults.
//
// WARNING: intended for testing only. It resets global state.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/manetu/portalauthz/internal/core/accesslog"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/options"

	pubaccesslog "github.com/manetu/portalauthz/pkg/core/accesslog"
)

// TestConfigFilename is the name of the test configuration file (without extension).
const TestConfigFilename = "mpa-config"

// TestFixture is the portal fixture shared by engine tests.
const TestFixture = "portal.yaml"

// GetTestdataPath returns the absolute path to the testdata directory at
// the module root, independent of the working directory of the test.
func GetTestdataPath() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "testdata"
	}
	// thisFile is internal/core/test/instance.go
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(thisFile))))
	return filepath.Join(projectRoot, "testdata")
}

// SetupTestConfig points MPA_CONFIG_PATH and MPA_CONFIG_FILENAME at the test
// configuration so that a developer's environment cannot leak into tests.
func SetupTestConfig() error {
	if err := os.Setenv(config.ConfigPathEnv, GetTestdataPath()); err != nil {
		return err
	}
	if err := os.Setenv(config.ConfigFileNameEnv, TestConfigFilename); err != nil {
		return err
	}
	return nil
}

// NewTestEngine instantiates an engine over the test fixture whose access
// records are delivered to the returned channel.
func NewTestEngine(depth int, engineOptions ...options.EngineOptionsFunc) (core.Engine, chan *pubaccesslog.Record, error) {
	if err := SetupTestConfig(); err != nil {
		return nil, nil, err
	}

	ch := make(chan *pubaccesslog.Record, depth)
	engineOptions = append([]options.EngineOptionsFunc{
		options.WithAccessLog(accesslog.NewChannelLogger(ch)),
	}, engineOptions...)

	engine, err := core.NewLocalEngine(filepath.Join(GetTestdataPath(), TestFixture), engineOptions...)
	if err != nil {
		return nil, nil, err
	}

	return engine, ch, nil
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/manetu/portalauthz/cmd/mpa/common"
	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/metrics"
	"github.com/manetu/portalauthz/pkg/decisionpoint"
	"github.com/manetu/portalauthz/pkg/decisionpoint/envoy"
	"github.com/manetu/portalauthz/pkg/decisionpoint/generic"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("portalauthz")

const agent string = "serve"

// Start builds an engine from cmd and starts the decision point named by
// --protocol.
func Start(cmd *cli.Command) (decisionpoint.Server, error) {
	port := cmd.Int("port")

	var rec *metrics.Recorder
	if cmd.Bool("metrics") {
		rec = metrics.NewRecorder()
	}

	engine, err := common.NewCliEngine(cmd, os.Stdout, rec)
	if err != nil {
		return nil, err
	}

	switch protocol := cmd.String("protocol"); protocol {
	case "generic":
		var opts []generic.Option
		if rec != nil {
			opts = append(opts, generic.WithMetrics(rec.Handler()))
		}
		return generic.CreateServer(engine, int(port), opts...)
	case "envoy":
		return envoy.CreateServer(engine, int(port))
	default:
		engine.Close()
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}
}

// Execute runs the serve command, starting a decision point server based on the configured protocol.
// It supports both "generic" and "envoy" protocols and gracefully shuts down on interrupt signals.
func Execute(ctx context.Context, cmd *cli.Command) error {
	server, err := Start(cmd)
	if err != nil {
		return err
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info(agent, "shutdown", "Shutting down server...")

	err = server.Stop(ctx)
	if err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}

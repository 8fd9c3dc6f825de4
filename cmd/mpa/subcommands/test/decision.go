//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/manetu/portalauthz/cmd/mpa/common"
	"github.com/manetu/portalauthz/pkg/authz"
	pkgcommon "github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Request is one authorization check as read from an input file.
type Request struct {
	Action     string                 `yaml:"action" json:"action"`
	User       string                 `yaml:"user" json:"user,omitempty"`
	APIVersion int                    `yaml:"api_version" json:"api_version,omitempty"`
	Data       map[string]interface{} `yaml:"data" json:"data,omitempty"`
}

// Outcome is the printed result of a check.
type Outcome struct {
	Action  string `json:"action"`
	User    string `json:"user,omitempty"`
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
	Code    string `json:"code,omitempty"`
}

func decide(ctx context.Context, engine core.Engine, req Request) (Outcome, error) {
	c := engine.NewContext(req.User)
	c.APIVersion = req.APIVersion

	data := authz.DataDict(req.Data)
	if data == nil {
		data = authz.DataDict{}
	}

	out := Outcome{Action: req.Action, User: req.User}
	res, err := engine.IsAuthorized(ctx, authz.Action(req.Action), c, data)
	if err != nil {
		code := pkgcommon.Code(err)
		if code == pkgcommon.UnknownError || code == pkgcommon.EvaluationError {
			return out, err
		}
		out.Code = code.String()
		out.Msg = err.Error()
		return out, nil
	}

	out.Success = res.Success
	out.Msg = res.Msg
	if !res.Success {
		out.Code = pkgcommon.NotAuthorized.String()
	}
	return out, nil
}

func loadRequest(cmd *cli.Command) (Request, error) {
	var req Request
	if path := cmd.String("input"); path != "" {
		raw, err := readInput(path)
		if err != nil {
			return req, err
		}
		if err := yaml.Unmarshal(raw, &req); err != nil {
			return req, fmt.Errorf("failed to parse input: %w", err)
		}
	}

	if a := cmd.String("action"); a != "" {
		req.Action = a
	}
	if u := cmd.String("user"); u != "" {
		req.User = u
	}
	if d := cmd.String("data"); d != "" {
		if err := json.Unmarshal([]byte(d), &req.Data); err != nil {
			return req, fmt.Errorf("failed to parse --data: %w", err)
		}
	}

	if req.Action == "" {
		return req, fmt.Errorf("an action must be specified with --action or in the input")
	}
	return req, nil
}

func accessLogWriter(cmd *cli.Command) io.Writer {
	// When --trace is enabled, access records go to stderr for debugging
	if cmd.Root().Bool("trace") {
		return os.Stderr
	}
	return io.Discard
}

// ExecuteDecision evaluates a single check and prints the outcome as JSON.
// A denial exits with status 1.
func ExecuteDecision(ctx context.Context, cmd *cli.Command) error {
	req, err := loadRequest(cmd)
	if err != nil {
		return err
	}

	engine, err := common.NewCliEngine(cmd, accessLogWriter(cmd), nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := decide(ctx, engine, req)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.Root().Writer, string(raw))

	if !out.Success {
		return cli.Exit("", 1)
	}
	return nil
}

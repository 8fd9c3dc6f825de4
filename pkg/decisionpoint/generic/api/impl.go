//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package api implements the REST endpoints of the generic decision point.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/manetu/portalauthz/pkg/core/options"
)

// CheckRequest is the body of POST /check.
type CheckRequest struct {
	Action     string         `json:"action"`
	User       string         `json:"user,omitempty"`
	APIVersion int            `json:"api_version,omitempty"`
	Data       authz.DataDict `json:"data,omitempty"`
}

// CheckResponse reports a decision. Error is set instead of Success/Msg
// when no decision could be made.
type CheckResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server implements the generic decision point API.
type Server struct {
	engine core.Engine
}

// NewServer creates an API server deciding with engine.
func NewServer(engine core.Engine) Server {
	return Server{engine: engine}
}

// RegisterHandlers mounts the API on e.
func RegisterHandlers(e *echo.Echo, s Server) {
	e.POST("/check", s.Check)
	e.GET("/actions", s.Actions)
}

func statusOf(code common.ReasonCode) int {
	switch code {
	case common.NotAuthorized:
		return http.StatusForbidden
	case common.NotFound:
		return http.StatusNotFound
	case common.UnknownAction, common.InvalidParam, common.UnknownPermission:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Check decides one action: 200 when permitted, 403 when denied, 404 when
// the object does not exist and 400 for malformed requests. Pass
// ?probe=true to skip the access log.
func (s Server) Check(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, CheckResponse{Code: common.InvalidParam.String(), Error: err.Error()})
	}
	if req.Action == "" {
		return c.JSON(http.StatusBadRequest, CheckResponse{Code: common.InvalidParam.String(), Error: "missing action"})
	}
	if req.Data == nil {
		req.Data = authz.DataDict{}
	}

	ac := s.engine.NewContext(req.User)
	ac.APIVersion = req.APIVersion

	probe := c.QueryParam("probe") == "true"
	res, err := s.engine.IsAuthorized(c.Request().Context(), authz.Action(req.Action), ac, req.Data, options.SetProbeMode(probe))
	if err != nil {
		code := common.Code(err)
		return c.JSON(statusOf(code), CheckResponse{Code: code.String(), Error: err.Error()})
	}
	if !res.Success {
		return c.JSON(http.StatusForbidden, CheckResponse{Msg: res.Msg, Code: common.NotAuthorized.String()})
	}
	return c.JSON(http.StatusOK, CheckResponse{Success: true})
}

// Actions lists the known actions and whether each admits anonymous callers.
func (s Server) Actions(c echo.Context) error {
	result := make(map[string]bool)
	for _, a := range authz.Actions() {
		result[string(a)] = a.AllowAnonymous()
	}
	return c.JSON(http.StatusOK, result)
}

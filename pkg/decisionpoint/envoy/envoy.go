//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package envoy serves the engine as an Envoy external authorization
// service.
//
// The proxy, or a route's request_headers_to_add, supplies the check in
// request headers: x-portal-action names the action, x-portal-user the
// acting user (absent for anonymous requests), x-portal-id the object id and
// x-portal-data an optional JSON object merged into the action's data.
package envoy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/manetu/portalauthz/pkg/decisionpoint"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

var logger = logging.GetLogger("portalauthz.decisionpoint")

const agent string = "envoy"

// Request headers
const (
	ActionHeader     = "x-portal-action"
	UserHeader       = "x-portal-user"
	IDHeader         = "x-portal-id"
	DataHeader       = "x-portal-data"
	APIVersionHeader = "x-portal-api-version"
)

const (
	resultHeader  = "x-ext-authz-check-result"
	resultAllowed = "allowed"
	resultDenied  = "denied"
)

// ExtAuthzServer implements the ext_authz v3 gRPC check request API.
type ExtAuthzServer struct {
	grpcServer *grpc.Server
	engine     core.Engine

	// For test only
	grpcPort chan int
}

// NewExtAuthzServer returns a server deciding with engine without starting it.
func NewExtAuthzServer(engine core.Engine) *ExtAuthzServer {
	return &ExtAuthzServer{
		grpcPort: make(chan int, 1),
		engine:   engine,
	}
}

func logRequest(result string, request *authv3.CheckRequest) {
	httpAttrs := request.GetAttributes().GetRequest().GetHttp()
	logger.Tracef(agent, "logRequest", "[gRPCv3][%s]: %s%s %s", result, httpAttrs.GetHost(),
		httpAttrs.GetPath(), httpAttrs.GetHeaders()[ActionHeader])
}

func resultHeaders(value string) []*corev3.HeaderValueOption {
	return []*corev3.HeaderValueOption{
		{
			Header: &corev3.HeaderValue{
				Key:   resultHeader,
				Value: value,
			},
		},
	}
}

func (s *ExtAuthzServer) allow(request *authv3.CheckRequest) *authv3.CheckResponse {
	logRequest(resultAllowed, request)
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers: resultHeaders(resultAllowed),
			},
		},
		Status: &status.Status{Code: int32(codes.OK)},
	}
}

func (s *ExtAuthzServer) deny(request *authv3.CheckRequest, httpCode typev3.StatusCode, grpcCode codes.Code, body string) *authv3.CheckResponse {
	logRequest(resultDenied, request)
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status:  &typev3.HttpStatus{Code: httpCode},
				Body:    body,
				Headers: resultHeaders(resultDenied),
			},
		},
		Status: &status.Status{Code: int32(grpcCode), Message: body},
	}
}

// parseRequest extracts the check from the request headers.
func parseRequest(headers map[string]string) (authz.Action, string, int, authz.DataDict, error) {
	action := headers[ActionHeader]
	if action == "" {
		return "", "", 0, nil, common.NewErrorf(common.InvalidParam, "missing %s header", ActionHeader)
	}

	data := authz.DataDict{}
	if raw := headers[DataHeader]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return "", "", 0, nil, common.NewErrorf(common.InvalidParam, "bad %s header: %v", DataHeader, err)
		}
	}
	if id := headers[IDHeader]; id != "" {
		data["id"] = id
	}

	version := 0
	if raw := headers[APIVersionHeader]; raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return "", "", 0, nil, common.NewErrorf(common.InvalidParam, "bad %s header: %q", APIVersionHeader, raw)
		}
		version = v
	}

	return authz.Action(action), headers[UserHeader], version, data, nil
}

// Check implements gRPC v3 check request.
func (s *ExtAuthzServer) Check(ctx context.Context, request *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	action, user, version, data, err := parseRequest(request.GetAttributes().GetRequest().GetHttp().GetHeaders())
	if err != nil {
		return s.deny(request, typev3.StatusCode_BadRequest, codes.InvalidArgument, err.Error()), nil
	}

	c := s.engine.NewContext(user)
	c.APIVersion = version

	res, err := s.engine.IsAuthorized(ctx, action, c, data)
	switch common.Code(err) {
	case common.UnknownError:
		if err != nil {
			logger.Errorf(agent, "check", "error evaluating %s: %v", action, err)
			return nil, err
		}
	case common.NotFound:
		return s.deny(request, typev3.StatusCode_NotFound, codes.NotFound, err.Error()), nil
	case common.UnknownAction, common.InvalidParam:
		return s.deny(request, typev3.StatusCode_BadRequest, codes.InvalidArgument, err.Error()), nil
	default:
		logger.Errorf(agent, "check", "error evaluating %s: %v", action, err)
		return nil, err
	}

	if res.Success {
		return s.allow(request), nil
	}
	return s.deny(request, typev3.StatusCode_Forbidden, codes.PermissionDenied, res.Msg), nil
}

func (s *ExtAuthzServer) startGRPC(address string, wg *sync.WaitGroup) {
	logger.Infof(agent, "start", "Starting Envoy External Authorization gRPC server on %s", address)
	defer func() {
		wg.Done()
		logger.SysInfof("Stopped gRPC server")
	}()

	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.Fatalf(agent, "net.listen", "Failed to start gRPC server: %v", err)
		return
	}

	s.grpcServer = grpc.NewServer()
	authv3.RegisterAuthorizationServer(s.grpcServer, s)

	// Store the port for test only. Must be after grpcServer is set to avoid race condition.
	s.grpcPort <- listener.Addr().(*net.TCPAddr).Port

	logger.SysInfof("Starting gRPC server at %s", listener.Addr())
	if err := s.grpcServer.Serve(listener); err != nil {
		logger.Fatalf(agent, "grpc.start", "Failed to serve gRPC server: %v", err)
		return
	}
}

func (s *ExtAuthzServer) run(grpcAddr string) {
	var wg sync.WaitGroup
	wg.Add(1)
	go s.startGRPC(grpcAddr, &wg)
	wg.Wait()
}

// CreateServer creates and starts a new Envoy External Authorization server.
// It returns a Server interface that implements the decisionpoint.Server interface.
func CreateServer(engine core.Engine, port int) (decisionpoint.Server, error) {
	s := NewExtAuthzServer(engine)

	go s.run(fmt.Sprintf(":%d", port))

	return s, nil
}

// Stop gracefully stops the ExtAuthzServer by stopping the underlying gRPC server.
func (s *ExtAuthzServer) Stop(ctx context.Context) error {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	logger.SysInfof("GRPC server stopped")

	return nil
}

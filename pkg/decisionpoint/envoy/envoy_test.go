//
//  Copyright © Manetu Inc. All rights reserved.
//

package envoy

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/manetu/portalauthz/internal/core/test"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
)

func TestMain(m *testing.M) {
	if err := test.SetupTestConfig(); err != nil {
		panic(err)
	}
	config.ResetConfig()
	os.Exit(m.Run())
}

func setupTestEngine(t *testing.T) core.Engine {
	t.Helper()
	engine, _, err := test.NewTestEngine(64)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func checkRequest(headers map[string]string) *authv3.CheckRequest {
	return &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Host:    "localhost",
					Path:    "/dataset/edit/d1",
					Method:  "POST",
					Headers: headers,
				},
			},
		},
	}
}

// waitForServer waits for the server to be ready by checking the grpcPort channel
func waitForServer(t *testing.T, server *ExtAuthzServer, timeout time.Duration) int {
	select {
	case port := <-server.grpcPort:
		// Give server a moment to fully start
		time.Sleep(200 * time.Millisecond)
		return port
	case <-time.After(timeout):
		t.Fatal("Server failed to start within timeout")
		return 0
	}
}

func TestCheckDecisions(t *testing.T) {
	s := NewExtAuthzServer(setupTestEngine(t))

	tests := []struct {
		name     string
		headers  map[string]string
		grpcCode codes.Code
		httpCode typev3.StatusCode
	}{
		{"editor updates", map[string]string{ActionHeader: "package_update", UserHeader: "alice", IDHeader: "d1"}, codes.OK, 0},
		{"stranger denied", map[string]string{ActionHeader: "package_update", UserHeader: "bob", IDHeader: "d1"}, codes.PermissionDenied, typev3.StatusCode_Forbidden},
		{"anonymous write", map[string]string{ActionHeader: "package_update", IDHeader: "d1"}, codes.PermissionDenied, typev3.StatusCode_Forbidden},
		{"anonymous read", map[string]string{ActionHeader: "package_show", IDHeader: "d1"}, codes.OK, 0},
		{"id in data", map[string]string{ActionHeader: "package_update", UserHeader: "alice", DataHeader: `{"id":"d1"}`}, codes.OK, 0},
		{"missing dataset", map[string]string{ActionHeader: "package_update", UserHeader: "alice", IDHeader: "nope"}, codes.NotFound, typev3.StatusCode_NotFound},
		{"unknown action", map[string]string{ActionHeader: "package_frobnicate", UserHeader: "alice"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
		{"missing action", map[string]string{UserHeader: "alice"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
		{"bad data", map[string]string{ActionHeader: "package_update", DataHeader: "{"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
		{"bad version", map[string]string{ActionHeader: "package_show", APIVersionHeader: "three"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Check(context.Background(), checkRequest(tt.headers))
			require.NoError(t, err)
			assert.Equal(t, int32(tt.grpcCode), resp.Status.Code)
			if tt.grpcCode == codes.OK {
				require.NotNil(t, resp.GetOkResponse())
				assert.Equal(t, resultAllowed, resp.GetOkResponse().Headers[0].Header.Value)
				return
			}
			denied := resp.GetDeniedResponse()
			require.NotNil(t, denied)
			assert.Equal(t, tt.httpCode, denied.Status.Code)
			assert.NotEmpty(t, denied.Body)
			assert.Equal(t, resultDenied, denied.Headers[0].Header.Value)
		})
	}
}

func TestEnvoyServer_RoundTrip(t *testing.T) {
	server, err := CreateServer(setupTestEngine(t), 0)
	require.NoError(t, err)

	extAuthzServer := server.(*ExtAuthzServer)
	actualPort := waitForServer(t, extAuthzServer, 5*time.Second)
	assert.NotEqual(t, 0, actualPort)

	conn, err := grpc.NewClient(
		fmt.Sprintf("localhost:%d", actualPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := authv3.NewAuthorizationClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, checkRequest(map[string]string{ActionHeader: "package_update", UserHeader: "alice", IDHeader: "d1"}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.OK), resp.Status.Code)

	resp, err = client.Check(ctx, checkRequest(map[string]string{ActionHeader: "package_update", UserHeader: "bob", IDHeader: "d1"}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.PermissionDenied), resp.Status.Code)
	assert.Contains(t, resp.GetDeniedResponse().Body, "bob")

	assert.NoError(t, server.Stop(ctx))
}

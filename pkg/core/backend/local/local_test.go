//
//  Copyright © Manetu Inc. All rights reserved.
//

package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - {id: u-1, name: alice, state: active}\n"), 0o600))

	s, err := NewFactory(path).NewStore(context.Background())
	require.NoError(t, err)

	u, err := s.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u-1", u.ID)
}

func TestMissingFixture(t *testing.T) {
	_, err := NewFactory(filepath.Join(t.TempDir(), "absent.yaml")).NewStore(context.Background())
	assert.Error(t, err)
}

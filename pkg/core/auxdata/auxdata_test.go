//
//  Copyright © Manetu Inc. All rights reserved.
//

package auxdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadAuxDataEmptyPath(t *testing.T) {
	result, err := LoadAuxData("")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestLoadAuxDataMissingDir(t *testing.T) {
	_, err := LoadAuxData(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "failed to read auxdata directory")
}

func TestLoadAuxData(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "portal_name", "data.example.org")
	write(t, dir, "trusted.yaml", "organizations: [org1, org2]\n")
	write(t, dir, "limits.json", `{"max_collaborators": 5}`)
	write(t, dir, ".hidden", "skip")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "..data"), 0o755))

	result, err := LoadAuxData(dir)
	require.NoError(t, err)
	assert.Len(t, result, 3)
	assert.Equal(t, "data.example.org", result["portal_name"])

	trusted, ok := result["trusted.yaml"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"org1", "org2"}, trusted["organizations"])

	limits, ok := result["limits.json"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 5, limits["max_collaborators"])
}

func TestLoadAuxDataBadDocument(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "broken.yaml", "a: [unclosed\n")

	_, err := LoadAuxData(dir)
	assert.ErrorContains(t, err, "broken.yaml")
}

func TestMergeAuxData(t *testing.T) {
	input := map[string]interface{}{"action": "package_show"}
	assert.NotContains(t, MergeAuxData(input, nil), Key)

	aux := map[string]interface{}{"portal_name": "data.example.org"}
	merged := MergeAuxData(input, aux)
	assert.Equal(t, aux, merged[Key])
	assert.Equal(t, "package_show", merged["action"])

	assert.Nil(t, MergeAuxData(nil, aux))
}

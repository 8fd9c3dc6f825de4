//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdoutFactory(t *testing.T) {
	f := NewStdoutFactory()
	assert.IsType(t, &IoWriterFactory{}, f)

	s, err := f.NewStream()
	require.NoError(t, err)
	assert.IsType(t, &IoWriterStream{}, s)
}

func TestNewRecord(t *testing.T) {
	r := NewRecord("default", "package_show", "alice")
	_, err := uuid.Parse(r.ID)
	assert.NoError(t, err)
	assert.False(t, r.Timestamp.IsZero())
	assert.Equal(t, "package_show", r.Action)
	assert.NotEqual(t, r.ID, NewRecord("default", "package_show", "alice").ID)
}

func TestSendCompact(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewIoWriterFactory(&buf).NewStream()
	require.NoError(t, err)

	r := NewRecord("legacy", "revision_purge", "blah")
	r.Decision = Deny
	r.Reason = "User blah not authorized to purge revision rev-1"
	require.NoError(t, s.Send(r))
	require.NoError(t, s.Send(NewRecord("legacy", "package_show", "")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, r.ID, got["id"])
	assert.Equal(t, "DENY", got["decision"])
	assert.Equal(t, "blah", got["user"])
	assert.Equal(t, "legacy", got["profile"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.NotContains(t, got, "user", "anonymous records omit the user")
}

func TestSendPretty(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewIoWriterFactoryWithOptions(&buf, AccessLogOptions{PrettyPrint: true}).NewStream()
	require.NoError(t, err)

	require.NoError(t, s.Send(NewRecord("default", "group_show", "carol")))
	assert.Contains(t, buf.String(), "\n  \"action\": \"group_show\"")

	var got Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "carol", got.User)
}

func TestSendConcurrent(t *testing.T) {
	var buf bytes.Buffer
	s := newStream(&buf, AccessLogOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Send(NewRecord("default", "package_show", "")))
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var r Record
		assert.NoError(t, json.Unmarshal([]byte(line), &r))
	}
}

func TestNullStream(t *testing.T) {
	s, err := NewNullFactory().NewStream()
	require.NoError(t, err)
	assert.NoError(t, s.Send(NewRecord("default", "package_show", "")))
	assert.NotPanics(t, s.Close)
}

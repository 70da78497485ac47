package natsc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := GetDefaultOptions()
	assert.True(t, o.AllowReconnect)
	assert.Equal(t, 2*time.Second, o.Timeout)
	assert.Equal(t, 2*time.Minute, o.PingInterval)
	assert.Equal(t, 2, o.MaxPingsOut)
	assert.Equal(t, 60, o.MaxReconnect)
	assert.Equal(t, 8*1024*1024, o.ReconnectBufSize)
	assert.Equal(t, 30*time.Second, o.DrainTimeout)
	assert.Equal(t, defaultPendingMsgs, o.PendingMsgsLimit)
	assert.Equal(t, defaultPendingBytes, o.PendingBytesLimit)
	assert.NotNil(t, o.Logger)
}

func TestOptions_Setters(t *testing.T) {
	o := GetDefaultOptions()
	for _, opt := range []Option{
		Name("svc"),
		WithVerbose(),
		NoReconnect(),
		MaxReconnects(3),
		ReconnectWait(time.Second),
		DialTimeout(5 * time.Second),
		PingInterval(10 * time.Second),
		MaxPingsOutstanding(7),
		UserInfo("u", "p"),
		TokenAuth("tok"),
	} {
		opt(&o)
	}
	assert.Equal(t, "svc", o.Name)
	assert.True(t, o.Verbose)
	assert.False(t, o.AllowReconnect)
	assert.Equal(t, 3, o.MaxReconnect)
	assert.Equal(t, time.Second, o.ReconnectWait)
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.Equal(t, 10*time.Second, o.PingInterval)
	assert.Equal(t, 7, o.MaxPingsOut)
	assert.Equal(t, "u", o.User)
	assert.Equal(t, "p", o.Password)
	assert.Equal(t, "tok", o.Token)
}

func TestLoadOptionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "natsc.yaml")
	content := []byte(`
servers:
  - nats://one:4222
  - nats://two:4222
name: loaded
verbose: true
max_reconnect: 12
reconnect_wait: 500ms
ping_interval: 30s
user: alice
password: wonder
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	o, err := LoadOptionsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://one:4222", "nats://two:4222"}, o.Servers)
	assert.Equal(t, "loaded", o.Name)
	assert.True(t, o.Verbose)
	assert.Equal(t, 12, o.MaxReconnect)
	assert.Equal(t, 500*time.Millisecond, o.ReconnectWait)
	assert.Equal(t, 30*time.Second, o.PingInterval)
	assert.Equal(t, "alice", o.User)
	assert.Equal(t, "wonder", o.Password)

	// Unset fields still pick up defaults.
	assert.Equal(t, defaultTimeout, o.Timeout)
	assert.True(t, o.AllowReconnect)
}

func TestLoadOptionsFile_Missing(t *testing.T) {
	_, err := LoadOptionsFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrOptionsFile)
}

func TestLoadOptionsFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: {not a list"), 0o600))
	_, err := LoadOptionsFile(path)
	assert.ErrorIs(t, err, ErrOptionsFile)
}

func TestParseServerURL(t *testing.T) {
	s, err := parseServerURL("nats://host:4333")
	require.NoError(t, err)
	assert.Equal(t, "host:4333", s.url.Host)

	// Bare host:port gets the implicit scheme and default port.
	s, err = parseServerURL("10.0.0.1:4222")
	require.NoError(t, err)
	assert.Equal(t, "nats", s.url.Scheme)

	s, err = parseServerURL("nats://justhost")
	require.NoError(t, err)
	assert.Equal(t, "justhost:4222", s.url.Host)

	s, err = parseServerURL("ws://host:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws", s.url.Scheme)

	_, err = parseServerURL("http://host:80")
	assert.Error(t, err)
}

func TestNewInbox(t *testing.T) {
	a, b := NewInbox(), NewInbox()
	assert.Contains(t, a, InboxPrefix)
	assert.NotEqual(t, a, b)
}

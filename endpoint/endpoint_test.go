package endpoint_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netcore-go/netcore/endpoint"
)

func TestParseUnixSocket(t *testing.T) {
	ep, err := endpoint.Parse("/tmp/t.sock")
	require.NoError(t, err)
	assert.Equal(t, endpoint.KindUnix, ep.Kind)
	assert.Equal(t, "/tmp/t.sock", ep.Path)
}

func TestParseHostPort(t *testing.T) {
	ep, err := endpoint.Parse("example.com:8080")
	require.NoError(t, err)
	assert.Equal(t, endpoint.KindInet, ep.Kind)
	assert.Equal(t, "example.com", ep.Host)
	assert.Equal(t, "8080", ep.Port)
}

func TestParseBarePort(t *testing.T) {
	ep, err := endpoint.Parse(":9090")
	require.NoError(t, err)
	assert.Equal(t, endpoint.KindInet, ep.Kind)
	assert.Equal(t, "", ep.Host)
	assert.Equal(t, "9090", ep.Port)
}

func TestParsePortOnlyNoColon(t *testing.T) {
	ep, err := endpoint.Parse("9090")
	require.NoError(t, err)
	assert.Equal(t, endpoint.KindInet, ep.Kind)
	assert.Equal(t, "", ep.Host)
	assert.Equal(t, "9090", ep.Port)
}

func TestResolveWildcardHost(t *testing.T) {
	ep, err := endpoint.Parse(":0")
	require.NoError(t, err)
	resolved, err := ep.Resolve()
	require.NoError(t, err)
	assert.True(t, resolved.IP.Equal(net.IPv4zero))
	assert.Equal(t, 0, resolved.Port)
}

func TestResolveLiteralIP(t *testing.T) {
	ep, err := endpoint.Parse("127.0.0.1:4242")
	require.NoError(t, err)
	resolved, err := ep.Resolve()
	require.NoError(t, err)
	assert.True(t, resolved.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, 4242, resolved.Port)
}

func TestResolveInvalidPort(t *testing.T) {
	ep, err := endpoint.Parse("localhost:not-a-port")
	require.NoError(t, err)
	_, err = ep.Resolve()
	require.Error(t, err)
}

func TestResolveUnixPassesThrough(t *testing.T) {
	ep, err := endpoint.Parse("/var/run/app.sock")
	require.NoError(t, err)
	resolved, err := ep.Resolve()
	require.NoError(t, err)
	assert.Equal(t, endpoint.KindUnix, resolved.Kind)
	assert.Equal(t, "/var/run/app.sock", resolved.Path)
}

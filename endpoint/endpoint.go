// Package endpoint parses the user-facing address grammar shared by
// server and the socket Connect/Listen helpers: a Unix path, or an inet
// host+port pair, and resolves either to syscall-ready addresses.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/netcore-go/netcore/neterr"
)

// Kind identifies which variant of Endpoint is populated.
type Kind int

const (
	// KindUnix identifies a Unix domain socket endpoint.
	KindUnix Kind = iota
	// KindInet identifies a TCP/IP endpoint.
	KindInet
)

// Endpoint is the tagged union described by the address grammar: either a
// Unix socket path (with optional mode/owner/group, applied after bind) or
// an inet host+port pair.
type Endpoint struct {
	Kind Kind

	// Path is set when Kind == KindUnix.
	Path string
	// Mode is the optional file permission bits applied to Path after bind.
	// Zero means "leave the default umask-derived mode".
	Mode uint32
	// Owner is an optional username or numeric uid string, applied via
	// chown after bind.
	Owner string
	// Group is an optional group name or numeric gid string, applied via
	// chown after bind.
	Group string

	// Host is set when Kind == KindInet. An empty Host means "wildcard",
	// valid only for listeners.
	Host string
	// Port is set when Kind == KindInet.
	Port string
}

// Parse applies the endpoint string grammar:
//   - starts with "/"  -> Unix socket, path is the entire string
//   - contains ":"     -> inet socket, host = before, port = after
//   - otherwise        -> inet socket, host = "", port = the entire string
func Parse(s string) (Endpoint, error) {
	if strings.HasPrefix(s, "/") {
		return Endpoint{Kind: KindUnix, Path: s}, nil
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		return Endpoint{Kind: KindInet, Host: s[:idx], Port: s[idx+1:]}, nil
	}
	return Endpoint{Kind: KindInet, Host: "", Port: s}, nil
}

// String renders the endpoint back into grammar form.
func (e Endpoint) String() string {
	if e.Kind == KindUnix {
		return e.Path
	}
	return net.JoinHostPort(e.Host, e.Port)
}

// ResolvedAddr is a fully resolved socket address ready for bind/connect:
// either an AF_UNIX path or an AF_INET/AF_INET6 IP+port pair.
type ResolvedAddr struct {
	Kind Kind
	Path string
	IP   net.IP
	Port int
}

// Resolve converts the Endpoint's host (if inet) into a concrete IP,
// performing DNS resolution as needed. An empty host resolves to the IPv4
// unspecified address 0.0.0.0, valid for listeners binding to all IPv4
// interfaces.
func (e Endpoint) Resolve() (ResolvedAddr, error) {
	if e.Kind == KindUnix {
		return ResolvedAddr{Kind: KindUnix, Path: e.Path}, nil
	}

	port, err := strconv.Atoi(e.Port)
	if err != nil {
		return ResolvedAddr{}, &neterr.ResolveError{Host: e.String(), Err: fmt.Errorf("invalid port %q: %w", e.Port, err)}
	}

	if e.Host == "" {
		return ResolvedAddr{Kind: KindInet, IP: net.IPv4zero, Port: port}, nil
	}

	if ip := net.ParseIP(e.Host); ip != nil {
		return ResolvedAddr{Kind: KindInet, IP: ip, Port: port}, nil
	}

	ips, err := net.LookupIP(e.Host)
	if err != nil {
		return ResolvedAddr{}, &neterr.ResolveError{Host: e.Host, Err: err}
	}
	if len(ips) == 0 {
		return ResolvedAddr{}, &neterr.ResolveError{Host: e.Host, Err: fmt.Errorf("no addresses returned")}
	}
	return ResolvedAddr{Kind: KindInet, IP: ips[0], Port: port}, nil
}

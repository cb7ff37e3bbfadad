package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// PrivateHostError marks a target the execution environment can never
// reach: loopback, RFC1918 ranges, link-local. Callers classify it as a
// network failure without any transport attempt having been made.
type PrivateHostError struct {
	Host string
}

func (e *PrivateHostError) Error() string {
	return fmt.Sprintf("cannot reach private address %s", e.Host)
}

// CheckTargetURL rejects URLs whose hostname is loopback or inside a
// private range. Hostnames that require DNS resolution pass; only
// addresses that are knowably private are rejected.
func CheckTargetURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil
	}
	host := u.Hostname()
	if host == "" {
		return nil
	}
	if IsPrivateHost(host) {
		return &PrivateHostError{Host: host}
	}
	return nil
}

func IsPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

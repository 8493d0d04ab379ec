package system

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

// CheckHostReachable resolves host and opens a TCP connection to host:port.
func CheckHostReachable(ctx context.Context, host, port string) error {
	var r net.Resolver
	if _, err := r.LookupHost(ctx, host); err != nil {
		return fetcherrors.NewFriendlyError(
			fmt.Sprintf("Cannot resolve host: %s", host),
			"Check that the hostname is correct and your DNS is working",
		).WithDetails(err)
	}
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fetcherrors.NewFriendlyError(
			fmt.Sprintf("Cannot connect to %s:%s", host, port),
			fmt.Sprintf("Host is unreachable:\n"+
				"1. Check internet connection\n"+
				"2. Verify host is not blocked by firewall\n"+
				"3. Try: curl -I https://%s", host),
		).WithDetails(err)
	}
	return conn.Close()
}

// ProxySettings returns the proxy variables set in the environment, plus the
// proxies net/http would pick for plain and TLS requests.
func ProxySettings() map[string]string {
	out := make(map[string]string)
	for _, k := range []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "no_proxy"} {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	for scheme, key := range map[string]string{"http": "HTTP_PROXY", "https": "HTTPS_PROXY"} {
		req, _ := http.NewRequest(http.MethodGet, scheme+"://example.com", nil)
		if u, _ := http.ProxyFromEnvironment(req); u != nil {
			if _, ok := out[key]; !ok {
				out[key] = u.String()
			}
		}
	}
	return out
}

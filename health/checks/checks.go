// Package checks provides a handful of ready-made health.Checker
// constructors for the dependencies this archive relies on: a writable
// local directory, a reachable TCP endpoint, and an HTTP-reachable
// endpoint.
package checks

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/libreary/libreary/health"
)

// DirWritableChecker checks that dir exists and is a writable
// directory. Used for the archive's dropbox and output directories.
func DirWritableChecker(dir string) health.Checker {
	return health.CheckFunc(func(context.Context) error {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %q: %w", dir, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("%v: %w", abs, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%v: not a directory", abs)
		}
		probe := filepath.Join(abs, ".libreary-health-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
			return fmt.Errorf("%v: not writable: %w", abs, err)
		}
		return os.Remove(probe)
	})
}

// HTTPChecker does a HEAD request and verifies that the HTTP status
// code returned matches statusCode.
func HTTPChecker(url string, statusCode int, timeout time.Duration, headers http.Header) health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		client := http.Client{Timeout: timeout}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return fmt.Errorf("%v: error creating request: %w", url, err)
		}
		for name, values := range headers {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%v: error while checking: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != statusCode {
			return fmt.Errorf("%v: unexpected status: %d", url, resp.StatusCode)
		}
		return nil
	})
}

// TCPChecker attempts to open a TCP connection to addr.
func TCPChecker(addr string, timeout time.Duration) health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("%v: connection failed: %w", addr, err)
		}
		return conn.Close()
	})
}

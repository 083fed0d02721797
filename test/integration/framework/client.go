package framework

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// HintClient runs the renderhints-client binary.
type HintClient struct {
	t              *testing.T
	packagePath    string
	defaultTimeout time.Duration
}

// clientLogWriter forwards output to t.Logf as it arrives.
type clientLogWriter struct {
	t      *testing.T
	prefix string
}

func (lw *clientLogWriter) Write(p []byte) (n int, err error) {
	lw.t.Logf("%s%s", lw.prefix, string(p))
	return len(p), nil
}

// HintClientConfig holds configuration for HintClient.
type HintClientConfig struct {
	// PackagePath is the path to the client main package
	// (e.g., "../../cmd/renderhints-client").
	PackagePath string

	// DefaultTimeout bounds each invocation, compilation included
	// (default: 90s).
	DefaultTimeout time.Duration
}

// NewHintClient creates a client wrapper.
func NewHintClient(t *testing.T, config HintClientConfig) *HintClient {
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = 90 * time.Second
	}
	return &HintClient{
		t:              t,
		packagePath:    config.PackagePath,
		defaultTimeout: config.DefaultTimeout,
	}
}

// SendHints connects to a WebSocket endpoint, sends hints and returns the
// printed result table.
func (c *HintClient) SendHints(url string, hints ...string) (map[string]string, error) {
	return c.sendHints("-url", url, hints)
}

// SendHintsTCP is SendHints over framed TCP.
func (c *HintClient) SendHintsTCP(addr string, hints ...string) (map[string]string, error) {
	return c.sendHints("-tcp", addr, hints)
}

// SendHintsWebRTC is SendHints over a WebRTC data channel.
func (c *HintClient) SendHintsWebRTC(offerURL string, hints ...string) (map[string]string, error) {
	return c.sendHints("-offer", offerURL, hints)
}

func (c *HintClient) sendHints(flag, endpoint string, hints []string) (map[string]string, error) {
	args := []string{flag, endpoint, "-timeout", "10s"}
	for _, h := range hints {
		args = append(args, "-hint", h)
	}

	output, err := c.run(args...)
	if err != nil {
		return nil, err
	}
	return ParseResults(output), nil
}

// ParseResults extracts "sid result" rows from the client output.
func ParseResults(output string) map[string]string {
	results := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "  ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 {
			results[fields[0]] = fields[1]
		}
	}
	return results
}

// run executes the client with the default timeout and returns its stdout.
func (c *HintClient) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.defaultTimeout)
	defer cancel()

	absPath, err := filepath.Abs(c.packagePath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = absPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &clientLogWriter{t: c.t, prefix: "[client stdout] "})
	cmd.Stderr = io.MultiWriter(&stderr, &clientLogWriter{t: c.t, prefix: "[client stderr] "})

	c.t.Logf("client: Running: go run . %s", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.String(), fmt.Errorf("command timed out after %v", c.defaultTimeout)
		}
		return stdout.String(), fmt.Errorf("command failed: %w: %s", err, stderr.String())
	}

	return stdout.String(), nil
}

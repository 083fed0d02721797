// Package framework provides test infrastructure for render hint integration
// tests that drive the command binaries.
package framework

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ServerProcess manages the lifecycle of the renderhints-server binary.
type ServerProcess struct {
	packagePath string
	listenAddr  string
	tcpAddr     string
	args        []string
	logFile     string

	mu            sync.Mutex
	cmd           *exec.Cmd
	started       bool
	stdout        *logWriter
	stderr        *logWriter
	logFileHandle *os.File
	done          chan struct{}
	ctx           context.Context
	cancelFunc    context.CancelFunc
}

// ServerProcessConfig holds configuration for a server process.
type ServerProcessConfig struct {
	// PackagePath is the path to the server main package
	// (e.g., "../../cmd/renderhints-server").
	PackagePath string

	// ListenAddr is the HTTP address (default: "127.0.0.1:17880").
	ListenAddr string

	// TCPAddr is the framed TCP address. Empty disables TCP.
	TCPAddr string

	// LogFile is an optional path to write logs to (in addition to stdout).
	LogFile string

	// ExtraArgs are additional command-line arguments.
	ExtraArgs []string
}

// NewServerProcess creates a new server process manager.
func NewServerProcess(config ServerProcessConfig) *ServerProcess {
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:17880"
	}

	args := []string{"-listen", config.ListenAddr, "-log", "debug"}
	if config.TCPAddr != "" {
		args = append(args, "-tcp", config.TCPAddr)
	}
	args = append(args, config.ExtraArgs...)

	ctx, cancel := context.WithCancel(context.Background())

	return &ServerProcess{
		packagePath: config.PackagePath,
		listenAddr:  config.ListenAddr,
		tcpAddr:     config.TCPAddr,
		args:        args,
		logFile:     config.LogFile,
		done:        make(chan struct{}),
		ctx:         ctx,
		cancelFunc:  cancel,
	}
}

// Start starts the server using `go run` and waits until it accepts HTTP
// connections.
func (p *ServerProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("server process already started")
	}

	absPath, err := filepath.Abs(p.packagePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	name := filepath.Base(p.packagePath)

	cmdArgs := append([]string{"run", "."}, p.args...)
	p.cmd = exec.CommandContext(p.ctx, "go", cmdArgs...)
	p.cmd.Dir = absPath
	// Own process group so Stop reaches the compiled binary, not only `go`.
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if p.logFile != "" {
		f, err := os.OpenFile(p.logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		p.logFileHandle = f
	}

	p.stdout = newLogWriter(fmt.Sprintf("[%s stdout]", name), p.logFileHandle)
	p.stderr = newLogWriter(fmt.Sprintf("[%s stderr]", name), p.logFileHandle)
	p.cmd.Stdout = p.stdout
	p.cmd.Stderr = p.stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	p.started = true

	go func() {
		defer close(p.done)
		p.cmd.Wait()
	}()

	// `go run` compiles first, so allow a generous startup window.
	return waitForListener(p.listenAddr, p.done, 60*time.Second)
}

// waitForListener polls addr until it accepts a connection.
func waitForListener(addr string, exited <-chan struct{}, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-exited:
			return fmt.Errorf("server exited before listening on %s", addr)
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("server not listening on %s after %v", addr, timeout)
}

// Stop gracefully stops the server process.
func (p *ServerProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	if p.cmd != nil && p.cmd.Process != nil {
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil {
			p.cmd.Process.Kill()
		}
	}

	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		<-p.done
	}
	p.cancelFunc()

	if p.logFileHandle != nil {
		p.logFileHandle.Close()
		p.logFileHandle = nil
	}

	p.started = false
	return nil
}

// ListenAddr returns the HTTP address of the server.
func (p *ServerProcess) ListenAddr() string {
	return p.listenAddr
}

// TCPAddr returns the framed TCP address, or "" if disabled.
func (p *ServerProcess) TCPAddr() string {
	return p.tcpAddr
}

// IsRunning returns true if the server process is currently running.
func (p *ServerProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return false
	}

	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// logWriter prefixes output with a label and optionally copies it to a file.
type logWriter struct {
	prefix  string
	logFile *os.File
	mu      sync.Mutex
}

func newLogWriter(prefix string, logFile *os.File) *logWriter {
	return &logWriter{
		prefix:  prefix,
		logFile: logFile,
	}
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Printf("%s %s", w.prefix, string(p))
	if w.logFile != nil {
		fmt.Fprintf(w.logFile, "%s %s", w.prefix, string(p))
	}

	return len(p), nil
}

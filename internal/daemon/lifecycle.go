package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the name of the PID file inside the data directory
const PIDFileName = "toolserver.pid"

// LifecycleManager owns the PID file of a running server
type LifecycleManager struct {
	dataDir string
	pidFile string
}

// NewLifecycleManager creates a lifecycle manager for dataDir
func NewLifecycleManager(dataDir string) *LifecycleManager {
	return &LifecycleManager{
		dataDir: dataDir,
		pidFile: filepath.Join(dataDir, PIDFileName),
	}
}

// PIDFile returns the PID file path
func (l *LifecycleManager) PIDFile() string {
	return l.pidFile
}

// Start writes the PID file, refusing when another live server owns it.
func (l *LifecycleManager) Start() error {
	if err := os.MkdirAll(l.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if pid, err := l.GetPID(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("server is already running with PID %d", pid)
	}

	if err := os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetPID returns the PID recorded in the PID file
func (l *LifecycleManager) GetPID() (int, error) {
	data, err := os.ReadFile(l.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether the recorded process is alive
func (l *LifecycleManager) IsRunning() bool {
	pid, err := l.GetPID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// processAlive probes pid with signal 0; FindProcess always succeeds on Unix.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sweep retries queued deletions and removes orphaned workspace directories
// under the root whose modification time is older than maxAge. Live
// workspaces are never touched. It returns the number of directories removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	removed := 0

	m.mu.Lock()
	queued := make([]string, 0, len(m.pending))
	for dir := range m.pending {
		queued = append(queued, dir)
	}
	m.mu.Unlock()

	for _, dir := range queued {
		if err := m.remove(dir); err != nil {
			m.log.Warn("sweep: queued workspace still not removable", "workspace", dir, "err", err)
			continue
		}
		m.mu.Lock()
		delete(m.pending, dir)
		m.mu.Unlock()
		removed++
	}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return removed, err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), m.prefix) {
			continue
		}
		dir := filepath.Join(m.root, e.Name())

		m.mu.Lock()
		_, live := m.live[dir]
		m.mu.Unlock()
		if live {
			continue
		}

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := m.remove(dir); err != nil {
			m.log.Warn("sweep: orphan removal failed", "workspace", dir, "err", err)
			continue
		}
		m.log.Info("sweep: removed orphaned workspace", "workspace", dir, "age", time.Since(info.ModTime()).Round(time.Second))
		removed++
	}
	return removed, nil
}

// StartSweeper runs Sweep every interval until ctx is done. A final pass
// over the queued deletions runs on shutdown.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.Drain()
				return
			case <-ticker.C:
				if n, err := m.Sweep(maxAge); err != nil {
					m.log.Warn("sweep failed", "err", err)
				} else if n > 0 {
					m.log.Debug("sweep complete", "removed", n)
				}
			}
		}
	}()
}

// Drain makes a last attempt at every queued deletion. It is meant for
// process exit.
func (m *Manager) Drain() {
	m.mu.Lock()
	queued := make([]string, 0, len(m.pending))
	for dir := range m.pending {
		queued = append(queued, dir)
	}
	m.mu.Unlock()

	for _, dir := range queued {
		if err := m.remove(dir); err != nil {
			m.log.Error("workspace left behind", "workspace", dir, "err", err)
			continue
		}
		m.mu.Lock()
		delete(m.pending, dir)
		m.mu.Unlock()
	}
}

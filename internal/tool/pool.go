package tool

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// Slot is one profile directory lease from a Pool.
type Slot struct {
	id  int
	dir string
}

// ID returns the slot index, stable across profile refreshes.
func (s *Slot) ID() int { return s.id }

// ProfileDir returns the slot's current profile directory.
func (s *Slot) ProfileDir() string { return s.dir }

// ProfileURL returns the profile directory as a file URL.
func (s *Slot) ProfileURL() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(s.dir)}).String()
}

// Pool is a finite set of profile slots for single-instance engines.
type Pool struct {
	root  string
	slots chan *Slot
	size  int
	inUse atomic.Int32
	log   *slog.Logger
}

// NewPool creates size slots with distinct profile directories under root.
func NewPool(root string, size int, logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, job.Wrap(job.ErrWorkspace, "pool", err)
	}
	p := &Pool{root: root, slots: make(chan *Slot, size), size: size, log: logger}
	for i := 0; i < size; i++ {
		s := &Slot{id: i}
		if err := p.assignProfile(s); err != nil {
			return nil, err
		}
		p.slots <- s
	}
	return p, nil
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	select {
	case s := <-p.slots:
		p.inUse.Add(1)
		return s, nil
	case <-ctx.Done():
		return nil, job.Wrap(job.KindOf(ctx.Err()), "pool", ctx.Err())
	}
}

// Release returns s to the pool.
func (p *Pool) Release(s *Slot) {
	p.inUse.Add(-1)
	p.slots <- s
}

// Refresh discards the slot's profile and gives it a fresh one. It is used
// when a conversion failed in a way that may have left the profile locked.
func (p *Pool) Refresh(s *Slot) error {
	old := s.dir
	if err := p.assignProfile(s); err != nil {
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		p.log.Warn("stale profile not removed", "profile", old, "err", err)
	}
	p.log.Debug("profile refreshed", "slot", s.id, "profile", s.dir)
	return nil
}

// Close removes every profile directory. Slots must not be in use.
func (p *Pool) Close() error {
	return os.RemoveAll(p.root)
}

func (p *Pool) assignProfile(s *Slot) error {
	dir := filepath.Join(p.root, fmt.Sprintf("profile%d-%s", s.id, uuid.NewString()[:8]))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return job.Wrap(job.ErrWorkspace, "pool", err)
	}
	s.dir = dir
	return nil
}

package fs

import (
	"io/fs"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig sets per-operation fault probabilities from 0 (never) to 1
// (always). Rates apply only in [ChaosModeInject].
type ChaosConfig struct {
	ReadFailRate     float64
	PartialReadRate  float64 // read succeeds with a truncated payload
	WriteFailRate    float64
	PartialWriteRate float64 // a prefix lands on disk and the write reports EIO
	LockFailRate     float64
}

// DefaultChaosConfig returns low rates suitable for randomized runs.
func DefaultChaosConfig() ChaosConfig {
	return ChaosConfig{
		ReadFailRate:     0.02,
		PartialReadRate:  0.02,
		WriteFailRate:    0.02,
		PartialWriteRate: 0.03,
		LockFailRate:     0.02,
	}
}

// PathState is a persistent fault attached to one path.
type PathState int

const (
	// PathNormal is the zero value: no persistent fault.
	PathNormal PathState = iota
	// PathIOError fails reads and writes with EIO.
	PathIOError
	// PathReadOnly fails writes with EROFS.
	PathReadOnly
	// PathNoPermission fails with EACCES most of the time and clears itself
	// on the rest.
	PathNoPermission
	// PathNoSpace fails writes with ENOSPC.
	PathNoSpace
)

// ChaosMode selects which faults [Chaos] applies.
type ChaosMode uint8

const (
	// ChaosModePassthrough ignores rates and path state.
	ChaosModePassthrough ChaosMode = iota
	// ChaosModeInject applies rates and path state.
	ChaosModeInject
	// ChaosModeStickyOnly applies path state only, for deterministic tests.
	ChaosModeStickyOnly
)

// Chaos wraps an [FS] and fails operations the way a sick disk would.
//
// Faults are *fs.PathError values carrying a syscall.Errno, so errors.Is
// against ENOSPC, EROFS and the like behaves as with the real OS. A random
// fault may leave its path in a sticky [PathState]; [Chaos.MarkPath] sets one
// directly.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	mu     sync.Mutex
	rng    *rand.Rand
	states map[string]PathState

	faults atomic.Int64
	stats  [opCount]atomic.Int64
}

type op int

const (
	opRead op = iota
	opPartialRead
	opWrite
	opPartialWrite
	opLock
	opCount
)

// NewChaos wraps fsys. seed makes random faults reproducible. A new Chaos
// starts in [ChaosModePassthrough].
func NewChaos(fsys FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{
		fs:     fsys,
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		states: make(map[string]PathState),
	}
}

// SetMode switches behavior. Sticky path state survives mode changes.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// ChaosStats counts injected faults by kind.
type ChaosStats struct {
	ReadFails     int64
	PartialReads  int64
	WriteFails    int64
	PartialWrites int64
	LockFails     int64
}

// Stats returns fault counts so far.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		ReadFails:     c.stats[opRead].Load(),
		PartialReads:  c.stats[opPartialRead].Load(),
		WriteFails:    c.stats[opWrite].Load(),
		PartialWrites: c.stats[opPartialWrite].Load(),
		LockFails:     c.stats[opLock].Load(),
	}
}

// TotalFaults returns the number of faults injected so far.
func (c *Chaos) TotalFaults() int64 { return c.faults.Load() }

// MarkPath attaches state to path. PathNormal clears it.
func (c *Chaos) MarkPath(path string, state PathState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state == PathNormal {
		delete(c.states, path)

		return
	}

	c.states[path] = state
}

// PathState returns the fault attached to path.
func (c *Chaos) PathState(path string) PathState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.states[path]
}

// ResetAllPathStates clears every sticky fault.
func (c *Chaos) ResetAllPathStates() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.states)
}

func (c *Chaos) record(o op) {
	c.stats[o].Add(1)
	c.faults.Add(1)
}

func (c *Chaos) roll(rate float64) bool {
	if ChaosMode(c.mode.Load()) != ChaosModeInject || rate <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) cut(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rng.Intn(n-1) + 1
}

// randomErrno picks a plausible errno for a failed read or write and makes
// the matching path state sticky.
func (c *Chaos) randomErrno(path string, write bool) syscall.Errno {
	choices := []syscall.Errno{syscall.EIO, syscall.EINTR}
	if write {
		choices = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS}
	}

	c.mu.Lock()
	errno := choices[c.rng.Intn(len(choices))]
	c.mu.Unlock()

	var state PathState

	switch errno {
	case syscall.EIO:
		state = PathIOError
	case syscall.EROFS:
		state = PathReadOnly
	case syscall.EACCES:
		state = PathNoPermission
	case syscall.ENOSPC:
		state = PathNoSpace
	}

	c.MarkPath(path, state)

	return errno
}

// sticky returns the errno path's state forces, if any.
func (c *Chaos) sticky(path string, write bool) (syscall.Errno, bool) {
	switch c.PathState(path) {
	case PathNoPermission:
		c.mu.Lock()
		keep := c.rng.Float64() < 0.8
		c.mu.Unlock()

		if keep {
			return syscall.EACCES, true
		}

		c.MarkPath(path, PathNormal)
	case PathIOError:
		return syscall.EIO, true
	case PathReadOnly:
		if write {
			return syscall.EROFS, true
		}
	case PathNoSpace:
		if write {
			return syscall.ENOSPC, true
		}
	}

	return 0, false
}

func (c *Chaos) passthrough() bool {
	return ChaosMode(c.mode.Load()) == ChaosModePassthrough
}

func pathError(op, path string, errno syscall.Errno) error {
	pe := &fs.PathError{Op: op, Path: path, Err: errno}
	markInjectedPathError(pe)

	return pe
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.passthrough() {
		return c.fs.ReadFile(path)
	}

	if errno, ok := c.sticky(path, false); ok {
		c.record(opRead)

		return nil, pathError("read", path, errno)
	}

	if c.roll(c.config.ReadFailRate) {
		c.record(opRead)

		return nil, pathError("read", path, c.randomErrno(path, false))
	}

	data, err := c.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) > 1 && c.roll(c.config.PartialReadRate) {
		c.record(opPartialRead)

		return data[:c.cut(len(data))], nil
	}

	return data, nil
}

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if c.passthrough() {
		return c.fs.WriteFileAtomic(path, data, perm)
	}

	if errno, ok := c.sticky(path, true); ok {
		c.record(opWrite)

		return pathError("write", path, errno)
	}

	if c.roll(c.config.WriteFailRate) {
		c.record(opWrite)

		return pathError("write", path, c.randomErrno(path, true))
	}

	if len(data) > 1 && c.roll(c.config.PartialWriteRate) {
		c.record(opPartialWrite)

		err := c.fs.WriteFileAtomic(path, data[:c.cut(len(data))], perm)
		if err != nil {
			return err
		}

		return pathError("write", path, syscall.EIO)
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if !c.passthrough() {
		if errno, ok := c.sticky(path, true); ok {
			return pathError("mkdir", path, errno)
		}
	}

	return c.fs.MkdirAll(path, perm)
}

func (c *Chaos) Lock(path string) (Locker, error) {
	if c.passthrough() {
		return c.fs.Lock(path)
	}

	if errno, ok := c.sticky(path, true); ok {
		c.record(opLock)

		return nil, pathError("lock", path, errno)
	}

	if c.roll(c.config.LockFailRate) {
		c.record(opLock)

		return nil, inject(os.ErrDeadlineExceeded)
	}

	return c.fs.Lock(path)
}

var _ FS = (*Chaos)(nil)

// Package arena provides budgeted block pools with generational handles.
//
// Blocks are addressed by Handle (index + generation) instead of raw
// slices, so a released block can never be read or written through a
// handle that outlived it: the generation check fails first. Two pools
// with different characteristics back the handles:
//   - PoolImage: byte-budgeted, variable block sizes, for pixel buffers
//     and decode scratch.
//   - PoolControl: a fixed number of fixed-size slots with cheap reuse,
//     for per-worker control blocks. The slot count doubles as the bound
//     on concurrent workers.
package arena

import (
	"errors"
	"fmt"
	"sync"
)

// Pool selects which backing pool a request prefers.
type Pool uint8

const (
	// PoolImage is the large byte-budgeted pool.
	PoolImage Pool = iota

	// PoolControl is the fixed-slot metadata pool.
	PoolControl
)

func (p Pool) String() string {
	switch p {
	case PoolImage:
		return "image"
	case PoolControl:
		return "control"
	default:
		return fmt.Sprintf("pool(%d)", uint8(p))
	}
}

var (
	// ErrExhausted is returned when neither the preferred pool nor a safe
	// fallback can satisfy a request.
	ErrExhausted = errors.New("arena: pool exhausted")

	// ErrStaleHandle is returned when a handle refers to a block that has
	// already been released (or was never acquired).
	ErrStaleHandle = errors.New("arena: stale handle")

	// ErrBadSize is returned for non-positive sizes.
	ErrBadSize = errors.New("arena: invalid size")
)

// Handle identifies an acquired block. The zero Handle is invalid.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h could refer to a live block. A valid handle may
// still be stale; Bytes and Release perform the generation check.
func (h Handle) Valid() bool {
	return h.gen != 0
}

// Config sizes the two pools. Zero fields take defaults.
type Config struct {
	// ImageBudget is the total byte budget of the image pool.
	ImageBudget int

	// ControlSlots is the number of fixed-size control slots.
	ControlSlots int

	// ControlSlotSize is the byte size of each control slot.
	ControlSlotSize int
}

// DefaultConfig returns the default pool sizing.
func DefaultConfig() Config {
	return Config{
		ImageBudget:     16 << 20,
		ControlSlots:    32,
		ControlSlotSize: 512,
	}
}

type block struct {
	buf   []byte
	gen   uint32
	pool  Pool
	inUse bool
	size  int
}

// Allocator owns both pools. Safe for concurrent use.
type Allocator struct {
	mu     sync.Mutex
	blocks []block

	imageBudget    int
	imageInUse     int
	imageHighWater int
	freeImage      []uint32 // recycled block indexes, buf released

	slotSize     int
	slotCount    int
	slotsInUse   int
	slotsHigh    int
	freeControl  []uint32 // recycled slot indexes, buf retained
	fallbacks    uint64
	acquireCount uint64
}

// New creates an Allocator with the given pool sizing.
func New(cfg Config) *Allocator {
	def := DefaultConfig()
	if cfg.ImageBudget <= 0 {
		cfg.ImageBudget = def.ImageBudget
	}
	if cfg.ControlSlots <= 0 {
		cfg.ControlSlots = def.ControlSlots
	}
	if cfg.ControlSlotSize <= 0 {
		cfg.ControlSlotSize = def.ControlSlotSize
	}

	a := &Allocator{
		// Index 0 stays unused so the zero Handle never matches a block.
		blocks:      make([]block, 1),
		imageBudget: cfg.ImageBudget,
		slotSize:    cfg.ControlSlotSize,
		slotCount:   cfg.ControlSlots,
	}
	for i := 0; i < cfg.ControlSlots; i++ {
		a.blocks = append(a.blocks, block{
			buf:  make([]byte, cfg.ControlSlotSize),
			gen:  1,
			pool: PoolControl,
		})
		a.freeControl = append(a.freeControl, uint32(len(a.blocks)-1))
	}
	return a
}

// Acquire obtains a zeroed block of the given size, preferring pref.
// When the preferred pool cannot satisfy the request it falls back to the
// other pool where that is safe: control requests spill into the image
// budget, and image requests use a control slot only when they fit in one.
func (a *Allocator) Acquire(size int, pref Pool) (Handle, error) {
	return a.acquire(size, pref, true)
}

// AcquireStrict is Acquire without the fallback: the block comes from pref
// or the call fails. Use it where the pool itself is the limit being
// enforced, such as bounding concurrent workers by control slots.
func (a *Allocator) AcquireStrict(size int, pref Pool) (Handle, error) {
	return a.acquire(size, pref, false)
}

func (a *Allocator) acquire(size int, pref Pool, fallback bool) (Handle, error) {
	if size <= 0 {
		return Handle{}, fmt.Errorf("%w: %d", ErrBadSize, size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.acquireCount++

	switch pref {
	case PoolControl:
		if size > a.slotSize {
			if !fallback {
				return Handle{}, fmt.Errorf("%w: %d bytes exceeds %d byte control slots", ErrBadSize, size, a.slotSize)
			}
		} else if h, ok := a.acquireControl(size); ok {
			return h, nil
		}
		if !fallback {
			break
		}
		if h, ok := a.acquireImage(size); ok {
			if size <= a.slotSize {
				a.fallbacks++
			}
			return h, nil
		}
	default:
		if h, ok := a.acquireImage(size); ok {
			return h, nil
		}
		if !fallback {
			break
		}
		if size <= a.slotSize {
			if h, ok := a.acquireControl(size); ok {
				a.fallbacks++
				return h, nil
			}
		}
	}

	return Handle{}, fmt.Errorf("%w: %s pool, %d bytes", ErrExhausted, pref, size)
}

// acquireImage takes from the byte budget. Caller holds mu.
func (a *Allocator) acquireImage(size int) (Handle, bool) {
	if a.imageInUse+size > a.imageBudget {
		return Handle{}, false
	}

	var idx uint32
	if n := len(a.freeImage); n > 0 {
		idx = a.freeImage[n-1]
		a.freeImage = a.freeImage[:n-1]
	} else {
		a.blocks = append(a.blocks, block{gen: 1, pool: PoolImage})
		idx = uint32(len(a.blocks) - 1)
	}

	b := &a.blocks[idx]
	b.buf = make([]byte, size)
	b.inUse = true
	b.size = size

	a.imageInUse += size
	if a.imageInUse > a.imageHighWater {
		a.imageHighWater = a.imageInUse
	}
	return Handle{index: idx, gen: b.gen}, true
}

// acquireControl takes a fixed slot. Caller holds mu.
func (a *Allocator) acquireControl(size int) (Handle, bool) {
	n := len(a.freeControl)
	if n == 0 {
		return Handle{}, false
	}
	idx := a.freeControl[n-1]
	a.freeControl = a.freeControl[:n-1]

	b := &a.blocks[idx]
	clear(b.buf)
	b.inUse = true
	b.size = size

	a.slotsInUse++
	if a.slotsInUse > a.slotsHigh {
		a.slotsHigh = a.slotsInUse
	}
	return Handle{index: idx, gen: b.gen}, true
}

// Bytes returns the block backing h, sized to the acquired length.
func (a *Allocator) Bytes(h Handle) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	return b.buf[:b.size], nil
}

// Release returns h's block to its pool. Releasing an already-released or
// never-acquired handle fails with ErrStaleHandle.
func (a *Allocator) Release(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, err := a.lookup(h)
	if err != nil {
		return err
	}

	b.inUse = false
	b.gen++

	switch b.pool {
	case PoolControl:
		a.slotsInUse--
		a.freeControl = append(a.freeControl, h.index)
	default:
		a.imageInUse -= b.size
		b.buf = nil
		b.size = 0
		a.freeImage = append(a.freeImage, h.index)
	}
	return nil
}

func (a *Allocator) lookup(h Handle) (*block, error) {
	if h.index == 0 || int(h.index) >= len(a.blocks) {
		return nil, ErrStaleHandle
	}
	b := &a.blocks[h.index]
	if !b.inUse || b.gen != h.gen {
		return nil, ErrStaleHandle
	}
	return b, nil
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	ImageInUse     int
	ImageBudget    int
	ImageHighWater int

	ControlInUse     int
	ControlSlots     int
	ControlHighWater int

	Fallbacks uint64
	Acquires  uint64
}

// Stats returns current pool accounting.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		ImageInUse:       a.imageInUse,
		ImageBudget:      a.imageBudget,
		ImageHighWater:   a.imageHighWater,
		ControlInUse:     a.slotsInUse,
		ControlSlots:     a.slotCount,
		ControlHighWater: a.slotsHigh,
		Fallbacks:        a.fallbacks,
		Acquires:         a.acquireCount,
	}
}

// Idle reports whether nothing is currently acquired from either pool.
func (a *Allocator) Idle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.imageInUse == 0 && a.slotsInUse == 0
}

package optimize

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrStageReleased is returned when a stage is released more than once.
var ErrStageReleased = errors.New("optimize: stage already released")

// Fields of the innermost axis of the history array.
const (
	HLCHigh = iota
	HLCLow
	HLCClose
)

// sharedRegion is one anonymous shared mapping, allocated outside the Go
// heap and released explicitly with munmap.
type sharedRegion struct {
	buf []byte
}

func newSharedRegion(size int) (*sharedRegion, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("failed to map %d bytes: %w", size, err)
	}
	return &sharedRegion{buf: buf}, nil
}

func (r *sharedRegion) release() error {
	if r.buf == nil {
		return nil
	}
	buf := r.buf
	r.buf = nil
	return unix.Munmap(buf)
}

// HLCArray is a read-only view over the staged price history: steps x coins
// x (high, low, close), flattened row-major.
type HLCArray struct {
	region *sharedRegion
	steps  int
	coins  int
}

// Steps returns the number of time steps.
func (h *HLCArray) Steps() int { return h.steps }

// Coins returns the number of coins.
func (h *HLCArray) Coins() int { return h.coins }

// Values returns the flat backing slice, nil after release.
func (h *HLCArray) Values() []float64 {
	if h.region.buf == nil {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&h.region.buf[0])), len(h.region.buf)/8)
}

// At returns one cell; field is HLCHigh, HLCLow or HLCClose.
func (h *HLCArray) At(step, coin, field int) float64 {
	return h.Values()[(step*h.coins+coin)*3+field]
}

// PreferenceArray is a read-only view over the staged coin-preference
// matrix: steps x slots of coin indices, flattened row-major.
type PreferenceArray struct {
	region *sharedRegion
	steps  int
	slots  int
}

// Steps returns the number of time steps.
func (p *PreferenceArray) Steps() int { return p.steps }

// Slots returns the number of preference slots per step.
func (p *PreferenceArray) Slots() int { return p.slots }

// Values returns the flat backing slice, nil after release.
func (p *PreferenceArray) Values() []int32 {
	if p.region.buf == nil {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&p.region.buf[0])), len(p.region.buf)/4)
}

// At returns the coin index preferred at the given step and slot.
func (p *PreferenceArray) At(step, slot int) int32 {
	return p.Values()[step*p.slots+slot]
}

// Stage owns the shared regions backing the two large read-only arrays every
// worker reads during evaluation. The source slices are copied in once at
// construction; afterwards workers share the same physical memory and never
// copy. The stage is the sole release authority: Release unmaps both
// regions exactly once, and a second call returns ErrStageReleased. Views
// must not be used after release.
type Stage struct {
	mu       sync.Mutex
	hlcs     *HLCArray
	prefs    *PreferenceArray
	released bool
}

// NewStage copies the history and preference arrays into freshly mapped
// shared regions. hlcs must hold steps*coins*3 values and prefs steps*slots.
func NewStage(hlcs []float64, steps, coins int, prefs []int32, slots int) (*Stage, error) {
	if steps <= 0 || coins <= 0 || slots <= 0 {
		return nil, fmt.Errorf("stage: invalid shape steps=%d coins=%d slots=%d", steps, coins, slots)
	}
	if len(hlcs) != steps*coins*3 {
		return nil, fmt.Errorf("stage: history length %d does not match %dx%dx3", len(hlcs), steps, coins)
	}
	if len(prefs) != steps*slots {
		return nil, fmt.Errorf("stage: preference length %d does not match %dx%d", len(prefs), steps, slots)
	}

	hlcRegion, err := newSharedRegion(len(hlcs) * 8)
	if err != nil {
		return nil, fmt.Errorf("failed to stage history array: %w", err)
	}
	prefRegion, err := newSharedRegion(len(prefs) * 4)
	if err != nil {
		_ = hlcRegion.release()
		return nil, fmt.Errorf("failed to stage preference array: %w", err)
	}

	s := &Stage{
		hlcs:  &HLCArray{region: hlcRegion, steps: steps, coins: coins},
		prefs: &PreferenceArray{region: prefRegion, steps: steps, slots: slots},
	}
	copy(s.hlcs.Values(), hlcs)
	copy(s.prefs.Values(), prefs)
	return s, nil
}

// HLCs returns the staged history view.
func (s *Stage) HLCs() *HLCArray { return s.hlcs }

// Preferred returns the staged preference view.
func (s *Stage) Preferred() *PreferenceArray { return s.prefs }

// Release unmaps both regions. The first call performs the release and
// returns any unmap error; every later call returns ErrStageReleased.
func (s *Stage) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrStageReleased
	}
	s.released = true

	err := s.hlcs.region.release()
	if perr := s.prefs.region.release(); err == nil {
		err = perr
	}
	if err != nil {
		return fmt.Errorf("failed to release stage: %w", err)
	}
	return nil
}

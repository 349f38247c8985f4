package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/monkey/engine/containers"
	"github.com/spaghettifunk/monkey/engine/core"
)

type FenceState int

const (
	// FenceUnsignaled fences may be handed to a submission.
	FenceUnsignaled FenceState = iota
	// FencePending fences belong to a submission the host has not yet
	// observed as complete.
	FencePending
	FenceSignaled
)

func (s FenceState) String() string {
	switch s {
	case FenceUnsignaled:
		return "unsignaled"
	case FencePending:
		return "pending"
	case FenceSignaled:
		return "signaled"
	}
	return "unknown"
}

type FenceStatus int

const (
	FenceCompleted FenceStatus = iota
	FenceTimedOut
)

func (s FenceStatus) String() string {
	if s == FenceCompleted {
		return "completed"
	}
	return "timed out"
}

// Fence wraps one native fence together with the state the host knows about.
type Fence struct {
	ID     uuid.UUID
	native DeviceFence
	state  FenceState
	owner  int
}

func (f *Fence) State() FenceState {
	return f.state
}

// Owner is the frame slot that submitted the fence, or -1.
func (f *Fence) Owner() int {
	return f.owner
}

// Native is the device fence handed to queue submissions.
func (f *Fence) Native() DeviceFence {
	return f.native
}

func (f *Fence) IsSignaled() bool {
	return f.state == FenceSignaled
}

type FenceManagerConfig struct {
	// PoolSize bounds the number of released fences kept for reuse.
	PoolSize int
	// Strict panics on protocol violations instead of returning them.
	Strict bool
}

// FenceManager hands out fences and takes them back. A fence is owned either
// by the free pool or by exactly one caller.
type FenceManager struct {
	device    Device
	free      *containers.RingQueue[*Fence]
	used      map[uuid.UUID]*Fence
	strict    bool
	destroyed bool
}

func NewFenceManager(device Device, config FenceManagerConfig) *FenceManager {
	if config.PoolSize <= 0 {
		config.PoolSize = 8
	}
	return &FenceManager{
		device: device,
		free:   containers.NewRingQueue[*Fence](config.PoolSize),
		used:   make(map[uuid.UUID]*Fence),
		strict: config.Strict,
	}
}

func (fm *FenceManager) invalid(format string, args ...interface{}) error {
	err := errors.Wrapf(core.ErrInvalidState, format, args...)
	if fm.strict {
		panic(err)
	}
	return err
}

// CreateFence returns a fence in the requested state, reusing a pooled one
// when possible.
func (fm *FenceManager) CreateFence(startSignaled bool) (*Fence, error) {
	if fm.destroyed {
		return nil, fm.invalid("create fence on a destroyed fence manager")
	}

	if !fm.free.IsEmpty() {
		f, _ := fm.free.Dequeue()
		switch {
		case startSignaled && f.state == FenceSignaled, !startSignaled && f.state == FenceUnsignaled:
			return fm.handOut(f), nil
		case !startSignaled:
			if err := f.native.Reset(); err != nil {
				f.native.Destroy()
				return nil, errors.Mark(errors.Wrapf(err, "reset pooled fence %s", f.ID), core.ErrResourceExhausted)
			}
			f.state = FenceUnsignaled
			return fm.handOut(f), nil
		default:
			// the host cannot signal a fence, a fresh one is needed
			f.native.Destroy()
		}
	}

	native, err := fm.device.CreateFence(startSignaled)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create fence"), core.ErrResourceExhausted)
	}
	f := &Fence{
		ID:     uuid.New(),
		native: native,
		state:  FenceUnsignaled,
	}
	if startSignaled {
		f.state = FenceSignaled
	}
	return fm.handOut(f), nil
}

func (fm *FenceManager) handOut(f *Fence) *Fence {
	f.owner = -1
	fm.used[f.ID] = f
	return f
}

func (fm *FenceManager) checkOwned(f *Fence) error {
	if f == nil {
		return fm.invalid("nil fence")
	}
	if _, ok := fm.used[f.ID]; !ok {
		return fm.invalid("fence %s is not held by a caller", f.ID)
	}
	return nil
}

// WaitForFence blocks until the fence signals or the timeout elapses. Waiting
// on a signaled fence returns immediately.
func (fm *FenceManager) WaitForFence(f *Fence, timeoutNs uint64) (FenceStatus, error) {
	if err := fm.checkOwned(f); err != nil {
		return FenceTimedOut, err
	}
	switch f.state {
	case FenceSignaled:
		return FenceCompleted, nil
	case FenceUnsignaled:
		if timeoutNs == InfiniteTimeout {
			return FenceTimedOut, fm.invalid("infinite wait on fence %s that was never submitted", f.ID)
		}
	}

	signaled, err := f.native.Wait(timeoutNs)
	if err != nil {
		return FenceTimedOut, errors.Mark(errors.Wrapf(err, "wait on fence %s", f.ID), core.ErrDeviceLost)
	}
	if !signaled {
		return FenceTimedOut, nil
	}
	f.state = FenceSignaled
	return FenceCompleted, nil
}

// ResetFence returns a signaled fence to the unsignaled state. Resetting a
// fence that has not been observed complete is a protocol violation.
func (fm *FenceManager) ResetFence(f *Fence) error {
	if err := fm.checkOwned(f); err != nil {
		return err
	}
	switch f.state {
	case FencePending:
		return fm.invalid("reset of pending fence %s owned by slot %d", f.ID, f.owner)
	case FenceSignaled:
		if err := f.native.Reset(); err != nil {
			return errors.Mark(errors.Wrapf(err, "reset fence %s", f.ID), core.ErrDeviceLost)
		}
		f.state = FenceUnsignaled
		f.owner = -1
	}
	return nil
}

// Submitted records that the fence now guards the work submitted by owner.
func (fm *FenceManager) Submitted(f *Fence, owner int) error {
	if err := fm.checkOwned(f); err != nil {
		return err
	}
	if f.state != FenceUnsignaled {
		return fm.invalid("submit with fence %s in state %s", f.ID, f.state)
	}
	f.state = FencePending
	f.owner = owner
	return nil
}

// ReleaseFence gives a fence back to the pool. Pending fences cannot be
// released.
func (fm *FenceManager) ReleaseFence(f *Fence) error {
	if err := fm.checkOwned(f); err != nil {
		return err
	}
	if f.state == FencePending {
		return fm.invalid("release of pending fence %s owned by slot %d", f.ID, f.owner)
	}
	delete(fm.used, f.ID)
	f.owner = -1
	if fm.destroyed || fm.free.Enqueue(f) != nil {
		f.native.Destroy()
	}
	return nil
}

// WaitAndReleaseFence waits for the fence, then releases it. A fence that was
// never submitted is released without waiting.
func (fm *FenceManager) WaitAndReleaseFence(f *Fence, timeoutNs uint64) error {
	if err := fm.checkOwned(f); err != nil {
		return err
	}
	if f.state != FenceUnsignaled {
		status, err := fm.WaitForFence(f, timeoutNs)
		if err != nil {
			return err
		}
		if status == FenceTimedOut {
			return errors.Wrapf(core.ErrTimedOut, "fence %s owned by slot %d", f.ID, f.owner)
		}
	}
	return fm.ReleaseFence(f)
}

// Outstanding is the number of fences held by callers.
func (fm *FenceManager) Outstanding() int {
	return len(fm.used)
}

// Pooled is the number of fences waiting for reuse.
func (fm *FenceManager) Pooled() int {
	return fm.free.Len()
}

// Destroy frees every fence the manager knows about. Pending fences are left
// alive and reported, destroying them could free memory the device still
// references.
func (fm *FenceManager) Destroy() error {
	if fm.destroyed {
		return nil
	}
	fm.destroyed = true

	for !fm.free.IsEmpty() {
		f, _ := fm.free.Dequeue()
		f.native.Destroy()
	}

	pending := 0
	for id, f := range fm.used {
		if f.state == FencePending {
			pending++
			continue
		}
		f.native.Destroy()
		delete(fm.used, id)
	}
	if pending > 0 {
		return errors.Wrapf(core.ErrInvalidState, "%d fences still pending at destroy", pending)
	}
	return nil
}

package core

import (
	"fmt"
	"sync"
)

// ResourceRequest asks the accounter for a slice of host resources.
type ResourceRequest struct {
	CPUCores int `json:"cpu_cores"`
	MemoryMB int `json:"memory_mb"`
	GPUs     int `json:"gpus"`
}

// Allocation is a granted reservation. Release it exactly once; extra
// releases are ignored.
type Allocation struct {
	id      uint64
	request ResourceRequest
}

// Request returns what this allocation reserved.
func (a *Allocation) Request() ResourceRequest {
	return a.request
}

// ResourceAccounter tracks cpu, memory and optional gpus. A single mutex
// guards all state; every operation is O(1) and short, so the accounter
// never sits on the hot path long enough to matter.
type ResourceAccounter struct {
	mu sync.Mutex

	total     ResourceConfig
	usedCPU   int
	usedMemMB int
	usedGPUs  int

	nextID uint64
	live   map[uint64]struct{}
}

// NewResourceAccounter creates an accounter over the configured totals.
func NewResourceAccounter(total ResourceConfig) *ResourceAccounter {
	return &ResourceAccounter{
		total: total,
		live:  make(map[uint64]struct{}),
	}
}

// Allocate reserves the requested resources atomically. Either the whole
// request is granted or nothing is; partial grants never happen.
func (r *ResourceAccounter) Allocate(req ResourceRequest) (*Allocation, error) {
	if req.CPUCores < 0 || req.MemoryMB < 0 || req.GPUs < 0 {
		return nil, fmt.Errorf("negative resource request: %w", ErrRuleViolation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.usedCPU+req.CPUCores > r.total.CPUCores ||
		r.usedMemMB+req.MemoryMB > r.total.MemoryMB ||
		r.usedGPUs+req.GPUs > r.total.GPUs {
		return nil, fmt.Errorf("allocate cpu=%d mem=%dMB gpu=%d: %w",
			req.CPUCores, req.MemoryMB, req.GPUs, ErrResourceExhausted)
	}

	r.usedCPU += req.CPUCores
	r.usedMemMB += req.MemoryMB
	r.usedGPUs += req.GPUs

	r.nextID++
	alloc := &Allocation{id: r.nextID, request: req}
	r.live[alloc.id] = struct{}{}
	return alloc, nil
}

// Release returns an allocation's resources. Idempotent: releasing the
// same allocation twice is a no-op.
func (r *ResourceAccounter) Release(alloc *Allocation) {
	if alloc == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[alloc.id]; !ok {
		return
	}
	delete(r.live, alloc.id)

	r.usedCPU -= alloc.request.CPUCores
	r.usedMemMB -= alloc.request.MemoryMB
	r.usedGPUs -= alloc.request.GPUs
}

// Usage reports current consumption.
func (r *ResourceAccounter) Usage() (used, total ResourceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ResourceConfig{
		CPUCores: r.usedCPU,
		MemoryMB: r.usedMemMB,
		GPUs:     r.usedGPUs,
	}, r.total
}

// LiveAllocations reports how many allocations are outstanding.
func (r *ResourceAccounter) LiveAllocations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

/*
 * miniker - Process control blocks and the running-process table.
 *
 * Copyright (c) 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a
 * copy of this software and associated documentation files (the "Software"),
 * to deal in the Software without restriction, including without limitation
 * the rights to use, copy, modify, merge, publish, distribute, sublicense,
 * and/or sell copies of the Software, and to permit persons to whom the
 * Software is furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
 * RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 */

// Package process implements the process control block and the fixed-size
// table of live processes the scheduler and syscall layer operate on. A
// goroutine stands in for a running user program; the PCB holds a resume
// channel and a done channel in place of the saved kernel stack
// pointer/base pair a real context switch would carry.
package process

import (
	"errors"
	"sync"

	"github.com/aharrow/miniker/device"
)

// ID identifies a process slot. 0 is the sentinel "no process"; live
// processes occupy [1, MaxProcesses].
type ID int

// MaxProcesses is the largest valid process id.
const MaxProcesses = 7

// NumFDs is the fixed size of every PCB's file-descriptor table.
const NumFDs = 8

// ArgBufSize is the size of the per-process argument buffer.
const ArgBufSize = 100

var (
	// ErrNoFreeSlot is returned by Alloc when every process slot is in use.
	ErrNoFreeSlot = errors.New("process: no free slot")
	// ErrBadID is returned for an id outside [1, MaxProcesses].
	ErrBadID = errors.New("process: id out of range")
	// ErrNotLive is returned when an operation targets a slot with no
	// live process.
	ErrNotLive = errors.New("process: not live")
)

// FD is one entry of a PCB's file-descriptor table.
type FD struct {
	Ops      device.Ops
	Inode    uint32
	Offset   uint32
	InUse    bool
	Filename string
}

// PCB is a process control block: one per live process.
type PCB struct {
	mu sync.Mutex

	ID       ID
	ParentID ID
	Terminal int
	HasChild bool
	live     bool

	FDs    [NumFDs]FD
	ArgBuf [ArgBufSize]byte
	ArgLen int

	// Resume is signaled by the scheduler to let this process's goroutine
	// proceed; Done carries the exit status when the goroutine halts. Done
	// is an int rather than the status byte's native uint8 so a caller can
	// report 256 for "died by exception," a value halt(status) itself can
	// never produce.
	Resume chan struct{}
	Done   chan int
}

func newPCB(id ID) *PCB {
	return &PCB{
		ID:     id,
		Resume: make(chan struct{}, 1),
		Done:   make(chan int, 1),
	}
}

// Live reports whether the PCB currently holds a running process.
func (p *PCB) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// OpenFD installs ops/inode at the lowest free descriptor in [2,7] and
// returns its number, or -1 if the table is full.
func (p *PCB) OpenFD(ops device.Ops, inode uint32, filename string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 2; i < NumFDs; i++ {
		if !p.FDs[i].InUse {
			p.FDs[i] = FD{Ops: ops, Inode: inode, InUse: true, Filename: filename}
			return i
		}
	}
	return -1
}

// BindFD installs ops at a specific descriptor number, used for stdin/
// stdout at process creation.
func (p *PCB) BindFD(fd int, ops device.Ops, filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FDs[fd] = FD{Ops: ops, InUse: true, Filename: filename}
}

// CloseFD frees descriptor fd, returning an error if it is out of range
// or already free.
func (p *PCB) CloseFD(fd int) error {
	if fd < 2 || fd >= NumFDs {
		return device.ErrBadFD
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.FDs[fd].InUse {
		return device.ErrFDFree
	}
	ops := p.FDs[fd].Ops
	p.FDs[fd] = FD{}
	if ops != nil {
		return ops.Close()
	}
	return nil
}

// FDAt returns a copy of descriptor fd's state, and whether fd is valid
// and in use.
func (p *PCB) FDAt(fd int) (FD, bool) {
	if fd < 0 || fd >= NumFDs {
		return FD{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := p.FDs[fd]
	return entry, entry.InUse
}

// SetFDOffset updates descriptor fd's byte offset after a read.
func (p *PCB) SetFDOffset(fd int, offset uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd >= 0 && fd < NumFDs {
		p.FDs[fd].Offset = offset
	}
}

// SetArgs copies args into the PCB's argument buffer, truncating to
// ArgBufSize-1 bytes to leave room for the NUL terminator getargs expects.
func (p *PCB) SetArgs(args string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(args)
	if n > ArgBufSize-1 {
		n = ArgBufSize - 1
	}
	copy(p.ArgBuf[:], args[:n])
	p.ArgBuf[n] = 0
	p.ArgLen = n
}

// Args returns the stored argument buffer as a Go string (without its
// NUL terminator).
func (p *PCB) Args() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.ArgBuf[:p.ArgLen])
}

// Table is the fixed-size process table: one slot per id in
// [0, MaxProcesses], plus the running-set bitmap.
type Table struct {
	mu      sync.Mutex
	slots   [MaxProcesses + 1]*PCB
	running RunningSet
}

// RunningSet is a bitmap with bit i set iff process id i is live. Bit 0
// is always set (id 0, the sentinel).
type RunningSet uint8

// Set reports whether bit id is set.
func (r RunningSet) Set(id ID) bool {
	return r&(1<<uint(id)) != 0
}

// NewTable returns an empty table with the sentinel bit (0) always set.
func NewTable() *Table {
	return &Table{running: 1 << 0}
}

// Alloc finds the lowest free slot in [1, MaxProcesses], marks it live,
// and returns its PCB.
func (t *Table) Alloc() (*PCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := ID(1); id <= MaxProcesses; id++ {
		if !t.running.Set(id) {
			pcb := newPCB(id)
			pcb.live = true
			t.slots[id] = pcb
			t.running |= 1 << uint(id)
			return pcb, nil
		}
	}
	return nil, ErrNoFreeSlot
}

// Bind installs pcb directly at slot id and marks it live, for the boot
// sequence's hand-synthesized shells which need specific ids (1,2,3).
func (t *Table) Bind(id ID, pcb *PCB) error {
	if id < 1 || id > MaxProcesses {
		return ErrBadID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pcb.live = true
	t.slots[id] = pcb
	t.running |= 1 << uint(id)
	return nil
}

// Free clears id's live bit and removes its PCB from the table.
func (t *Table) Free(id ID) error {
	if id < 1 || id > MaxProcesses {
		return ErrBadID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running.Set(id) {
		return ErrNotLive
	}
	if pcb := t.slots[id]; pcb != nil {
		pcb.mu.Lock()
		pcb.live = false
		pcb.mu.Unlock()
	}
	t.slots[id] = nil
	t.running &^= 1 << uint(id)
	return nil
}

// Get returns id's PCB, or nil if id is not live.
func (t *Table) Get(id ID) *PCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 1 || id > MaxProcesses {
		return nil
	}
	return t.slots[id]
}

// RunningSet returns a snapshot of the running-set bitmap.
func (t *Table) RunningSet() RunningSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Snapshot returns every live PCB, in ascending id order, for the
// operator console's "show procs" command.
func (t *Table) Snapshot() []*PCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	var live []*PCB
	for id := ID(1); id <= MaxProcesses; id++ {
		if pcb := t.slots[id]; pcb != nil {
			live = append(live, pcb)
		}
	}
	return live
}

// SetHasChild updates id's has-child flag.
func (t *Table) SetHasChild(id ID, hasChild bool) {
	t.mu.Lock()
	pcb := t.slots[id]
	t.mu.Unlock()
	if pcb == nil {
		return
	}
	pcb.mu.Lock()
	pcb.HasChild = hasChild
	pcb.mu.Unlock()
}

/*
 * miniker - Per-process virtual address spaces.
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

// Package paging builds the per-process page directories described by the
// platform's address space layout: a user-visible video page table, a
// shared kernel page, and a per-process program image page. There is no
// real MMU underneath this simulator, so a directory's "CR3" is a
// synthetic value derived from the directory's own storage rather than a
// physical frame number.
package paging

import (
	"errors"
	"unsafe"
)

// MaxProcesses bounds the process-id space; slot 0 is the sentinel and is
// never assigned a directory of its own beyond the kernel's initial one.
const MaxProcesses = 7

// Virtual/physical layout constants from the platform's memory map.
const (
	entriesPerDirectory = 1024
	pageSize4K          = 4 * 1024
	pageSize4M          = 4 * 1024 * 1024

	kernelPageVirt  = 1 // entry index for the 4MiB kernel page (virtual 4MiB)
	videoTableEntry = 0 // entry index for the 4KiB video page table

	// ProgramImageEntry is virtual 128MiB / 4MiB.
	ProgramImageEntry = 32
)

// ErrBadPID is returned when a process id is outside the addressable
// directory pool.
var ErrBadPID = errors.New("paging: process id out of range")

// PTE is a single page-table entry: present/user/rw flags plus the
// physical frame number it maps to.
type PTE struct {
	Present bool
	User    bool
	Global  bool
	Frame   uintptr
}

// Table is a 4KiB page table: 1024 4KiB-page entries.
type Table struct {
	Entries [entriesPerDirectory]PTE
}

// Directory is a page directory: 1024 entries, each either a 4MiB page
// (Frame set, Table nil) or a pointer to a 4KiB page table.
type Directory struct {
	entries [entriesPerDirectory]PTE
	tables  [entriesPerDirectory]*Table
}

// CR3 returns a synthetic, stable, per-directory identifier standing in
// for the physical base address a real CR3 load would carry. Two distinct
// directories never compare equal.
func (d *Directory) CR3() uintptr {
	return uintptr(unsafe.Pointer(d))
}

// Entry returns the raw directory entry at index, and the 4KiB table it
// points to, if any.
func (d *Directory) Entry(index int) (PTE, *Table) {
	return d.entries[index], d.tables[index]
}

// Pool owns the kernel's initial directory plus one directory per process
// slot, mirroring the fixed-size directory array the platform keeps.
type Pool struct {
	kernel    Directory
	processes [MaxProcesses + 1]Directory
}

// NewPool allocates an empty pool. Call Init before using the kernel
// directory, and SetupNewTask before switching any process into its own.
func NewPool() *Pool {
	return &Pool{}
}

// Kernel returns the kernel's initial directory.
func (p *Pool) Kernel() *Directory {
	return &p.kernel
}

// Directory returns the directory for process slot pid.
func (p *Pool) Directory(pid int) (*Directory, error) {
	if pid < 0 || pid > MaxProcesses {
		return nil, ErrBadPID
	}
	return &p.processes[pid], nil
}

// Init installs the kernel's initial directory: a 4KiB-paged first 4MiB
// with the null page absent, a 4MiB global kernel page at virtual 4MiB,
// and every other entry absent.
func (p *Pool) Init() {
	d := &p.kernel
	*d = Directory{}

	table := &Table{}
	// Null page (virtual 0) stays absent; the rest of the first 4MiB is
	// left absent too since the kernel's initial directory has no user
	// mappings to establish yet.
	d.tables[videoTableEntry] = table
	d.entries[videoTableEntry] = PTE{Present: true, User: false}

	d.entries[kernelPageVirt] = PTE{Present: true, Global: true, Frame: pageSize4M}
}

// SetupNewTask builds the directory for process slot pid: entry 0's page
// table marks the video frames user-accessible, entry 1 is the shared
// kernel page, and the program-image entry maps virtual 128MiB to the
// physical frame dedicated to pid, (pid+1)*4MiB.
func (p *Pool) SetupNewTask(pid int, videoFrame uintptr) (*Directory, error) {
	if pid < 0 || pid > MaxProcesses {
		return nil, ErrBadPID
	}
	d := &p.processes[pid]
	*d = Directory{}

	table := &Table{}
	videoPageIndex := videoFrame / pageSize4K
	table.Entries[videoPageIndex] = PTE{Present: true, User: true, Frame: videoFrame}
	d.tables[videoTableEntry] = table
	d.entries[videoTableEntry] = PTE{Present: true, User: true}

	d.entries[kernelPageVirt] = PTE{Present: true, Global: true, Frame: pageSize4M}

	programFrame := uintptr(pid+1) * pageSize4M
	d.entries[ProgramImageEntry] = PTE{Present: true, User: true, Frame: programFrame}

	return d, nil
}

// ProgramFrame returns the physical frame dedicated to pid's program
// image, the same value SetupNewTask installs at ProgramImageEntry.
func ProgramFrame(pid int) uintptr {
	return uintptr(pid+1) * pageSize4M
}

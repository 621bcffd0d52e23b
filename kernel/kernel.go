/*
 * miniker - Kernel aggregate: boot sequence and syscall dispatch.
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

// Package kernel wires the process, scheduler, paging, file system,
// console, and interrupt-controller packages into one bootable system and
// implements the ten-call syscall surface on top of them. A process is a
// goroutine running a Program; halt and execute are expressed as panic/
// recover and a blocking channel receive rather than stack-pointer
// juggling, since there is no real kernel stack underneath this simulator.
package kernel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aharrow/miniker/console"
	"github.com/aharrow/miniker/device"
	"github.com/aharrow/miniker/fs"
	"github.com/aharrow/miniker/irq"
	"github.com/aharrow/miniker/paging"
	"github.com/aharrow/miniker/process"
	"github.com/aharrow/miniker/rtc"
	"github.com/aharrow/miniker/sched"
	"github.com/aharrow/miniker/timer"
)

// entryPointOffset is the file offset of a program image's 4-byte
// little-endian entry point, per the platform's ELF-like loader contract.
const entryPointOffset = 24

var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// videoPageSize is the page granularity of the per-terminal video frame
// paging.SetupNewTask maps user-accessible.
const videoPageSize = 4096

// videoBaseAddr is the physical base of text-mode video memory; each
// terminal gets its own page starting here, mirroring the platform's
// single 0xB8000 frame generalized to three independent back buffers.
const videoBaseAddr = 0xB8000

func videoFrameForTerminal(term int) uintptr {
	return uintptr(videoBaseAddr + term*videoPageSize)
}

// ErrBadCommand is returned by Execute for an empty or whitespace-only
// command line.
var ErrBadCommand = errors.New("kernel: empty command")

// Program is a builtin binary: a goroutine body standing in for a user
// program's compiled machine code. It runs to completion (a normal
// return means exit status 0) or calls Kernel.Halt to unwind early with a
// specific status.
type Program func(k *Kernel, pcb *process.PCB)

// haltSignal unwinds a Program's goroutine back to runProcess via panic/
// recover, the Go-native equivalent of halt() never returning to its
// caller.
type haltSignal struct{ status int }

// Kernel is the fully wired system: one of everything the boot sequence
// needs, plus the builtin program registry Execute dispatches against.
type Kernel struct {
	FS      *fs.Image
	Paging  *paging.Pool
	Table   *process.Table
	Sched   *sched.Scheduler
	Console *console.Console
	IRQ     *irq.Controller
	PIT     *timer.PIT
	RTC     *rtc.Clock

	programs map[string]Program
}

// New returns a Kernel over fsImage with the builtin program set
// registered, ready for Boot.
func New(fsImage *fs.Image) *Kernel {
	k := &Kernel{
		FS:       fsImage,
		Paging:   paging.NewPool(),
		Table:    process.NewTable(),
		Console:  console.New(),
		IRQ:      irq.NewController(),
		programs: make(map[string]Program),
	}
	k.Sched = sched.New(k.Table)
	registerBuiltins(k)
	return k
}

// BootOptions carries the boot-time settings a configuration file can
// override: the PIT and RTC tick rates, and which builtin program to IPL
// on each terminal. A zero value reproduces the hardware defaults: the
// PIT's native ~33Hz period, the RTC's default frequency, and "shell" on
// every terminal.
type BootOptions struct {
	PITHz    int
	RTCHz    int
	Programs []string
}

// Boot performs the platform's bootup() sequence: initialize paging and
// the interrupt lines, start the PIT and RTC, synthesize the boot shells
// on terminals 0-2, select process 1 as current, and start the
// scheduler.
func (k *Kernel) Boot(opts BootOptions) error {
	k.Paging.Init()
	k.IRQ.EnableIRQ(irq.PIT)
	k.IRQ.EnableIRQ(irq.Keyboard)
	k.IRQ.EnableIRQ(irq.RTC)

	k.PIT = timer.NewPIT()
	if opts.PITHz > 0 {
		if err := k.PIT.SetPeriod(time.Second / time.Duration(opts.PITHz)); err != nil {
			return fmt.Errorf("kernel: boot: %w", err)
		}
	}

	k.RTC = rtc.NewClock()
	if opts.RTCHz > 0 {
		if err := k.RTC.SetFrequency(opts.RTCHz); err != nil {
			return fmt.Errorf("kernel: boot: %w", err)
		}
	}

	go func() {
		for range k.RTC.Ticks() {
			if !k.IRQ.Enabled(irq.RTC) {
				continue
			}
			k.IRQ.SendEOI(irq.RTC)
			k.Console.Mirror()
		}
	}()
	k.RTC.Start()

	for term := 0; term < console.NumTerminals; term++ {
		name := "shell"
		if term < len(opts.Programs) && opts.Programs[term] != "" {
			name = opts.Programs[term]
		}
		if err := k.bootProgramOn(term, name); err != nil {
			return fmt.Errorf("kernel: boot: %w", err)
		}
	}

	k.Sched.SetCurrent(1)
	k.Sched.Run(newPITRelay(k.PIT, k.IRQ))
	k.PIT.Start()

	slog.Info("kernel booted", "shells", console.NumTerminals)
	return nil
}

// pitRelay forwards PIT ticks to the scheduler only while the PIT's line
// is unmasked, sending the EOI a real timer interrupt handler would send
// before returning. A masked tick is dropped rather than queued.
type pitRelay struct {
	out chan struct{}
}

func newPITRelay(pit *timer.PIT, c *irq.Controller) *pitRelay {
	r := &pitRelay{out: make(chan struct{})}
	go func() {
		for range pit.Ticks() {
			if !c.Enabled(irq.PIT) {
				continue
			}
			c.SendEOI(irq.PIT)
			r.out <- struct{}{}
		}
	}()
	return r
}

func (r *pitRelay) Ticks() <-chan struct{} {
	return r.out
}

// FeedKey delivers one scancode from the host keyboard to the active
// terminal, the production entry point for the keyboard IRQ line. A
// masked line drops the scancode instead of queuing it.
func (k *Kernel) FeedKey(scancode byte) {
	if !k.IRQ.Enabled(irq.Keyboard) {
		return
	}
	k.IRQ.SendEOI(irq.Keyboard)
	k.Console.Feed(scancode)
}

// bootProgramOn allocates a fresh root process (parent id 0) bound to
// term, running name, and starts its goroutine. It is the common core of
// Boot's per-terminal loop and the operator console's ipl command.
func (k *Kernel) bootProgramOn(term int, name string) error {
	prog, ok := k.programs[name]
	if !ok {
		return fmt.Errorf("kernel: unknown boot program %q: %w", name, device.ErrNotFound)
	}

	pcb, err := k.Table.Alloc()
	if err != nil {
		return err
	}
	pcb.Terminal = term

	tf := console.NewTerminalFile(k.Console, term)
	pcb.BindFD(0, tf, "stdin")
	pcb.BindFD(1, tf, "stdout")

	if _, err := k.Paging.SetupNewTask(int(pcb.ID), videoFrameForTerminal(term)); err != nil {
		_ = k.Table.Free(pcb.ID)
		return err
	}

	go k.runProcess(pcb, prog)
	return nil
}

// IPL force-launches name as a fresh root process on term, the operator
// console's equivalent of a hardware initial-program-load. It does not
// check whether term already has a process bound before starting a new
// one on it.
func (k *Kernel) IPL(term int, name string) error {
	if term < 0 || term >= console.NumTerminals {
		return device.ErrBadArg
	}
	if name == "" {
		name = "shell"
	}
	return k.bootProgramOn(term, name)
}

// Shutdown stops the scheduler and the device goroutines it and Boot
// started. It does not tear down process goroutines blocked mid-syscall.
func (k *Kernel) Shutdown() {
	k.Sched.Stop()
	if k.PIT != nil {
		k.PIT.Shutdown()
	}
	if k.RTC != nil {
		k.RTC.Shutdown()
	}
}

// Halt implements the halt(status) syscall. It never returns to the
// caller: control unwinds to runProcess, which either tears the process
// down (reporting status to whichever Execute call is blocked waiting for
// it) or, for a root shell, restarts shell in place.
func (k *Kernel) Halt(pcb *process.PCB, status uint8) {
	panic(haltSignal{status: int(status)})
}

// runProcess is the goroutine body for every process: it executes prog
// to completion or to a Halt panic, then either restarts shell (root
// shells never exit) or tears the PCB down and reports the final status.
func (k *Kernel) runProcess(pcb *process.PCB, prog Program) {
	logger := slog.With("pid", pcb.ID, "terminal", pcb.Terminal)
	logger.Debug("process started")
	status := k.execProgram(pcb, prog, logger)
	logger.Debug("process finished", "status", status)
	k.finishProcess(pcb, status)
}

func (k *Kernel) execProgram(pcb *process.PCB, prog Program, logger *slog.Logger) (status int) {
	defer func() {
		if r := recover(); r == nil {
			return
		} else if hs, ok := r.(haltSignal); ok {
			status = hs.status
		} else {
			logger.Error("program terminated by exception", "panic", r)
			status = 256
		}
	}()
	prog(k, pcb)
	return 0
}

// finishProcess applies halt's "silly rabbit" special case: a process
// whose parent id is 0 is a root shell, and halting it just re-executes
// shell in the same PCB/goroutine rather than tearing anything down,
// since that PCB's page directory and kernel-stack stand-in are still
// intact.
func (k *Kernel) finishProcess(pcb *process.PCB, status int) {
	logger := slog.With("pid", pcb.ID, "terminal", pcb.Terminal)
	for pcb.ParentID == 0 {
		status = k.execProgram(pcb, k.programs["shell"], logger)
	}
	k.Table.SetHasChild(pcb.ParentID, false)
	if err := k.Table.Free(pcb.ID); err != nil {
		slog.Warn("halt: free already-free process", "pid", pcb.ID, "err", err)
	}
	pcb.Done <- status
}

// splitCommand implements execute()'s fname/argbuf split: the first run
// of non-space bytes, capped at 32, is the program name; one separating
// space is consumed; everything after is the unparsed argument buffer.
func splitCommand(cmd string) (fname, args string, err error) {
	cmd = strings.TrimLeft(cmd, " ")
	if cmd == "" {
		return "", "", ErrBadCommand
	}
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		fname, args = cmd[:i], cmd[i+1:]
	} else {
		fname = cmd
	}
	if len(fname) > 32 {
		fname = fname[:32]
	}
	return fname, args, nil
}

// Execute implements the execute(cmd) syscall. caller is the PCB
// currently holding the CPU; the new process's parent id is taken from
// caller.ID, never passed in separately, the same way the platform's
// execute() recovers the calling process through stack-pointer alignment
// rather than through a parameter.
func (k *Kernel) Execute(caller *process.PCB, cmd string) (int, error) {
	fname, args, err := splitCommand(cmd)
	if err != nil {
		return -1, err
	}

	dentry, err := k.FS.ReadDentryByName(fname)
	if err != nil {
		return -1, fmt.Errorf("kernel: execute %q: %w", fname, err)
	}

	var header [entryPointOffset + 4]byte
	if _, err := k.FS.ReadData(dentry.Inode, 0, header[:], uint32(len(header))); err != nil {
		return -1, fmt.Errorf("kernel: execute %q: %w", fname, err)
	}
	if !bytes.Equal(header[:4], elfMagic[:]) {
		return -1, device.ErrBadMagic
	}
	entry := binary.LittleEndian.Uint32(header[entryPointOffset:])

	prog, ok := k.programs[fname]
	if !ok {
		return -1, fmt.Errorf("kernel: execute %q: %w", fname, device.ErrNotFound)
	}

	pcb, err := k.Table.Alloc()
	if err != nil {
		return -1, err
	}
	pcb.ParentID = caller.ID
	pcb.Terminal = caller.Terminal
	pcb.SetArgs(args)
	k.Table.SetHasChild(caller.ID, true)

	term := console.NewTerminalFile(k.Console, pcb.Terminal)
	pcb.BindFD(0, term, "stdin")
	pcb.BindFD(1, term, "stdout")

	if _, err := k.Paging.SetupNewTask(int(pcb.ID), videoFrameForTerminal(pcb.Terminal)); err != nil {
		k.Table.SetHasChild(caller.ID, false)
		_ = k.Table.Free(pcb.ID)
		return -1, err
	}

	slog.Debug("execute", "pid", pcb.ID, "name", fname, "entry", entry, "parent", pcb.ParentID, "args", args)

	go k.runProcess(pcb, prog)

	status := <-pcb.Done
	return status, nil
}

// Read implements the read(fd,buf,n) syscall, dispatching through fd's
// operations vector and advancing its stored offset by the byte count
// returned.
func (k *Kernel) Read(pcb *process.PCB, fd int, buf []byte) (int, error) {
	entry, ok := pcb.FDAt(fd)
	if !ok || entry.Ops == nil {
		return -1, device.ErrBadFD
	}
	n, err := entry.Ops.Read(buf, entry.Offset)
	if err != nil {
		return -1, err
	}
	pcb.SetFDOffset(fd, entry.Offset+uint32(n))
	return n, nil
}

// Write implements the write(fd,buf,n) syscall. Unlike read, it does not
// update the fd's stored offset.
func (k *Kernel) Write(pcb *process.PCB, fd int, buf []byte) (int, error) {
	entry, ok := pcb.FDAt(fd)
	if !ok || entry.Ops == nil {
		return -1, device.ErrBadFD
	}
	return entry.Ops.Write(buf)
}

// Open implements the open(name) syscall: dentry lookup, type-based
// operations-vector selection, lowest free fd in [2,7]. "stdin" and
// "stdout" are special-cased to (re)install fd 0/1 against the caller's
// own terminal rather than going through the dentry table, the same way
// bootProgramOn binds them at process creation.
func (k *Kernel) Open(pcb *process.PCB, name string) (int, error) {
	if name == "stdin" || name == "stdout" {
		tf := console.NewTerminalFile(k.Console, pcb.Terminal)
		fd := 0
		if name == "stdout" {
			fd = 1
		}
		pcb.BindFD(fd, tf, name)
		return fd, nil
	}

	dentry, err := k.FS.ReadDentryByName(name)
	if err != nil {
		return -1, device.ErrNotFound
	}

	var ops device.Ops
	switch dentry.Type {
	case fs.TypeRTC:
		ops = newRTCFile(k.RTC)
	case fs.TypeDirectory:
		ops = newDirFile(k.FS)
	case fs.TypeRegular:
		ops = newRegularFile(k.FS, dentry.Inode)
	default:
		return -1, device.ErrBadArg
	}

	fd := pcb.OpenFD(ops, dentry.Inode, name)
	if fd < 0 {
		return -1, device.ErrTableFull
	}
	return fd, nil
}

// Close implements the close(fd) syscall.
func (k *Kernel) Close(pcb *process.PCB, fd int) error {
	return pcb.CloseFD(fd)
}

// GetArgs implements the getargs(buf,n) syscall: fails if the stored
// argument buffer (plus its NUL terminator) would not fit in buf.
func (k *Kernel) GetArgs(pcb *process.PCB, buf []byte) (int, error) {
	args := pcb.Args()
	if len(args)+1 > len(buf) {
		return -1, device.ErrBadArg
	}
	n := copy(buf, args)
	buf[n] = 0
	return n, nil
}

// vidmapBase/vidmapLimit bound the user virtual range vidmap's pointer
// argument must fall within: [128MiB, 132MiB).
const (
	vidmapBase  = 128 * 1024 * 1024
	vidmapLimit = vidmapBase + 4*1024*1024
)

// Vidmap implements the vidmap(slot) syscall: addr must point into the
// caller's program-image region; the return value is the physical
// address of the caller's own terminal's video back buffer.
func (k *Kernel) Vidmap(pcb *process.PCB, addr uintptr) (uintptr, error) {
	if addr < vidmapBase || addr >= vidmapLimit {
		return 0, device.ErrBadArg
	}
	return videoFrameForTerminal(pcb.Terminal), nil
}

// SetHandler implements the set_handler syscall. Real signal delivery is
// out of scope; this ignores its arguments and always returns 0.
func (k *Kernel) SetHandler(pcb *process.PCB, signum int, handlerAddr uintptr) int {
	return 0
}

// Sigreturn implements the sigreturn syscall stub.
func (k *Kernel) Sigreturn(pcb *process.PCB) int {
	return 0
}

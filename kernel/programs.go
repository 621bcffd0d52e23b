/*
 * miniker - Builtin user programs.
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

package kernel

import (
	"fmt"
	"strings"

	"github.com/aharrow/miniker/process"
)

// registerBuiltins installs the small set of programs this simulator ships
// in place of compiled ELF binaries: a shell, and a handful of programs a
// shell session can execute.
func registerBuiltins(k *Kernel) {
	k.programs["shell"] = shellProgram
	k.programs["hello"] = helloProgram
	k.programs["cat"] = catProgram
	k.programs["counter"] = counterProgram
	k.programs["ls"] = lsProgram
}

// shellProgram prompts on its own terminal, reads one line at a time, and
// hands non-empty lines to execute. "exit" halts with status 0; a shell
// running as a root process (parent id 0) never actually leaves this
// loop, since halting it just restarts shellProgram in place.
func shellProgram(k *Kernel, pcb *process.PCB) {
	buf := make([]byte, process.ArgBufSize+64)
	for {
		k.Write(pcb, 1, []byte("391OS> "))

		n, err := k.Read(pcb, 0, buf)
		if err != nil {
			continue
		}
		line := strings.TrimRight(string(buf[:n]), "\x00\r\n")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			k.Halt(pcb, 0)
		}

		status, err := k.Execute(pcb, line)
		if err != nil {
			k.Write(pcb, 1, []byte(err.Error()+"\n"))
			continue
		}
		if status != 0 {
			k.Write(pcb, 1, []byte(fmt.Sprintf("%s: exit status %d\n", line, status)))
		}
	}
}

// helloProgram is the simplest possible child process: print and exit.
func helloProgram(k *Kernel, pcb *process.PCB) {
	k.Write(pcb, 1, []byte("hello world\n"))
	k.Halt(pcb, 0)
}

// catProgram reads its sole argument as a filename, streams it to stdout,
// and halts 0, or 1 if the name is missing or unopenable.
func catProgram(k *Kernel, pcb *process.PCB) {
	var argBuf [process.ArgBufSize]byte
	n, err := k.GetArgs(pcb, argBuf[:])
	if err != nil || n == 0 {
		k.Halt(pcb, 1)
	}
	name := string(argBuf[:n])

	fd, err := k.Open(pcb, name)
	if err != nil {
		k.Halt(pcb, 1)
	}
	defer k.Close(pcb, fd)

	chunk := make([]byte, 256)
	for {
		n, err := k.Read(pcb, fd, chunk)
		if err != nil || n == 0 {
			break
		}
		k.Write(pcb, 1, chunk[:n])
	}
	k.Halt(pcb, 0)
}

// lsProgram opens the root directory and writes one filename per line
// until the directory's stateful iterator wraps back to the start.
func lsProgram(k *Kernel, pcb *process.PCB) {
	fd, err := k.Open(pcb, ".")
	if err != nil {
		k.Halt(pcb, 1)
	}
	defer k.Close(pcb, fd)

	name := make([]byte, process.ArgBufSize)
	for {
		n, err := k.Read(pcb, fd, name)
		if err != nil || n == 0 {
			break
		}
		k.Write(pcb, 1, name[:n])
		k.Write(pcb, 1, []byte("\n"))
	}
	k.Halt(pcb, 0)
}

// counterProgram writes a line once per RTC tick for 64 ticks, then halts
// with status 42, exercising execute()'s propagation of a child's exit
// status back to its parent shell.
func counterProgram(k *Kernel, pcb *process.PCB) {
	fd, err := k.Open(pcb, "rtc")
	if err != nil {
		k.Halt(pcb, 1)
	}
	defer k.Close(pcb, fd)

	tick := make([]byte, 4)
	for i := 0; i < 64; i++ {
		k.Read(pcb, fd, tick)
		k.Write(pcb, 1, []byte(fmt.Sprintf("tick %d\n", i)))
	}
	k.Halt(pcb, 42)
}

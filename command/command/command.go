/*
 * miniker - Operator console command table types.
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

// Package command defines the shape of one operator console command: a
// name, its minimum unambiguous abbreviation length, and the function
// that runs it. It holds no command table itself; package parser builds
// one from these.
package command

import "github.com/aharrow/miniker/kernel"

// Handler runs one command line's worth of work against the running
// kernel. args is everything after the command keyword, with leading
// whitespace stripped. Returning quit true ends the console session.
type Handler func(k *kernel.Kernel, args string) (quit bool, err error)

// Command is one entry in the operator console's abbreviation-matched
// command table.
type Command struct {
	Name string // Full command name, lowercase.
	Min  int    // Minimum prefix length that still matches uniquely.
	Run  Handler
}

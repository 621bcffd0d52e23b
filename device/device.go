/*
 * miniker - File descriptor operations-vector interface.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package device defines the operations-vector every open file descriptor
// is bound to at open time: a small table of Read/Write/Close functions
// selected by file type, the same shape as a POSIX file_operations struct.
package device

import "errors"

// Sentinel errors shared by operations-vector implementations and the
// syscall dispatcher that calls through them.
var (
	ErrBadFD      = errors.New("device: bad file descriptor")
	ErrFDInUse    = errors.New("device: file descriptor already in use")
	ErrFDFree     = errors.New("device: file descriptor not open")
	ErrTableFull  = errors.New("device: file descriptor table full")
	ErrNotFound   = errors.New("device: file not found")
	ErrReadOnly   = errors.New("device: file system is read only")
	ErrBadBlock   = errors.New("device: bad data block index")
	ErrBadMagic   = errors.New("device: executable magic number mismatch")
	ErrNoFreeSlot = errors.New("device: no free process slot")
	ErrBadArg     = errors.New("device: invalid argument")
)

// Type identifies which operations vector a file descriptor is bound to.
type Type int

const (
	TypeTerminal Type = iota
	TypeRTC
	TypeDirectory
	TypeRegular
)

// Ops is the operations vector bound to a file descriptor at open time.
// Read takes the fd's current byte offset; the syscall layer owns advancing
// it by the returned count.
type Ops interface {
	Read(buf []byte, offset uint32) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

/*
 * miniker - Read-only file system decoder.
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

// Package fs decodes the kernel's read-only, memory-mapped file system
// image: a boot block, a directory-entry array, inode blocks, and data
// blocks, all laid out on 4KiB boundaries.
package fs

import (
	"encoding/binary"
	"errors"
)

const (
	blockSize       = 4096
	statsSize       = 64
	maxDentries     = 63
	dentryNameSize  = 32
	dentryReserved  = 24
	dataBlocksPerIn = 1023
)

// Type enumerates the kind of file a directory entry names.
type Type uint32

const (
	TypeRTC Type = iota
	TypeDirectory
	TypeRegular
)

var (
	// ErrNotFound is returned when a name or index does not resolve to
	// a directory entry.
	ErrNotFound = errors.New("fs: file not found")
	// ErrBadIndex is returned by ReadDentryByIndex for an out-of-range index.
	ErrBadIndex = errors.New("fs: dentry index out of range")
	// ErrBadInode is returned when an inode number is out of range.
	ErrBadInode = errors.New("fs: inode out of range")
	// ErrBadBlock is returned when an inode references a data-block index
	// at or beyond the data-block count.
	ErrBadBlock = errors.New("fs: bad data block index")
)

// Dentry is a decoded directory entry.
type Dentry struct {
	Name  string
	Type  Type
	Inode uint32
}

// Image is a decoded view over an in-memory file system byte slice. Image
// does not copy the underlying bytes; the caller's slice must outlive it.
type Image struct {
	data         []byte
	numDentries  uint32
	numInodes    uint32
	numDataBlks  uint32
	dataStart    uint32
	dirReadCur   uint32
}

// Load decodes image bytes into an Image, reading the boot-block counts
// needed to locate the inode and data-block regions.
func Load(data []byte) (*Image, error) {
	if len(data) < statsSize {
		return nil, errors.New("fs: image too small for boot block")
	}
	img := &Image{data: data}
	img.numDentries = binary.LittleEndian.Uint32(data[0:4])
	img.numInodes = binary.LittleEndian.Uint32(data[4:8])
	img.numDataBlks = binary.LittleEndian.Uint32(data[8:12])
	img.dataStart = (img.numInodes + 1) * blockSize
	return img, nil
}

func (img *Image) dentryAt(index uint32) Dentry {
	off := statsSize + index*(dentryNameSize+4+4+dentryReserved)
	raw := img.data[off : off+dentryNameSize]
	name := string(raw)
	if i := indexByte(raw, 0); i >= 0 {
		name = string(raw[:i])
	}
	typ := Type(binary.LittleEndian.Uint32(img.data[off+dentryNameSize : off+dentryNameSize+4]))
	inode := binary.LittleEndian.Uint32(img.data[off+dentryNameSize+4 : off+dentryNameSize+8])
	return Dentry{Name: name, Type: typ, Inode: inode}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// ReadDentryByName returns the directory entry named name.
func (img *Image) ReadDentryByName(name string) (Dentry, error) {
	for i := uint32(0); i < maxDentries && i < img.numDentries; i++ {
		d := img.dentryAt(i)
		if d.Name == name {
			return d, nil
		}
	}
	return Dentry{}, ErrNotFound
}

// ReadDentryByIndex returns the index'th directory entry.
func (img *Image) ReadDentryByIndex(index uint32) (Dentry, error) {
	if index >= maxDentries || index >= img.numDentries {
		return Dentry{}, ErrBadIndex
	}
	return img.dentryAt(index), nil
}

// inodeSize returns the byte size recorded in inode block's header.
func (img *Image) inodeSize(inode uint32) uint32 {
	off := (inode + 1) * blockSize
	return binary.LittleEndian.Uint32(img.data[off : off+4])
}

func (img *Image) inodeDataBlock(inode, slot uint32) uint32 {
	off := (inode+1)*blockSize + 4 + slot*4
	return binary.LittleEndian.Uint32(img.data[off : off+4])
}

// ReadData reads up to length bytes of inode's file contents starting at
// offset into buf, crossing data blocks as necessary. It returns 0 iff
// offset is at or beyond the file's size (EOF), and ErrBadBlock if any
// data-block index it needs to visit is at or beyond the data-block count.
func (img *Image) ReadData(inode uint32, offset uint32, buf []byte, length uint32) (int, error) {
	if inode >= img.numInodes {
		return 0, ErrBadInode
	}
	size := img.inodeSize(inode)
	if offset >= size {
		return 0, nil
	}

	if length > uint32(len(buf)) {
		length = uint32(len(buf))
	}

	read := uint32(0)
	curBlock := offset / blockSize
	blockIdx := img.inodeDataBlock(inode, curBlock)
	if blockIdx >= img.numDataBlks {
		return 0, ErrBadBlock
	}
	posInBlock := offset % blockSize

	for read < length {
		if posInBlock >= blockSize {
			posInBlock = 0
			curBlock++
			blockIdx = img.inodeDataBlock(inode, curBlock)
			if blockIdx >= img.numDataBlks {
				return int(read), ErrBadBlock
			}
		}
		if offset+read >= size {
			return int(read), nil
		}
		blockOff := img.dataStart + blockIdx*blockSize + posInBlock
		buf[read] = img.data[blockOff]
		posInBlock++
		read++
	}
	return int(read), nil
}

// Load copies the entirety of name's file contents into buf; it mirrors
// fs_load's whole-file copy semantics. buf is not grown: Load returns an
// error without copying if buf is smaller than the file.
func (img *Image) Load(name string, buf []byte) (int, error) {
	d, err := img.ReadDentryByName(name)
	if err != nil {
		return 0, err
	}
	size := img.inodeSize(d.Inode)
	if uint32(len(buf)) < size {
		return 0, errors.New("fs: destination buffer too small")
	}
	return img.ReadData(d.Inode, 0, buf, size)
}

// ReadDir is a stateful directory iterator mirroring dir_read: each call
// yields the next filename in directory-entry order, wrapping back to the
// start once every entry has been yielded once.
func (img *Image) ReadDir() string {
	if img.dirReadCur >= img.numDentries {
		img.dirReadCur = 0
		return ""
	}
	d := img.dentryAt(img.dirReadCur)
	img.dirReadCur++
	return d.Name
}

// ResetDir rewinds the directory iterator to the first entry.
func (img *Image) ResetDir() {
	img.dirReadCur = 0
}

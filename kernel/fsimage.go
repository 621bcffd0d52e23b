/*
 * miniker - In-memory file system image construction.
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
	"encoding/binary"
	"sort"

	"github.com/aharrow/miniker/fs"
)

// Wire-format constants for the boot-block/dentry/inode layout fs.Image
// decodes. They are not imported from package fs because they describe
// the on-disk format, not an implementation detail of the decoder.
const (
	blockSize      = 4096
	statsSize      = 64
	dentryNameSize = 32
	dentryReserved = 24
	dentryRecSize  = dentryNameSize + 4 + 4 + dentryReserved
)

// FileSpec describes one entry of a synthesized file system image.
type FileSpec struct {
	Type    fs.Type
	Content []byte
}

// BuildImage assembles a boot-block/dentry/inode/data-block byte image
// from files, suitable for fs.Load. It exists so the kernel can ship its
// builtin programs and sample files as Go data rather than a binary
// fixture checked into the tree, and so tests can construct minimal
// images without hand-computing offsets.
func BuildImage(files map[string]FileSpec) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	numEntries := uint32(len(names))
	blockOfInode := make([]uint32, numEntries)
	var totalBlocks uint32
	for i, name := range names {
		n := blocksFor(len(files[name].Content))
		blockOfInode[i] = totalBlocks
		totalBlocks += n
	}

	dataStart := (numEntries + 1) * blockSize
	buf := make([]byte, dataStart+totalBlocks*blockSize)

	binary.LittleEndian.PutUint32(buf[0:4], numEntries)
	binary.LittleEndian.PutUint32(buf[4:8], numEntries)
	binary.LittleEndian.PutUint32(buf[8:12], totalBlocks)

	for i, name := range names {
		spec := files[name]
		dOff := statsSize + uint32(i)*dentryRecSize
		copy(buf[dOff:dOff+dentryNameSize], name)
		binary.LittleEndian.PutUint32(buf[dOff+dentryNameSize:dOff+dentryNameSize+4], uint32(spec.Type))
		binary.LittleEndian.PutUint32(buf[dOff+dentryNameSize+4:dOff+dentryNameSize+8], uint32(i))

		nBlocks := blocksFor(len(spec.Content))
		iOff := (uint32(i) + 1) * blockSize
		binary.LittleEndian.PutUint32(buf[iOff:iOff+4], uint32(len(spec.Content)))
		for b := uint32(0); b < nBlocks; b++ {
			binary.LittleEndian.PutUint32(buf[iOff+4+b*4:iOff+8+b*4], blockOfInode[i]+b)
		}

		copy(buf[dataStart+blockOfInode[i]*blockSize:], spec.Content)
	}
	return buf
}

func blocksFor(size int) uint32 {
	n := uint32((size + blockSize - 1) / blockSize)
	if n == 0 {
		n = 1
	}
	return n
}

// ProgramImage builds a minimal ELF-like program image: the magic bytes,
// a little-endian entry point at entryPointOffset, and an arbitrary
// payload tail. Every builtin program is backed by one of these so
// Execute's magic-number and entry-point checks have real bytes to read.
func ProgramImage(entryPoint uint32, payload []byte) []byte {
	header := make([]byte, entryPointOffset+4)
	copy(header[:4], elfMagic[:])
	binary.LittleEndian.PutUint32(header[entryPointOffset:], entryPoint)
	return append(header, payload...)
}

// DefaultImage returns the file system image backing the builtin program
// set, plus one sample regular file and the "rtc" and "." device
// entries every shell session expects to be able to open.
func DefaultImage() *fs.Image {
	files := map[string]FileSpec{
		"shell":        {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"hello":        {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"cat":          {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"counter":      {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"ls":           {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"rtc":          {Type: fs.TypeRTC},
		".":            {Type: fs.TypeDirectory},
		"greeting.txt": {Type: fs.TypeRegular, Content: []byte("hello from the read-only file system\n")},
	}
	img, err := fs.Load(BuildImage(files))
	if err != nil {
		// The image above is built from constants this package controls;
		// a decode failure here means BuildImage and fs.Load have drifted
		// out of sync with each other.
		panic(err)
	}
	return img
}

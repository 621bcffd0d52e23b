/*
 * miniker - Operations-vector implementations for open(), by file type.
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

	"github.com/aharrow/miniker/device"
	"github.com/aharrow/miniker/fs"
	"github.com/aharrow/miniker/rtc"
)

// regularFile binds a file descriptor to a fixed inode in the read-only
// file system image.
type regularFile struct {
	img   *fs.Image
	inode uint32
}

func newRegularFile(img *fs.Image, inode uint32) *regularFile {
	return &regularFile{img: img, inode: inode}
}

func (f *regularFile) Read(buf []byte, offset uint32) (int, error) {
	return f.img.ReadData(f.inode, offset, buf, uint32(len(buf)))
}

func (f *regularFile) Write(buf []byte) (int, error) {
	return 0, device.ErrReadOnly
}

func (f *regularFile) Close() error { return nil }

// dirFile is bound to the root directory; each Read yields the next
// filename in directory-entry order via the image's stateful iterator.
type dirFile struct {
	img *fs.Image
}

func newDirFile(img *fs.Image) *dirFile {
	return &dirFile{img: img}
}

func (f *dirFile) Read(buf []byte, _ uint32) (int, error) {
	name := f.img.ReadDir()
	return copy(buf, name), nil
}

func (f *dirFile) Write(buf []byte) (int, error) {
	return 0, device.ErrReadOnly
}

func (f *dirFile) Close() error { return nil }

// rtcFile is bound to the "rtc" device: a Read blocks for the next
// periodic tick, and a Write of a little-endian uint32 reprograms the
// clock's rate.
type rtcFile struct {
	clock *rtc.Clock
}

func newRTCFile(clock *rtc.Clock) *rtcFile {
	return &rtcFile{clock: clock}
}

func (f *rtcFile) Read(buf []byte, _ uint32) (int, error) {
	<-f.clock.Ticks()
	return 0, nil
}

func (f *rtcFile) Write(buf []byte) (int, error) {
	if len(buf) < 4 {
		return -1, device.ErrBadArg
	}
	hz := int(binary.LittleEndian.Uint32(buf[:4]))
	if err := f.clock.SetFrequency(hz); err != nil {
		return -1, err
	}
	return 4, nil
}

func (f *rtcFile) Close() error { return nil }

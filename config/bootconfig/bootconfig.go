/*
 * miniker - Boot configuration file parser.
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

// Package bootconfig parses the boot configuration file: the filesystem
// image to load, the PIT and RTC tick rates, and which programs to IPL
// as the boot shells. It is the kernel's analog of a device-attach file,
// scaled down to the handful of settings a single-image system needs.
package bootconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// ErrUnknownKey is returned for a config line whose key this parser does
// not recognize.
var ErrUnknownKey = errors.New("bootconfig: unknown key")

// ErrMissingValue is returned when a key that requires a value is given
// none.
var ErrMissingValue = errors.New("bootconfig: missing value")

// Config holds the settings a boot configuration file can set. Zero
// values mean "use the built-in default" and are filled in by Defaults.
type Config struct {
	FSImage  string   // Path to the filesystem image file.
	PITHz    int      // PIT tick rate in Hz; 0 means the hardware default.
	RTCHz    int      // RTC tick rate in Hz; 0 means the hardware default.
	IPL      []string // Programs to IPL as the boot shells, in terminal order.
}

// DefaultRTCHz is the rate the RTC runs at when a config file does not
// set one, matching rtc.DefaultFrequency.
const DefaultRTCHz = 32

// Defaults returns a Config with every field set to the kernel's built-in
// defaults.
func Defaults() Config {
	return Config{
		RTCHz: DefaultRTCHz,
		IPL:   []string{"shell", "shell", "shell"},
	}
}

// configLine tracks the current position within one line being parsed,
// the same cursor-over-a-string shape as configparser's optionLine.
type configLine struct {
	line string
	pos  int
}

// Load reads and parses a boot configuration file, starting from
// Defaults and overriding fields as keys are encountered.
func Load(name string) (Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	cfg := Defaults()
	reader := bufio.NewReader(file)
	lineNumber := 0
	iplSet := false

	for {
		raw, err := reader.ReadString('\n')
		lineNumber++
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Config{}, err
		}

		line := &configLine{line: raw}
		if err := line.apply(&cfg, &iplSet); err != nil {
			return Config{}, fmt.Errorf("bootconfig: line %d: %w", lineNumber, err)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Config{}, err
		}
	}
	return cfg, nil
}

// apply parses one line and folds its effect into cfg. A blank line or a
// comment-only line is a no-op.
func (line *configLine) apply(cfg *Config, iplSet *bool) error {
	key := line.token()
	if key == "" {
		return nil
	}

	switch strings.ToLower(key) {
	case "fsimage":
		value := line.token()
		if value == "" {
			return fmt.Errorf("%w for fsimage", ErrMissingValue)
		}
		cfg.FSImage = value

	case "pit":
		hz, err := line.parseHz()
		if err != nil {
			return err
		}
		cfg.PITHz = hz

	case "rtc":
		hz, err := line.parseHz()
		if err != nil {
			return err
		}
		cfg.RTCHz = hz

	case "ipl":
		var programs []string
		for {
			value := line.token()
			if value == "" {
				break
			}
			programs = append(programs, value)
		}
		if len(programs) == 0 {
			return fmt.Errorf("%w for ipl", ErrMissingValue)
		}
		if !*iplSet {
			cfg.IPL = nil
			*iplSet = true
		}
		cfg.IPL = append(cfg.IPL, programs...)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func (line *configLine) parseHz() (int, error) {
	value := line.token()
	if value == "" {
		return 0, ErrMissingValue
	}
	hz, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("rate must be a number: %s", value)
	}
	return hz, nil
}

// skipSpace advances past leading whitespace.
func (line *configLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// isEOL reports whether parsing has reached the end of the line or a
// comment introduced by '#'.
func (line *configLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

// token returns the next whitespace-delimited run of non-space
// characters, advancing past it, or "" at end of line or comment.
func (line *configLine) token() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) && line.line[line.pos] != '#' {
		line.pos++
	}
	return line.line[start:line.pos]
}

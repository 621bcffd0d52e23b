/*
 * miniker - Operator console command parser.
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

// Package parser implements the operator console's command line: an
// abbreviation-matched table of show/ipl/quit commands over a cursor-
// based line tokenizer.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	cmdpkg "github.com/aharrow/miniker/command/command"
	"github.com/aharrow/miniker/console"
	"github.com/aharrow/miniker/kernel"
)

// cmdLine tracks the current cursor position within one command line,
// the same cursor-over-a-string shape as bootconfig's configLine.
type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmdpkg.Command{
	{Name: "show", Min: 2, Run: showCommand},
	{Name: "ipl", Min: 3, Run: iplCommand},
	{Name: "quit", Min: 1, Run: quitCommand},
}

// ProcessCommand parses and runs one command line against k.
func ProcessCommand(commandLine string, k *kernel.Kernel) (bool, error) {
	line := cmdLine{line: commandLine}
	word := line.word()

	match, err := matchOne(word)
	if err != nil {
		return false, err
	}

	line.skipSpace()
	return match.Run(k, line.line[line.pos:])
}

// CompleteCmd returns the set of full command names that commandLine's
// first word could still expand to, for the console's tab-completer.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	word := line.word()
	if word == "" || !line.isEOL() {
		return nil
	}

	var names []string
	for _, c := range matchAll(word) {
		names = append(names, c.Name)
	}
	return names
}

// matchCommand reports whether command is a valid, unambiguous-length
// prefix of c.Name.
func matchCommand(c cmdpkg.Command, command string) bool {
	if len(command) < c.Min || len(command) > len(c.Name) {
		return false
	}
	return strings.HasPrefix(c.Name, command)
}

func matchAll(word string) []cmdpkg.Command {
	if word == "" {
		return nil
	}
	var matches []cmdpkg.Command
	for _, c := range cmdList {
		if matchCommand(c, word) {
			matches = append(matches, c)
		}
	}
	return matches
}

func matchOne(word string) (cmdpkg.Command, error) {
	matches := matchAll(word)
	switch len(matches) {
	case 0:
		return cmdpkg.Command{}, errors.New("command not found: " + word)
	case 1:
		return matches[0], nil
	default:
		return cmdpkg.Command{}, errors.New("ambiguous command: " + word)
	}
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line)
}

// word returns the next whitespace-delimited run of characters,
// lowercased, advancing the cursor past it.
func (line *cmdLine) word() string {
	line.skipSpace()
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return strings.ToLower(line.line[start:line.pos])
}

// showCommand implements "show procs" and "show terminals".
func showCommand(k *kernel.Kernel, args string) (bool, error) {
	line := cmdLine{line: args}
	what := line.word()

	switch {
	case what == "" || strings.HasPrefix("procs", what):
		showProcs(k)
	case strings.HasPrefix("terminals", what):
		showTerminals(k)
	default:
		return false, errors.New("show: unknown target: " + what)
	}
	return false, nil
}

func showProcs(k *kernel.Kernel) {
	procs := k.Table.Snapshot()
	if len(procs) == 0 {
		fmt.Println("no live processes")
		return
	}
	for _, pcb := range procs {
		fmt.Printf("pid %d  terminal %d  parent %d  has-child %v\n",
			pcb.ID, pcb.Terminal, pcb.ParentID, pcb.HasChild)
	}
}

func showTerminals(k *kernel.Kernel) {
	owner := make(map[int]int)
	for _, pcb := range k.Table.Snapshot() {
		if _, ok := owner[pcb.Terminal]; !ok {
			owner[pcb.Terminal] = int(pcb.ID)
		}
	}
	for term := 0; term < console.NumTerminals; term++ {
		if pid, ok := owner[term]; ok {
			fmt.Printf("terminal %d  pid %d\n", term, pid)
		} else {
			fmt.Printf("terminal %d  idle\n", term)
		}
	}
}

// iplCommand implements "ipl <terminal> [program]".
func iplCommand(k *kernel.Kernel, args string) (bool, error) {
	line := cmdLine{line: args}
	termStr := line.word()
	if termStr == "" {
		return false, errors.New("ipl: terminal number required")
	}
	term, err := strconv.Atoi(termStr)
	if err != nil {
		return false, errors.New("ipl: terminal must be a number: " + termStr)
	}

	program := line.word()
	if err := k.IPL(term, program); err != nil {
		return false, err
	}
	return false, nil
}

// quitCommand ends the console session.
func quitCommand(_ *kernel.Kernel, _ string) (bool, error) {
	return true, nil
}

// Package runner is a minimal, runnable test suite executor that drives
// the debug engine in package dap through its runtime interposition
// contract (dap.Step, dap.RuntimeContext). It plays the role the Python
// original's monkey-patched robot.running.steprunner.StepRunner plays,
// without reimplementing Robot Framework itself.
package runner

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// call is one parsed line of a suite file: a keyword name followed by its
// literal argument tokens, and the 1-based line it appeared on.
type call struct {
	line int
	name string
	args []string
}

// Suite is a parsed sequence of keyword calls, one per line, in the toy
// format "Name    arg1    arg2" (fields separated by two or more spaces
// or a tab, the same convention Robot Framework's plain-text format
// uses). Blank lines and lines starting with "#" are ignored.
type Suite struct {
	Path  string
	calls []call
}

var fieldSplit = regexp.MustCompile(`[ \t]{2,}|\t`)

// ParseSuite reads and parses a suite file.
func ParseSuite(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("runner: open suite: %w", err)
	}
	defer f.Close()

	s := &Suite{Path: path}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := fieldSplit.Split(trimmed, -1)
		if len(fields) == 0 {
			continue
		}
		s.calls = append(s.calls, call{
			line: lineNo,
			name: strings.TrimSpace(fields[0]),
			args: trimArgs(fields[1:]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("runner: scan suite: %w", err)
	}
	return s, nil
}

func trimArgs(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

package runner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Keyword is one built-in test action. It receives its already-resolved
// (variable-substituted) arguments and the namespace it may read or
// write, and returns a value to log, or an error that fails the step.
type Keyword func(ns *Namespace, args []string) (any, error)

// Library is the set of keywords a Runner can call by name, matched
// case-insensitively, the way Robot Framework resolves keyword names.
type Library map[string]Keyword

// DefaultLibrary is a small fixed set of keywords sufficient to exercise
// the engine end-to-end: logging, variable assignment, equality/boolean
// assertions, and a bounded sleep. This is not an attempt at a Robot
// Framework standard library; spec.md's Non-goals exclude the surrounding
// language-server features this would otherwise belong to.
func DefaultLibrary() Library {
	return Library{
		"log": func(ns *Namespace, args []string) (any, error) {
			msg := strings.Join(args, " ")
			logrus.Info(msg)
			return msg, nil
		},
		"set variable": func(ns *Namespace, args []string) (any, error) {
			if len(args) == 0 {
				return nil, errors.New("runner: Set Variable requires a value")
			}
			return args[0], nil
		},
		"should be equal": func(ns *Namespace, args []string) (any, error) {
			if len(args) != 2 {
				return nil, errors.New("runner: Should Be Equal requires 2 arguments")
			}
			if args[0] != args[1] {
				return nil, fmt.Errorf("runner: %q != %q", args[0], args[1])
			}
			return nil, nil
		},
		"should be true": func(ns *Namespace, args []string) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("runner: Should Be True requires 1 argument")
			}
			ok, err := strconv.ParseBool(args[0])
			if err != nil {
				return nil, fmt.Errorf("runner: %q is not a boolean: %w", args[0], err)
			}
			if !ok {
				return nil, fmt.Errorf("runner: %q is not true", args[0])
			}
			return nil, nil
		},
		"sleep": func(ns *Namespace, args []string) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("runner: Sleep requires 1 argument")
			}
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return nil, fmt.Errorf("runner: %q is not a duration: %w", args[0], err)
			}
			time.Sleep(d)
			return nil, nil
		},
	}
}

func (l Library) lookup(name string) (Keyword, bool) {
	kw, ok := l[strings.ToLower(strings.TrimSpace(name))]
	return kw, ok
}

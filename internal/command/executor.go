// Package command provides a text command language over a connection
// selector, shared by the TUI command line and the API.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/thereceipt/printlink/internal/printer"
	"github.com/thereceipt/printlink/internal/selector"
)

// Executor executes commands against one selector. Like the selector it
// is not safe for concurrent use.
type Executor struct {
	selector     *selector.Selector
	opener       printer.Opener
	probeTimeout time.Duration
}

// NewExecutor creates a new command executor. opener may be nil, in which
// case the test command is unavailable.
func NewExecutor(sel *selector.Selector, opener printer.Opener) *Executor {
	return &Executor{
		selector:     sel,
		opener:       opener,
		probeTimeout: 2 * time.Second,
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func fail(format string, args ...interface{}) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

func ok(message string, data map[string]interface{}) *Result {
	return &Result{Success: true, Message: message, Data: data}
}

// Dial is the part of a command that talks to a printer. It does not
// touch the selector, so callers run it after releasing the selector lock.
type Dial func(ctx context.Context) *Result

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	res, dial := e.Prepare(cmdStr)
	if dial != nil {
		return dial(ctx)
	}
	return res
}

// Prepare runs the selector part of a command. Commands that open a
// connection return a nil result and a Dial to finish them.
func (e *Executor) Prepare(cmdStr string) (*Result, Dial) {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return fail("empty command"), nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	if command == "test" {
		return e.handleTest()
	}
	return e.dispatch(command, args), nil
}

func (e *Executor) dispatch(command string, args []string) *Result {
	switch command {
	case "mode":
		return e.handleMode(args)
	case "ip":
		return e.handleIP(args)
	case "host":
		return e.handleHost(args)
	case "port":
		return e.handlePort(args)
	case "trust":
		return e.handleTrust(args)
	case "cert":
		return e.handleCert(args)
	case "address", "addr":
		return e.handleAddress(args)
	case "printers":
		return e.handlePrinters()
	case "select":
		return e.handleSelect(args)
	case "refresh":
		return e.handleRefresh()
	case "build":
		return e.handleBuild()
	case "state":
		return e.handleState()
	case "help":
		return e.handleHelp()
	default:
		return fail("unknown command: %s. Type 'help' for available commands", command)
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	hadQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				hadQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 || hadQuotes {
				parts = append(parts, current.String())
				current.Reset()
				hadQuotes = false
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 || hadQuotes {
		parts = append(parts, current.String())
	}

	return parts
}

// Package commands parses and routes "/companion" chat commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/habits"
)

// DefaultPrefix marks a chat message as a command.
const DefaultPrefix = "/companion"

// Command represents a parsed command
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	Flags      map[string]string
	RawText    string
}

// ErrNotACommand is returned by Parse when the message does not start with
// the prefix. Callers treat such text as an utterance.
var ErrNotACommand = errors.New("commands: not a command")

// ErrEmptyCommand is returned by Parse for the bare prefix.
var ErrEmptyCommand = errors.New("commands: empty command")

// ErrUnknownCommand is returned by Route when no handler matches.
var ErrUnknownCommand = errors.New("commands: unknown command")

// Request identifies who issued a command and on which channel.
type Request struct {
	Key    string
	UserID string
}

// Response is what a handler wants sent back.
type Response struct {
	// Greeting is set when a session was started on the way.
	Greeting    string
	Text        string
	Suggestions []habits.Suggestion
}

// Handler handles one command.
type Handler func(ctx context.Context, cmd *Command, req Request) (*Response, error)

// Router routes commands to handlers
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a router for prefix.
func NewRouter(prefix string) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Register registers a handler under "name" or "name.subcommand".
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// Parse parses a message into a command.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	// "/companionship" is not "/companion ship".
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}
	rest := strings.TrimPrefix(text, r.prefix)
	if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
		return nil, ErrNotACommand
	}

	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    []string{},
		Flags:   make(map[string]string),
		RawText: strings.TrimSpace(rest),
	}

	if len(parts) > 1 {
		if !strings.HasPrefix(parts[1], "-") {
			cmd.Subcommand = parts[1]
			parts = parts[2:]
		} else {
			parts = parts[1:]
		}

		for i := 0; i < len(parts); i++ {
			part := parts[i]
			if strings.HasPrefix(part, "--") {
				name := strings.TrimPrefix(part, "--")
				if i+1 < len(parts) && !strings.HasPrefix(parts[i+1], "--") {
					cmd.Flags[name] = parts[i+1]
					i++
				} else {
					cmd.Flags[name] = "true"
				}
				continue
			}
			cmd.Args = append(cmd.Args, part)
		}
	}

	return cmd, nil
}

// Route parses text and calls the matching handler. A "name.subcommand"
// handler wins over a "name" handler.
func (r *Router) Route(ctx context.Context, text string, req Request) (*Response, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return nil, err
	}

	key := cmd.Name
	if cmd.Subcommand != "" {
		key = cmd.Name + "." + cmd.Subcommand
	}
	handler, ok := r.handlers[key]
	if !ok {
		handler, ok = r.handlers[cmd.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.FullCommand())
		}
	}
	return handler(ctx, cmd, req)
}

// GetFlag returns a flag value with a default
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// HasFlag checks if a flag is present
func (c *Command) HasFlag(name string) bool {
	_, ok := c.Flags[name]
	return ok
}

// FullCommand returns the full command string
func (c *Command) FullCommand() string {
	if c.Subcommand != "" {
		return c.Name + " " + c.Subcommand
	}
	return c.Name
}

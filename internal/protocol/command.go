package protocol

import (
	"errors"
	"fmt"

	"github.com/yndnr/converge/internal/core/domain"
)

// ErrMissingArgument is reported for a declared argument that is absent.
var ErrMissingArgument = errors.New("missing argument")

// Argument declares one named slot of a command.
type Argument struct {
	Name string
	Type ArgType
}

// Command declares a command's name, arguments and response schema.
type Command struct {
	Name      string
	Arguments []Argument
	Response  []Argument
}

// Args holds decoded argument or response values by name.
type Args map[string]any

// Int32 returns an integer argument, or 0 if absent.
func (a Args) Int32(name string) int32 {
	v, _ := a[name].(int32)
	return v
}

// String returns a string argument, or "" if absent.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Value returns a structured argument, or nil if absent.
func Value[T any](a Args, name string) *T {
	v, _ := a[name].(*T)
	return v
}

// ArgumentError reports an argument that failed to decode. It matches
// domain.ErrDecode, so the invocation fails but the connection stays up.
type ArgumentError struct {
	Command  string
	Argument string
	Err      error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("protocol: %s argument %q: %v", e.Command, e.Argument, e.Err)
}

func (e *ArgumentError) Unwrap() []error {
	return []error{domain.ErrDecode, e.Err}
}

// EncodeArguments encodes args against the command's argument schema.
func (c *Command) EncodeArguments(args Args) (map[string][]byte, error) {
	return c.encode(c.Arguments, args)
}

// DecodeArguments decodes every declared argument except those in skip.
func (c *Command) DecodeArguments(fields map[string][]byte, skip map[string]bool) (Args, error) {
	return c.decode(c.Arguments, fields, skip)
}

// EncodeResponse encodes a responder's result.
func (c *Command) EncodeResponse(result Args) (map[string][]byte, error) {
	return c.encode(c.Response, result)
}

// DecodeResponse decodes an answer.
func (c *Command) DecodeResponse(fields map[string][]byte) (Args, error) {
	return c.decode(c.Response, fields, nil)
}

func (c *Command) encode(schema []Argument, values Args) (map[string][]byte, error) {
	fields := make(map[string][]byte, len(schema))
	for _, arg := range schema {
		v, ok := values[arg.Name]
		if !ok {
			return nil, fmt.Errorf("protocol: %s: %w %q", c.Name, ErrMissingArgument, arg.Name)
		}
		b, err := arg.Type.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: %s: encode %q: %w", c.Name, arg.Name, err)
		}
		fields[arg.Name] = b
	}
	if len(values) > len(schema) {
		for name := range values {
			if !c.declares(schema, name) {
				return nil, fmt.Errorf("protocol: %s: undeclared argument %q", c.Name, name)
			}
		}
	}
	return fields, nil
}

func (c *Command) decode(schema []Argument, fields map[string][]byte, skip map[string]bool) (Args, error) {
	out := make(Args, len(schema))
	for _, arg := range schema {
		if skip[arg.Name] {
			continue
		}
		b, ok := fields[arg.Name]
		if !ok {
			return nil, &ArgumentError{Command: c.Name, Argument: arg.Name, Err: ErrMissingArgument}
		}
		v, err := arg.Type.Decode(b)
		if err != nil {
			return nil, &ArgumentError{Command: c.Name, Argument: arg.Name, Err: err}
		}
		out[arg.Name] = v
	}
	return out, nil
}

func (c *Command) declares(schema []Argument, name string) bool {
	for _, arg := range schema {
		if arg.Name == name {
			return true
		}
	}
	return false
}

package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gobridge/internal/bindings"
	gwerr "gobridge/internal/errors"
)

// portReporter is satisfied by the gateway bound under
// bindings.ServerKey.
type portReporter interface {
	ListeningPort() int
}

// Builtins returns the verbs every session understands.
func Builtins() []Command {
	return []Command{
		Func{Verb: "ping", Fn: ping},
		Func{Verb: "port", Fn: port},
		Func{Verb: "entry", Fn: entry},
		Func{Verb: "type", Fn: typeOf},
		Func{Verb: "quit", Fn: quit},
	}
}

func ping(context.Context, *Request) (string, error) {
	return "pong", nil
}

// port replies with the gateway's bound port, found through its
// self-binding.
func port(_ context.Context, req *Request) (string, error) {
	v, ok := lookup(req, bindings.ServerKey)
	if !ok {
		return "", fmt.Errorf("no binding for %s", bindings.ServerKey)
	}
	p, ok := v.(portReporter)
	if !ok {
		return "", fmt.Errorf("%s does not report a port", bindings.ServerKey)
	}
	return strconv.Itoa(p.ListeningPort()), nil
}

func entry(_ context.Context, req *Request) (string, error) {
	if req.Bindings == nil || req.Bindings.EntryPoint() == nil {
		return "null", nil
	}
	return fmt.Sprintf("%T", req.Bindings.EntryPoint()), nil
}

// typeOf replies with the Go type bound under the given key.
func typeOf(_ context.Context, req *Request) (string, error) {
	if len(req.Args) != 1 {
		return "", fmt.Errorf("usage: type <key>")
	}
	v, ok := lookup(req, req.Args[0])
	if !ok {
		return "", fmt.Errorf("no binding for %s", req.Args[0])
	}
	return fmt.Sprintf("%T", v), nil
}

func quit(context.Context, *Request) (string, error) {
	return "bye", ErrQuit
}

func lookup(req *Request, key string) (interface{}, bool) {
	if req.Bindings == nil {
		return nil, false
	}
	return req.Bindings.Get(key)
}

// Unknown returns the error reported for a verb with no command.
func Unknown(name string) error {
	return fmt.Errorf("%w: %s", gwerr.ErrUnknownCommand, strings.TrimSpace(name))
}

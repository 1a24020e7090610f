// Package command defines the verbs a gateway session understands.
//
// A verb is one line of text from the remote side: a name followed by
// space-separated arguments.  Built-in verbs are always available;
// callers extend the set by passing their own [Command] values to the
// gateway, which merges them into a [Registry] per session.
package command

import (
	"context"
	"errors"
	"strings"
)

// Reply prefixes written back to the remote side.
const (
	ReplySuccess = "!y"
	ReplyError   = "!x"
)

// ErrQuit is returned by a command that wants the session to end after
// its reply has been written.
var ErrQuit = errors.New("session quit requested")

// Bindings is the part of the binding table a command may consult.
type Bindings interface {
	Get(key string) (interface{}, bool)
	EntryPoint() interface{}
}

// Request is one parsed command line.
type Request struct {
	Name     string
	Args     []string
	Bindings Bindings
}

// Command executes one verb.
type Command interface {
	// Name is the verb that selects this command.
	Name() string

	// Execute runs the command.  The returned string is sent back as a
	// success reply; a non-nil error becomes an error reply, except for
	// ErrQuit which ends the session after a success reply.
	Execute(ctx context.Context, req *Request) (string, error)
}

// Func adapts a plain function to the Command interface.
type Func struct {
	Verb string
	Fn   func(ctx context.Context, req *Request) (string, error)
}

// Name implements Command.
func (f Func) Name() string { return f.Verb }

// Execute implements Command.
func (f Func) Execute(ctx context.Context, req *Request) (string, error) {
	return f.Fn(ctx, req)
}

// Parse splits a command line into verb and arguments.  It returns
// false for a blank line.
func Parse(line string) (*Request, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false
	}
	return &Request{Name: fields[0], Args: fields[1:]}, true
}

// FormatReply renders a command outcome as a reply line without the
// trailing newline.  Newlines inside the payload are escaped so the
// reply stays on one line.
func FormatReply(result string, err error) string {
	if err != nil && !errors.Is(err, ErrQuit) {
		return ReplyError + escape(err.Error())
	}
	return ReplySuccess + escape(result)
}

var replyEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func escape(s string) string { return replyEscaper.Replace(s) }

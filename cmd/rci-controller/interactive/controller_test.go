package interactive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/mash-protocol/rci-go/pkg/backend"
	"github.com/mash-protocol/rci-go/pkg/connection"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
	"github.com/mash-protocol/rci-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const controllerSchema = `
version: "2.0"
settings:
  - name: serial
    kind: fixed_array
    instances: 2
    items:
      - {name: baud, type: uint32, default: "9600"}
      - {name: parity, type: enum, enum: [none, odd, even], default: "none"}
  - name: users
    kind: variable_dictionary
    instances: 4
    items:
      - {name: fullname, type: string}
states:
  - name: system
    items:
      - {name: uptime, type: uint32, access: read_only}
`

// engineLink runs requests on an in-process engine.
type engineLink struct {
	engine    *rci.Engine
	connected bool
	status    wire.Status
	target    string
}

func (l *engineLink) Connect(_ context.Context, target string) error {
	if target == "nowhere" {
		return errors.New("no route to host")
	}
	l.connected = true
	l.target = target
	return nil
}

func (l *engineLink) Status() string {
	if !l.connected {
		return "not connected"
	}
	return l.target
}

func (l *engineLink) Exchange(_ context.Context, request []byte) ([]byte, wire.Status, error) {
	if !l.connected {
		return nil, 0, connection.ErrNotConnected
	}
	if l.status != wire.StatusComplete {
		return nil, l.status, nil
	}
	out := make([]byte, 64)
	var reply []byte
	action := rci.SessionStart
	for {
		res := l.engine.Step(action, rci.Input{Data: request, Final: true}, out)
		action = rci.SessionActive
		reply = append(reply, out[:res.Written]...)
		request = request[res.Read:]
		switch res.Status {
		case rci.StatusComplete:
			return reply, wire.StatusComplete, nil
		case rci.StatusError:
			return reply, wire.StatusAborted, nil
		case rci.StatusInternalError, rci.StatusMoreInput:
			return nil, wire.StatusInternalError, nil
		}
	}
}

func newController(t *testing.T) (*Controller, *engineLink, *backend.Store, *bytes.Buffer) {
	t.Helper()
	s, err := schema.Parse([]byte(controllerSchema))
	require.NoError(t, err)
	st, err := backend.New(s, backend.WithCommand("echo", func(p string) (string, error) {
		return "echo: " + p, nil
	}))
	require.NoError(t, err)
	e, err := rci.NewEngine(s, st, rci.Config{}, rci.WithRebooter(st))
	require.NoError(t, err)

	link := &engineLink{engine: e, connected: true, target: "127.0.0.1:4530"}
	var out bytes.Buffer
	return New(link, nil, s, 0, &out), link, st, &out
}

func TestControllerQuerySet(t *testing.T) {
	c, _, _, out := newController(t)
	ctx := context.Background()

	assert.True(t, c.Execute(ctx, "query setting/serial[2]/parity"))
	assert.Contains(t, out.String(), "setting/serial[2]/parity = none")

	out.Reset()
	c.Execute(ctx, "set setting/serial[2]/parity even")
	assert.Contains(t, out.String(), "setting/serial[2]/parity: ok")

	out.Reset()
	c.Execute(ctx, "get setting/serial")
	assert.Contains(t, out.String(), "setting/serial[1]/parity = none")
	assert.Contains(t, out.String(), "setting/serial[2]/parity = even")

	out.Reset()
	c.Execute(ctx, "query setting/serial[2]/parity defaults")
	assert.Contains(t, out.String(), "setting/serial[2]/parity = none")

	out.Reset()
	c.Execute(ctx, "default setting/serial[2]/parity")
	c.Execute(ctx, "query setting/serial[2]/parity")
	assert.Contains(t, out.String(), "setting/serial[2]/parity = none")
}

func TestControllerDictionary(t *testing.T) {
	c, _, st, out := newController(t)
	ctx := context.Background()

	c.Execute(ctx, `set setting/users[alice]/fullname "Alice Liddell"`)
	v, err := st.GetText("setting/users[alice]/fullname")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", v)

	out.Reset()
	c.Execute(ctx, "remove setting/users[alice]")
	assert.NotContains(t, out.String(), "error")

	out.Reset()
	c.Execute(ctx, "query setting/users")
	assert.NotContains(t, out.String(), "alice")
}

func TestControllerDeviceCommands(t *testing.T) {
	c, _, st, out := newController(t)
	ctx := context.Background()

	c.Execute(ctx, "do echo hello world")
	assert.Contains(t, out.String(), "echo: hello world")

	require.NoError(t, st.SetText("setting/serial[1]/baud", "19200"))
	out.Reset()
	c.Execute(ctx, "factory")
	assert.Contains(t, out.String(), "OK")
	v, err := st.GetText("setting/serial[1]/baud")
	require.NoError(t, err)
	assert.Equal(t, "9600", v)

	out.Reset()
	c.Execute(ctx, "reboot")
	assert.Contains(t, out.String(), "OK")
}

func TestControllerErrors(t *testing.T) {
	c, link, _, out := newController(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"query setting/nope", "Error: command: bad path"},
		{"query setting/serial[1]/baud sideways", "unknown source: sideways"},
		{"query setting/serial compare=later", "unknown comparison: later"},
		{"set setting/serial[1]/parity mark", "Set failed"},
		{"set setting/serial[1]/baud", "Usage: set"},
		{"remove setting/serial[1]", "Remove failed"},
		{"do", "Usage: do"},
		{"browse", "Browsing is disabled"},
		{"frobnicate", "Unknown command: frobnicate"},
		{"connect nowhere", "Connect failed: no route to host"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			assert.True(t, c.Execute(ctx, tt.line))
			assert.Contains(t, out.String(), tt.want)
		})
	}

	out.Reset()
	link.status = wire.StatusBusy
	c.Execute(ctx, "query setting/serial")
	assert.Contains(t, out.String(), "Device answered BUSY")

	out.Reset()
	link.connected = false
	c.Execute(ctx, "query setting/serial")
	assert.Contains(t, out.String(), "Error: not connected")
}

func TestControllerConnectAndStatus(t *testing.T) {
	c, link, _, out := newController(t)
	ctx := context.Background()
	link.connected = false

	c.Execute(ctx, "status")
	assert.Contains(t, out.String(), "Device:         not connected")
	assert.Contains(t, out.String(), "Schema version: 2.0")

	out.Reset()
	c.Execute(ctx, "connect 10.0.0.7:4530")
	assert.Contains(t, out.String(), "Connected: 10.0.0.7:4530")

	assert.False(t, c.Execute(ctx, "quit"))
	assert.True(t, c.Execute(ctx, "   "))
}

func TestParseSourceAndCompare(t *testing.T) {
	src, err := ParseSource("Stored")
	require.NoError(t, err)
	assert.Equal(t, rci.SourceStored, src)

	cmp, err := ParseCompare("defaults")
	require.NoError(t, err)
	assert.Equal(t, rci.CompareDefaults, cmp)

	_, err = ParseSource("none")
	assert.Error(t, err)
	_, err = ParseCompare("")
	assert.Error(t, err)
}

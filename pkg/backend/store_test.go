package backend_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/rci-go/pkg/backend"
	"github.com/mash-protocol/rci-go/pkg/command"
	"github.com/mash-protocol/rci-go/pkg/persistence"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

const deviceSchema = `
version: "1.0"
settings:
  - name: serial
    kind: fixed_array
    instances: 2
    items:
      - {name: baud, type: uint32, default: "9600", min: 300, max: 115200}
      - {name: parity, type: enum, enum: [none, odd, even], default: "none"}
  - name: network
    items:
      - {name: hostname, type: fqdnv4, max_length: 8, default: "device"}
      - name: routes
        type: list
        kind: variable_array
        instances: 4
        items:
          - {name: dest, type: ipv4}
  - name: users
    kind: variable_dictionary
    instances: 2
    items:
      - {name: fullname, type: string}
states:
  - name: system
    items:
      - {name: uptime, type: uint32, access: read_only}
`

// Group ids of deviceSchema.
const (
	groupSerial  = 0
	groupNetwork = 1
	groupUsers   = 2
)

type memSaver struct {
	saves []*persistence.Settings
	err   error
}

func (m *memSaver) Save(s *persistence.Settings) error {
	if m.err != nil {
		return m.err
	}
	m.saves = append(m.saves, s.Clone())
	return nil
}

func (m *memSaver) last() *persistence.Settings {
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(deviceSchema))
	require.NoError(t, err)
	return s
}

func newStore(t *testing.T, opts ...backend.Option) (*backend.Store, *rci.Engine) {
	t.Helper()
	s := loadSchema(t)
	st, err := backend.New(s, opts...)
	require.NoError(t, err)
	e, err := rci.NewEngine(s, st, rci.Config{}, rci.WithRebooter(st))
	require.NoError(t, err)
	return st, e
}

// run feeds a whole request and decodes the reply.
func run(t *testing.T, st *backend.Store, e *rci.Engine, b *command.Builder) *command.Reply {
	t.Helper()
	require.NoError(t, b.Err())
	data := b.Bytes()
	out := make([]byte, 4096)
	var reply []byte

	action := rci.SessionStart
	for range 10_000 {
		res := e.Step(action, rci.Input{Data: data, Final: true}, out)
		action = rci.SessionActive
		reply = append(reply, out[:res.Written]...)
		data = data[res.Read:]

		switch res.Status {
		case rci.StatusComplete, rci.StatusError:
			r, err := command.Decode(st.Schema(), reply)
			require.NoError(t, err)
			return r
		case rci.StatusInternalError, rci.StatusMoreInput:
			t.Fatalf("unexpected status %s", res.Status)
		}
	}
	t.Fatalf("request did not finish")
	return nil
}

func field(t *testing.T, n *command.Node, name string) *command.Field {
	t.Helper()
	for _, f := range n.Fields {
		if f.Item.Name() == name {
			return f
		}
	}
	t.Fatalf("field %q not in reply", name)
	return nil
}

func replyError(t *testing.T, r *command.Reply) *command.Error {
	t.Helper()
	var e *command.Error
	require.True(t, errors.As(r.Err(), &e), "reply carries no error")
	return e
}

func get(t *testing.T, st *backend.Store, path string) rci.Value {
	t.Helper()
	v, err := st.Get(path)
	require.NoError(t, err)
	return v
}

func TestQueryDefaults(t *testing.T) {
	st, e := newStore(t)

	r := run(t, st, e, command.New(rci.CommandQuerySetting).Group(groupSerial, command.Instance{}))
	require.NoError(t, r.Err())
	require.Len(t, r.Groups, 2)
	for i, g := range r.Groups {
		assert.Equal(t, i+1, g.Index)
		assert.Equal(t, uint32(9600), field(t, g, "baud").Value.Unsigned)
		assert.Equal(t, "none", field(t, g, "parity").Value.Format([]string{"none", "odd", "even"}))
	}
}

func TestSetCommitsAndSaves(t *testing.T) {
	saver := &memSaver{}
	st, e := newStore(t, backend.WithSaver(saver))

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupSerial, command.Instance{Index: 2}).
		Set(0, rci.Uint32Value(schema.TypeUint32, 19200)))
	require.NoError(t, r.Err())

	assert.Equal(t, uint32(19200), get(t, st, "setting/serial[2]/baud").Unsigned)
	assert.Equal(t, uint32(9600), get(t, st, "setting/serial[1]/baud").Unsigned)
	require.Len(t, saver.saves, 1)
	assert.Equal(t, "19200", saver.last().Values["setting/serial[2]/baud"])

	r = run(t, st, e, command.New(rci.CommandQuerySetting).Source(rci.SourceStored).
		Group(groupSerial, command.Instance{Index: 2}).Query(0))
	require.Len(t, r.Groups, 1)
	assert.Equal(t, uint32(19200), field(t, r.Groups[0], "baud").Value.Unsigned)
}

func TestQuerySourcesAndCompare(t *testing.T) {
	st, e := newStore(t)
	require.NoError(t, st.SetText("setting/serial[1]/baud", "57600"))

	r := run(t, st, e, command.New(rci.CommandQuerySetting).Source(rci.SourceDefaults).
		Group(groupSerial, command.Instance{Index: 1}).Query(0))
	require.Len(t, r.Groups, 1)
	assert.Equal(t, uint32(9600), field(t, r.Groups[0], "baud").Value.Unsigned)

	// Only the changed element survives a comparison with the defaults.
	r = run(t, st, e, command.New(rci.CommandQuerySetting).CompareTo(rci.CompareDefaults).
		Group(groupSerial, command.Instance{Index: 1}))
	require.NoError(t, r.Err())
	require.Len(t, r.Groups, 1)
	require.Len(t, r.Groups[0].Fields, 1)
	assert.Equal(t, uint32(57600), field(t, r.Groups[0], "baud").Value.Unsigned)

	r = run(t, st, e, command.New(rci.CommandQuerySetting).CompareTo(rci.CompareStored).
		Group(groupSerial, command.Instance{Index: 1}))
	require.NoError(t, r.Err())
	for _, g := range r.Groups {
		assert.Empty(t, g.Fields)
	}
}

func TestDictionaryLifecycle(t *testing.T) {
	saver := &memSaver{}
	st, e := newStore(t, backend.WithSaver(saver))

	r := run(t, st, e, command.New(rci.CommandSetSetting).EmbedTransformed().
		Group(groupUsers, command.Instance{Key: "alice", Complete: true}).
		Set(0, rci.StringValue(schema.TypeString, "  Alice Smith ")))
	require.NoError(t, r.Err())
	require.Len(t, r.Groups, 1)
	assert.Equal(t, "Alice Smith", field(t, r.Groups[0], "fullname").Value.Text)
	assert.Equal(t, "Alice Smith", get(t, st, "setting/users[alice]/fullname").Text)
	assert.Equal(t, []string{"alice"}, saver.last().Instances["setting/users"].Keys)

	r = run(t, st, e, command.New(rci.CommandQuerySetting).Group(groupUsers, command.Instance{}))
	require.NoError(t, r.Err())
	require.Len(t, r.Groups, 1)
	assert.Equal(t, "alice", r.Groups[0].Key)

	r = run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupUsers, command.Instance{Key: "alice", Remove: true}))
	require.NoError(t, r.Err())
	assert.Equal(t, "", get(t, st, "setting/users[alice]/fullname").Text)
	assert.Empty(t, saver.last().Instances["setting/users"].Keys)
	assert.NotContains(t, saver.last().Values, "setting/users[alice]/fullname")
}

func TestDictionaryCapacity(t *testing.T) {
	st, e := newStore(t)
	for _, key := range []string{"alice", "bob"} {
		r := run(t, st, e, command.New(rci.CommandSetSetting).
			Group(groupUsers, command.Instance{Key: key, Complete: true}).
			Set(0, rci.StringValue(schema.TypeString, key)))
		require.NoError(t, r.Err())
	}

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupUsers, command.Instance{Key: "carol", Complete: true}).
		Set(0, rci.StringValue(schema.TypeString, "carol")))
	err := replyError(t, r)
	assert.Equal(t, rci.ErrorInvalidName, err.ID)
	assert.Equal(t, backend.HintCapacity, err.Hint)
	assert.Len(t, st.Snapshot().Instances["setting/users"].Keys, 2)
}

func TestRemoveUnknownKey(t *testing.T) {
	st, e := newStore(t)

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupUsers, command.Instance{Key: "nobody", Remove: true}))
	require.Error(t, r.Err())
}

func TestResizeDropsValues(t *testing.T) {
	st, e := newStore(t)

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupNetwork, command.Instance{}).
		List(1, command.Instance{Index: 2, Count: 2, Resize: true}).
		Set(0, rci.StringValue(schema.TypeIPv4, "10.0.0.2")))
	require.NoError(t, r.Err())
	assert.Equal(t, "10.0.0.2", get(t, st, "setting/network[1]/routes[2]/dest").String())
	assert.Equal(t, 2, st.Snapshot().Instances["setting/network[1]/routes"].Count)

	r = run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupNetwork, command.Instance{}).
		List(1, command.Instance{Index: 1, Count: 1, Resize: true}).
		Set(0, rci.StringValue(schema.TypeIPv4, "10.0.0.1")))
	require.NoError(t, r.Err())

	snap := st.Snapshot()
	assert.Equal(t, 1, snap.Instances["setting/network[1]/routes"].Count)
	assert.Equal(t, "10.0.0.1", snap.Values["setting/network[1]/routes[1]/dest"])
	assert.NotContains(t, snap.Values, "setting/network[1]/routes[2]/dest")
}

func TestResizeOverCapacity(t *testing.T) {
	st, e := newStore(t)

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupNetwork, command.Instance{}).
		List(1, command.Instance{Index: 1, Count: 5, Resize: true}).
		Set(0, rci.StringValue(schema.TypeIPv4, "10.0.0.1")))
	err := replyError(t, r)
	assert.Equal(t, rci.ErrorInvalidIndex, err.ID)
	assert.Zero(t, st.Snapshot().Instances["setting/network[1]/routes"].Count)
}

func TestSetValidation(t *testing.T) {
	tests := []struct {
		name  string
		group int
		id    int
		value rci.Value
		hint  string
		path  string
		want  string
	}{
		{"baud below minimum", groupSerial, 0, rci.Uint32Value(schema.TypeUint32, 100), backend.HintOutOfRange, "setting/serial[1]/baud", "9600"},
		{"baud above maximum", groupSerial, 0, rci.Uint32Value(schema.TypeUint32, 230400), backend.HintOutOfRange, "setting/serial[1]/baud", "9600"},
		{"hostname too long", groupNetwork, 0, rci.StringValue(schema.TypeFQDNv4, "much-too-long"), backend.HintTooLong, "setting/network[1]/hostname", "device"},
		{"hostname trimmed", groupNetwork, 0, rci.StringValue(schema.TypeFQDNv4, "  gw1  "), "", "setting/network[1]/hostname", "gw1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, e := newStore(t)
			el := st.Schema().Settings[tt.group].Items[tt.id].Element

			r := run(t, st, e, command.New(rci.CommandSetSetting).
				Group(tt.group, command.Instance{Index: 1}).Set(tt.id, tt.value))
			if tt.hint == "" {
				require.NoError(t, r.Err())
			} else {
				err := replyError(t, r)
				assert.Equal(t, rci.ErrorBadValue, err.ID)
				assert.Equal(t, tt.hint, err.Hint)
			}
			assert.Equal(t, tt.want, get(t, st, tt.path).Format(el.Enum))
		})
	}
}

func TestSaveFailureReported(t *testing.T) {
	st, e := newStore(t, backend.WithSaver(&memSaver{err: errors.New("disk full")}))

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupSerial, command.Instance{Index: 1}).
		Set(0, rci.Uint32Value(schema.TypeUint32, 19200)))
	require.Len(t, r.Errors, 1)
	assert.Equal(t, rci.ErrorBadValue, r.Errors[0].ID)
	assert.Equal(t, backend.HintSaveFailed, r.Errors[0].Hint)
}

// session drives Handle directly, standing in for one engine session.
type session struct {
	st  *backend.Store
	ctx *rci.Context
}

func newSession(st *backend.Store) *session {
	return &session{st: st, ctx: &rci.Context{Schema: st.Schema(), GroupType: schema.GroupSetting}}
}

func (s *session) do(req rci.Request) rci.Result {
	s.ctx.Response = rci.Response{}
	return s.st.Handle(req, s.ctx)
}

func (s *session) group(id, index int) {
	g := s.st.Schema().Settings[id]
	s.ctx.Group = rci.Address{ID: id, Collection: &g.Collection, Index: index}
	s.ctx.GroupEntry = g
}

func TestCancelUndoesChanges(t *testing.T) {
	st, _ := newStore(t)
	require.NoError(t, st.SetText("setting/serial[1]/parity", "odd"))

	s := newSession(st)
	s.ctx.Action = rci.ActionSet
	s.group(groupSerial, 1)
	require.Equal(t, rci.Continue, s.do(rci.RequestSessionStart))
	require.Equal(t, rci.Continue, s.do(rci.RequestActionStart))

	for id, v := range []rci.Value{
		rci.Uint32Value(schema.TypeUint32, 19200),
		rci.Uint32Value(schema.TypeEnum, 2),
	} {
		s.ctx.Element = rci.ElementRef{ID: id, Element: st.Schema().Settings[groupSerial].Items[id].Element}
		s.ctx.Value = v
		require.Equal(t, rci.Continue, s.do(rci.RequestElementProcess))
	}
	assert.Equal(t, uint32(19200), get(t, st, "setting/serial[1]/baud").Unsigned)

	require.Equal(t, rci.Continue, s.do(rci.RequestSessionCancel))
	assert.Equal(t, uint32(9600), get(t, st, "setting/serial[1]/baud").Unsigned)
	assert.Equal(t, uint32(1), get(t, st, "setting/serial[1]/parity").Unsigned)
}

func TestLockBusyAcrossSessions(t *testing.T) {
	st, _ := newStore(t)
	a, b := newSession(st), newSession(st)
	a.group(groupUsers, 0)
	b.group(groupUsers, 0)

	require.Equal(t, rci.Continue, a.do(rci.RequestGroupInstancesLock))
	assert.Equal(t, []string{}, a.ctx.Response.Keys)
	assert.Equal(t, rci.Busy, b.do(rci.RequestGroupInstancesLock))

	// Nested locks by the owner count.
	require.Equal(t, rci.Continue, a.do(rci.RequestGroupInstancesLock))
	a.do(rci.RequestGroupInstancesUnlock)
	assert.Equal(t, rci.Busy, b.do(rci.RequestGroupInstancesLock))

	a.do(rci.RequestGroupInstancesUnlock)
	require.Equal(t, rci.Continue, b.do(rci.RequestGroupInstancesLock))

	// Ending a session releases what it still holds.
	assert.Equal(t, rci.Busy, a.do(rci.RequestGroupInstancesLock))
	b.do(rci.RequestSessionEnd)
	assert.Equal(t, rci.Continue, a.do(rci.RequestGroupInstancesLock))
}

func TestDoCommand(t *testing.T) {
	st, e := newStore(t,
		backend.WithCommand("upper", func(p string) (string, error) { return strings.ToUpper(p), nil }),
		backend.WithCommand("fail", func(string) (string, error) { return "", errors.New("not now") }),
	)

	r := run(t, st, e, command.New(rci.CommandDoCommand).Target("echo").Payload("hello"))
	assert.Equal(t, "hello", r.Payload)

	r = run(t, st, e, command.New(rci.CommandDoCommand).Target("upper").Payload("hello"))
	assert.Equal(t, "HELLO", r.Payload)

	r = run(t, st, e, command.New(rci.CommandDoCommand).Target("fail").Payload("x"))
	require.Len(t, r.Errors, 1)
	assert.Equal(t, rci.ErrorBadValue, r.Errors[0].ID)
	assert.Equal(t, "not now", r.Errors[0].Hint)

	r = run(t, st, e, command.New(rci.CommandDoCommand).Target("missing").Payload("x"))
	require.Len(t, r.Errors, 1)
	assert.Equal(t, backend.HintUnknownTgt, r.Errors[0].Hint)
}

func TestDoCommandMayUseStore(t *testing.T) {
	var st *backend.Store
	st, e := newStore(t, backend.WithCommand("dump", func(string) (string, error) {
		return strings.Join(st.Dump(), "\n"), nil
	}))
	require.NoError(t, st.SetText("setting/serial[1]/baud", "19200"))

	r := run(t, st, e, command.New(rci.CommandDoCommand).Target("dump").Payload(""))
	assert.Equal(t, "setting/serial[1]/baud = 19200", r.Payload)
}

func TestFactoryDefault(t *testing.T) {
	saver := &memSaver{}
	st, e := newStore(t, backend.WithSaver(saver))
	require.NoError(t, st.SetText("setting/serial[2]/baud", "19200"))
	require.NoError(t, st.SetState("state/system[1]/uptime", rci.Uint32Value(schema.TypeUint32, 42)))

	r := run(t, st, e, command.New(rci.CommandSetFactoryDefault))
	require.NoError(t, r.Err())

	assert.Equal(t, uint32(9600), get(t, st, "setting/serial[2]/baud").Unsigned)
	assert.Equal(t, uint32(42), get(t, st, "state/system[1]/uptime").Unsigned)
	assert.Empty(t, saver.last().Values)
}

func TestStateValues(t *testing.T) {
	st, e := newStore(t)
	require.NoError(t, st.SetState("state/system[1]/uptime", rci.Uint32Value(schema.TypeUint32, 42)))

	r := run(t, st, e, command.New(rci.CommandQueryState).Group(0, command.Instance{}))
	require.NoError(t, r.Err())
	require.Len(t, r.Groups, 1)
	assert.Equal(t, uint32(42), field(t, r.Groups[0], "uptime").Value.Unsigned)

	err := st.SetState("setting/serial[1]/baud", rci.Uint32Value(schema.TypeUint32, 1))
	assert.ErrorIs(t, err, backend.ErrBadPath)

	require.NoError(t, st.Restore(&persistence.Settings{}))
	assert.Equal(t, uint32(42), get(t, st, "state/system[1]/uptime").Unsigned)
}

func TestRestoreSkipsInvalidEntries(t *testing.T) {
	st, _ := newStore(t)

	require.NoError(t, st.Restore(&persistence.Settings{
		Values: map[string]string{
			"setting/serial[1]/baud":   "57600",
			"setting/serial[1]/parity": "bogus",
			"setting/modem[1]/apn":     "internet",
			"garbage":                  "1",
		},
		Instances: map[string]persistence.Instances{
			"setting/users": {Keys: []string{"alice"}},
		},
	}))

	assert.Equal(t, uint32(57600), get(t, st, "setting/serial[1]/baud").Unsigned)
	assert.Equal(t, uint32(0), get(t, st, "setting/serial[1]/parity").Unsigned)
	assert.Equal(t, []string{"setting/serial[1]/baud = 57600"}, st.Dump())
	assert.Equal(t, []string{"alice"}, st.Snapshot().Instances["setting/users"].Keys)
}

func TestGetBadPath(t *testing.T) {
	st, _ := newStore(t)
	for _, p := range []string{"", "setting/serial", "setting/serial[1]/nope", "status/system[1]/uptime", "setting/network[1]/hostname[1]/x"} {
		_, err := st.Get(p)
		assert.ErrorIs(t, err, backend.ErrBadPath, p)
	}
}

func TestGetTextFormatsEnums(t *testing.T) {
	st, _ := newStore(t)
	require.NoError(t, st.SetText("setting/serial[2]/parity", "even"))

	text, err := st.GetText("setting/serial[2]/parity")
	require.NoError(t, err)
	assert.Equal(t, "even", text)

	text, err = st.GetText("setting/serial[1]/baud")
	require.NoError(t, err)
	assert.Equal(t, "9600", text)
}

func TestNewRejectsBadDefault(t *testing.T) {
	s, err := schema.Parse([]byte(`
settings:
  - name: serial
    items:
      - {name: baud, type: uint32, default: "fast"}
`))
	require.NoError(t, err)
	_, err = backend.New(s)
	assert.Error(t, err)
}

func TestRebootHook(t *testing.T) {
	calls := 0
	st, e := newStore(t, backend.WithRebootHook(func() error {
		calls++
		return nil
	}))

	r := run(t, st, e, command.New(rci.CommandReboot))
	require.NoError(t, r.Err())
	assert.Equal(t, 1, calls)

	failing, err := backend.New(loadSchema(t), backend.WithRebootHook(func() error { return errors.New("no") }))
	require.NoError(t, err)
	assert.Equal(t, rci.Abort, failing.Reboot())
}

func TestSettingsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	files := persistence.NewSettingsStore(path)
	st, e := newStore(t, backend.WithSaver(files))

	r := run(t, st, e, command.New(rci.CommandSetSetting).
		Group(groupUsers, command.Instance{Key: "bob", Complete: true}).
		Set(0, rci.StringValue(schema.TypeString, "Bob")))
	require.NoError(t, r.Err())

	saved, err := files.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)

	restarted, e2 := newStore(t)
	require.NoError(t, restarted.Restore(saved))
	assert.Equal(t, "Bob", get(t, restarted, "setting/users[bob]/fullname").Text)

	r = run(t, restarted, e2, command.New(rci.CommandQuerySetting).Group(groupUsers, command.Instance{}))
	require.Len(t, r.Groups, 1)
	assert.Equal(t, "bob", r.Groups[0].Key)
}

package rci_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

func element(name string, t schema.ElementType, access schema.Access) schema.Item {
	return schema.Item{Element: &schema.Element{Name: name, Type: t, Access: access}}
}

// testSchema has one collection of every shape.
//
//	settings 0 serial  fixed_array[2]       baud uint32
//	settings 1 users   variable_dictionary  fullname string
//	settings 2 routes  variable_array       dest ipv4, hops variable_array(addr ipv4)
//	settings 3 system  fixed_array[1]       offset int32, secret password (wo), uptime uint32 (ro), hostname string
func testSchema() *schema.Schema {
	return &schema.Schema{
		Errors: []string{"Flash write failed"},
		Settings: []*schema.Group{
			{Collection: schema.Collection{Name: "serial", Kind: schema.FixedArray, Instances: 2, Items: []schema.Item{
				element("baud", schema.TypeUint32, schema.AccessReadWrite),
			}}},
			{Collection: schema.Collection{Name: "users", Kind: schema.VariableDictionary, Items: []schema.Item{
				element("fullname", schema.TypeString, schema.AccessReadWrite),
			}}},
			{Collection: schema.Collection{Name: "routes", Kind: schema.VariableArray, Items: []schema.Item{
				element("dest", schema.TypeIPv4, schema.AccessReadWrite),
				{List: &schema.Collection{Name: "hops", Kind: schema.VariableArray, Items: []schema.Item{
					element("addr", schema.TypeIPv4, schema.AccessReadWrite),
				}}},
			}}},
			{Collection: schema.Collection{Name: "system", Kind: schema.FixedArray, Instances: 1, Items: []schema.Item{
				element("offset", schema.TypeInt32, schema.AccessReadWrite),
				element("secret", schema.TypePassword, schema.AccessWriteOnly),
				element("uptime", schema.TypeUint32, schema.AccessReadOnly),
				element("hostname", schema.TypeString, schema.AccessReadWrite),
			}}},
		},
		States: []*schema.Group{
			{Collection: schema.Collection{Name: "stats", Kind: schema.FixedArray, Instances: 1, Items: []schema.Item{
				element("rx", schema.TypeUint32, schema.AccessReadOnly),
			}}},
		},
	}
}

func instanceSuffix(a rci.Address) string {
	switch {
	case a.Key != "":
		return "[" + a.Key + "]"
	case a.Index > 0:
		return fmt.Sprintf("[%d]", a.Index)
	}
	return ""
}

// describe names a request the way the tests expect it.
func describe(req rci.Request, ctx *rci.Context) string {
	switch req {
	case rci.RequestGroupStart, rci.RequestGroupEnd, rci.RequestGroupInstanceRemove:
		return fmt.Sprintf("%s %d%s", req, ctx.Group.ID, instanceSuffix(ctx.Group))
	case rci.RequestGroupInstancesLock, rci.RequestGroupInstancesSet, rci.RequestGroupInstancesUnlock:
		return fmt.Sprintf("%s %d", req, ctx.Group.ID)
	case rci.RequestListStart, rci.RequestListEnd, rci.RequestListInstanceRemove:
		l := ctx.Level()
		return fmt.Sprintf("%s %d/%d%s", req, ctx.Depth, l.ID, instanceSuffix(l))
	case rci.RequestListInstancesLock, rci.RequestListInstancesSet, rci.RequestListInstancesUnlock:
		return fmt.Sprintf("%s %d/%d", req, ctx.Depth, ctx.Level().ID)
	case rci.RequestElementProcess:
		return fmt.Sprintf("%s %d/%d", req, ctx.Depth, ctx.Element.ID)
	}
	return req.String()
}

// recorder is a scriptable callback that logs every request it completes.
type recorder struct {
	events []string

	counts map[string]int
	keys   map[string][]string

	errors  map[string]rci.ErrorID
	compare map[string]bool
	abortOn string

	// busy is the number of Busy answers before each request completes.
	busy      int
	busySoFar int
	busyEvent string
	changed   bool

	sets     []rci.Value
	contexts []rci.Context
}

func (r *recorder) Handle(req rci.Request, ctx *rci.Context) rci.Result {
	ev := describe(req, ctx)
	if r.busy > 0 {
		if r.busySoFar == 0 {
			r.busyEvent = ev
		} else if r.busyEvent != ev {
			r.changed = true
		}
		if r.busySoFar < r.busy {
			r.busySoFar++
			return rci.Busy
		}
		r.busySoFar = 0
	}

	r.events = append(r.events, ev)
	r.contexts = append(r.contexts, *ctx)
	if ev == r.abortOn {
		return rci.Abort
	}
	if id, ok := r.errors[ev]; ok {
		ctx.Response.ErrorID = id
		ctx.Response.Hint = "injected"
	}
	if r.compare[ev] {
		ctx.Response.CompareMatches = true
	}

	switch req {
	case rci.RequestGroupInstancesLock, rci.RequestListInstancesLock:
		lvl := ctx.Level()
		if lvl.Dictionary() {
			ctx.Response.Keys = r.keys[lvl.Collection.Name]
		} else {
			ctx.Response.Count = r.counts[lvl.Collection.Name]
		}
	case rci.RequestGroupInstancesSet, rci.RequestListInstancesSet:
		ctx.Response.Keys = ctx.Instances.Keys
		ctx.Response.Count = ctx.Instances.Count
	case rci.RequestElementProcess:
		if ctx.Action == rci.ActionSet {
			r.sets = append(r.sets, ctx.Value)
		} else {
			ctx.Response.Value = valueFor(ctx)
			ctx.Response.HasValue = true
		}
	case rci.RequestDoCommand:
		ctx.Response.Value = rci.StringValue(schema.TypeString, ctx.Attributes.Target+":"+ctx.Value.Text)
		ctx.Response.HasValue = true
	}
	return rci.Continue
}

func valueFor(ctx *rci.Context) rci.Value {
	e := ctx.Element.Element
	lvl := ctx.Level()
	n := lvl.Index
	switch e.Type {
	case schema.TypeUint32:
		return rci.Uint32Value(e.Type, uint32(n*10))
	case schema.TypeInt32:
		return rci.Int32Value(int32(n * 10))
	case schema.TypeIPv4:
		return rci.StringValue(e.Type, fmt.Sprintf("10.0.%d.%d", ctx.Group.Index, n))
	}
	if lvl.Key != "" {
		return rci.StringValue(e.Type, strings.ToUpper(lvl.Key))
	}
	return rci.StringValue(e.Type, e.Name)
}

func newRecorder() *recorder {
	return &recorder{
		counts: map[string]int{"routes": 2, "hops": 1},
		keys:   map[string][]string{"users": {"alice", "bob"}},
	}
}

func newEngine(t *testing.T, s *schema.Schema, cb rci.Callback, config rci.Config, opts ...rci.Option) *rci.Engine {
	t.Helper()
	e, err := rci.NewEngine(s, cb, config, opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

// exchange feeds req in chunks of the given size through an output buffer
// of outSize bytes and returns the reply and the final status.
func exchange(t *testing.T, e *rci.Engine, req []byte, chunk, outSize int) ([]byte, rci.Status) {
	t.Helper()
	if chunk <= 0 || chunk > len(req) {
		chunk = len(req)
	}
	data, rest := req[:chunk], req[chunk:]
	out := make([]byte, outSize)
	var reply []byte

	action := rci.SessionStart
	for range 1_000_000 {
		res := e.Step(action, rci.Input{Data: data, Final: len(rest) == 0}, out)
		action = rci.SessionActive
		reply = append(reply, out[:res.Written]...)
		data = data[res.Read:]

		switch res.Status {
		case rci.StatusComplete, rci.StatusError:
			return reply, res.Status
		case rci.StatusInternalError:
			t.Fatalf("internal error after %d reply bytes", len(reply))
		case rci.StatusMoreInput:
			if len(data) != 0 {
				t.Fatalf("MORE_INPUT with %d unread bytes", len(data))
			}
			if len(rest) == 0 {
				t.Fatalf("MORE_INPUT after final chunk")
			}
			n := min(chunk, len(rest))
			data, rest = rest[:n], rest[n:]
		}
	}
	t.Fatalf("exchange did not finish")
	return nil, rci.StatusInternalError
}

func count(events []string, prefix string) int {
	n := 0
	for _, ev := range events {
		if strings.HasPrefix(ev, prefix+" ") || ev == prefix {
			n++
		}
	}
	return n
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events mismatch\ngot:\n  %s\nwant:\n  %s", strings.Join(got, "\n  "), strings.Join(want, "\n  "))
	}
}

package backend

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mash-protocol/rci-go/pkg/persistence"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Hints the store attaches to the errors it reports.
const (
	HintTooLong    = "Value too long"
	HintOutOfRange = "Value out of range"
	HintCapacity   = "Collection capacity exceeded"
	HintUnknownTgt = "Unknown target"
	HintSaveFailed = "Saving settings failed"
)

var _ rci.Callback = (*Store)(nil)
var _ rci.Rebooter = (*Store)(nil)

// Handle serves one engine request.
func (s *Store) Handle(req rci.Request, ctx *rci.Context) rci.Result {
	// Command targets may call back into the store.
	if req == rci.RequestDoCommand {
		s.doCommand(ctx)
		return rci.Continue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := ctx.UserData.(*sessionState)
	if sess == nil {
		sess = s.newSession()
		ctx.UserData = sess
	}

	switch req {
	case rci.RequestSessionStart:
		s.log.Debug("backend: session start", "session", sess.id)
	case rci.RequestSessionEnd:
		s.release(sess)
	case rci.RequestSessionCancel:
		s.undo(sess)
		s.release(sess)
		s.log.Debug("backend: session cancelled", "session", sess.id)

	case rci.RequestActionStart:
		if ctx.Action == rci.ActionSet {
			sess.resetUndo()
			sess.dirty = false
		}
	case rci.RequestActionEnd:
		return s.actionEnd(sess, ctx)

	case rci.RequestGroupInstancesLock, rci.RequestListInstancesLock:
		return s.lock(sess, ctx)
	case rci.RequestGroupInstancesSet, rci.RequestListInstancesSet:
		s.setInstances(sess, ctx)
	case rci.RequestGroupInstancesUnlock, rci.RequestListInstancesUnlock:
		s.unlock(sess, collectionPath(ctx))
	case rci.RequestGroupInstanceRemove, rci.RequestListInstanceRemove:
		s.remove(sess, ctx)

	case rci.RequestElementProcess:
		if ctx.Action == rci.ActionSet {
			s.set(sess, ctx)
		} else {
			s.query(ctx)
		}

	case rci.RequestReboot:
	case rci.RequestSetFactoryDefault:
		if err := s.factoryResetLocked(); err != nil {
			s.log.Error("backend: factory default", "error", err)
			ctx.Response.ErrorID = rci.ErrorBadValue
			ctx.Response.Hint = HintSaveFailed
		}
	}
	return rci.Continue
}

func (s *Store) actionEnd(sess *sessionState, ctx *rci.Context) rci.Result {
	if ctx.Action != rci.ActionSet {
		return rci.Continue
	}
	dirty := sess.dirty
	sess.resetUndo()
	sess.dirty = false
	if !dirty || ctx.GroupType != schema.GroupSetting {
		return rci.Continue
	}
	if err := s.commitLocked(); err != nil {
		s.log.Error("backend: commit", "session", sess.id, "error", err)
		ctx.Response.ErrorID = rci.ErrorBadValue
		ctx.Response.Hint = HintSaveFailed
	}
	return rci.Continue
}

// lock reports the instances of a variable collection. A collection held
// by another session is busy.
func (s *Store) lock(sess *sessionState, ctx *rci.Context) rci.Result {
	path := collectionPath(ctx)
	if owner, ok := s.owners[path]; ok && owner != sess {
		s.log.Debug("backend: collection busy", "path", path, "session", sess.id, "owner", owner.id)
		return rci.Busy
	}
	s.owners[path] = sess
	sess.locks[path]++

	inst := s.current.instances[path]
	if ctx.Level().Dictionary() {
		ctx.Response.Keys = slices.Clone(inst.Keys)
		if ctx.Response.Keys == nil {
			ctx.Response.Keys = []string{}
		}
	} else {
		ctx.Response.Count = inst.Count
	}
	return rci.Continue
}

func (s *Store) unlock(sess *sessionState, path string) {
	if sess.locks[path] == 0 {
		return
	}
	if sess.locks[path]--; sess.locks[path] == 0 {
		delete(sess.locks, path)
		delete(s.owners, path)
	}
}

func (s *Store) release(sess *sessionState) {
	for path := range sess.locks {
		delete(s.owners, path)
	}
	clear(sess.locks)
}

// setInstances resizes an array or replaces the key set of a dictionary.
// Instances that disappear lose their values.
func (s *Store) setInstances(sess *sessionState, ctx *rci.Context) {
	path := collectionPath(ctx)
	c := ctx.Level().Collection
	old := s.current.instances[path]

	if ctx.Level().Dictionary() {
		keys := slices.Clone(ctx.Instances.Keys)
		if c.Instances > 0 && len(keys) > c.Instances {
			ctx.Response.ErrorID = rci.ErrorInvalidName
			ctx.Response.Hint = HintCapacity
			return
		}
		for _, k := range old.Keys {
			if !slices.Contains(keys, k) {
				s.drop(sess, instancePath(path, 0, k))
			}
		}
		s.putInstances(sess, path, persistence.Instances{Keys: keys})
		ctx.Response.Keys = slices.Clone(keys)
	} else {
		n := ctx.Instances.Count
		if c.Instances > 0 && n > c.Instances {
			ctx.Response.ErrorID = rci.ErrorInvalidIndex
			ctx.Response.Hint = HintCapacity
			return
		}
		for i := n + 1; i <= old.Count; i++ {
			s.drop(sess, instancePath(path, i, ""))
		}
		s.putInstances(sess, path, persistence.Instances{Count: n})
		ctx.Response.Count = n
	}
}

func (s *Store) remove(sess *sessionState, ctx *rci.Context) {
	path := collectionPath(ctx)
	key := ctx.Level().Key
	inst := s.current.instances[path]
	if !slices.Contains(inst.Keys, key) {
		ctx.Response.ErrorID = rci.ErrorInvalidName
		return
	}
	s.drop(sess, instancePath(path, 0, key))
	inst.Keys = slices.DeleteFunc(slices.Clone(inst.Keys), func(k string) bool { return k == key })
	s.putInstances(sess, path, inst)
}

func (s *Store) query(ctx *rci.Context) {
	el := ctx.Element.Element
	path := elementPath(ctx)
	src := ctx.Attributes.Source
	if ctx.GroupType == schema.GroupState {
		src = rci.SourceCurrent
	}
	v := s.lookup(s.source(src), path, el)

	if cmp := ctx.Attributes.CompareTo; cmp != rci.CompareNone && ctx.GroupType == schema.GroupSetting {
		other := s.lookup(s.source(rci.Source(cmp-1)), path, el)
		if v.Equal(other) {
			ctx.Response.CompareMatches = true
			return
		}
	}
	ctx.Response.Value = v
	ctx.Response.HasValue = true
}

func (s *Store) set(sess *sessionState, ctx *rci.Context) {
	el := ctx.Element.Element
	v := transform(ctx.Value)
	if id, hint := validate(el, v); id != rci.ErrorNone {
		ctx.Response.ErrorID = id
		ctx.Response.Hint = hint
		return
	}
	s.putValue(sess, elementPath(ctx), entry{value: v, element: el})
	ctx.Response.Value = v
	ctx.Response.HasValue = true
}

// transform normalizes a value before it is applied.
func transform(v rci.Value) rci.Value {
	switch v.Type {
	case schema.TypeString, schema.TypeFQDNv4, schema.TypeFQDNv6:
		v.Text = strings.TrimSpace(v.Text)
	case schema.TypeMultilineString:
		v.Text = strings.TrimRight(v.Text, " \t\r\n")
	}
	return v
}

func validate(el *schema.Element, v rci.Value) (rci.ErrorID, string) {
	if el.MaxLength > 0 && el.Type.IsString() && utf8.RuneCountInString(v.Text) > el.MaxLength {
		return rci.ErrorBadValue, HintTooLong
	}
	if el.Min == nil && el.Max == nil {
		return rci.ErrorNone, ""
	}
	var n float64
	switch {
	case el.Type == schema.TypeInt32:
		n = float64(v.Signed)
	case el.Type == schema.TypeFloat:
		n = float64(v.Float)
	case el.Type.IsUnsigned():
		n = float64(v.Unsigned)
	default:
		return rci.ErrorNone, ""
	}
	if (el.Min != nil && n < *el.Min) || (el.Max != nil && n > *el.Max) {
		return rci.ErrorBadValue, HintOutOfRange
	}
	return rci.ErrorNone, ""
}

func (s *Store) doCommand(ctx *rci.Context) {
	fn, ok := s.commands[ctx.Attributes.Target]
	if !ok {
		ctx.Response.ErrorID = rci.ErrorBadValue
		ctx.Response.Hint = HintUnknownTgt
		return
	}
	out, err := fn(ctx.Value.Text)
	if err != nil {
		ctx.Response.ErrorID = rci.ErrorBadValue
		ctx.Response.Hint = err.Error()
		return
	}
	ctx.Response.Value = rci.StringValue(schema.TypeString, out)
	ctx.Response.HasValue = true
}

package rci

import (
	"errors"
	"slices"

	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// selection is what a request addressed in a group or list header.
type selection struct {
	index int
	key   string
	keyed bool

	count  int
	resize bool
	shrink bool

	complete bool
	remove   bool
}

func defaultSelection() selection { return selection{shrink: true} }

// field is one decoded request field.
type field struct {
	end  bool
	id   int
	item schema.Item
	sel  selection

	value Value

	// invalid is a recoverable error found while decoding the value.
	invalid ErrorID
	hint    string
}

func startRequest(d int) Request {
	if d == 0 {
		return RequestGroupStart
	}
	return RequestListStart
}

func endRequest(d int) Request {
	if d == 0 {
		return RequestGroupEnd
	}
	return RequestListEnd
}

func lockRequest(d int) Request {
	if d == 0 {
		return RequestGroupInstancesLock
	}
	return RequestListInstancesLock
}

func setRequest(d int) Request {
	if d == 0 {
		return RequestGroupInstancesSet
	}
	return RequestListInstancesSet
}

func unlockRequest(d int) Request {
	if d == 0 {
		return RequestGroupInstancesUnlock
	}
	return RequestListInstancesUnlock
}

func removeRequest(d int) Request {
	if d == 0 {
		return RequestGroupInstanceRemove
	}
	return RequestListInstanceRemove
}

func (s *session) isSet() bool { return s.ctx.Action == ActionSet }

// groups walks the group section of a query or set.
func (s *session) groups() error {
	for first := true; ; first = false {
		m, err := s.readModifier()
		if err != nil {
			return err
		}
		if m.IsTerminator() {
			if !first {
				return nil
			}
			if s.isSet() {
				return s.fail(ErrorBadCommand, HintEmptyGroup)
			}
			return s.allGroups()
		}
		if m.Kind != ber.KindValue || m.Value > 0xFFFFFFFF {
			return s.fail(ErrorBadDescriptor, "")
		}

		id, hasAttr, isErr := ber.SplitGroup(uint32(m.Value))
		g, ok := s.engine.schema.Group(s.ctx.GroupType, int(id))
		if !ok || isErr {
			return s.fail(ErrorBadDescriptor, "")
		}
		sel := defaultSelection()
		if hasAttr {
			if sel, err = s.readSelection(&g.Collection); err != nil {
				return err
			}
		}
		s.ctx.GroupEntry = g
		if err := s.collection(0, int(id), &g.Collection, sel, true); err != nil {
			return err
		}
	}
}

func (s *session) allGroups() error {
	for id, g := range s.engine.schema.Groups(s.ctx.GroupType) {
		s.ctx.GroupEntry = g
		if err := s.collection(0, id, &g.Collection, defaultSelection(), false); err != nil {
			return err
		}
	}
	return nil
}

// collection processes a group (d == 0) or a list (d > 0). With fromInput
// the instance body is read from the request; otherwise every element is
// visited.
func (s *session) collection(d, id int, c *schema.Collection, sel selection, fromInput bool) error {
	if d > s.maxDepth {
		return s.fail(ErrorBadDescriptor, HintMismatch)
	}
	s.ctx.Depth = d
	*s.ctx.address(d) = Address{ID: id, Collection: c}

	explicit := sel.index > 0 || sel.keyed
	if !explicit && s.isSet() {
		if c.Kind.IsDictionary() {
			sel.keyed = true
		} else {
			sel.index = 1
		}
		explicit = true
	}
	if !explicit && fromInput {
		if err := s.skipBody(d, c); err != nil {
			return err
		}
		fromInput = false
	}

	lv := &s.levels[d]
	if c.Kind.IsVariable() {
		ok, err := s.lock(d, id, c, sel)
		if err != nil || !ok {
			if err == nil && fromInput {
				err = s.skipBody(d, c)
			}
			return err
		}
	} else {
		if err := s.unlock(d, nil); err != nil {
			return err
		}
		s.ctx.Depth = d
		*s.ctx.address(d) = Address{ID: id, Collection: c}
		lv.dict = c.Kind.IsDictionary()
		lv.count = c.Instances
		lv.keys = c.Keys
		lv.fresh = false
	}

	if sel.remove {
		return s.remove(d, id, c, sel, fromInput)
	}

	if explicit {
		inst := instanceRef{index: sel.index, key: sel.key}
		return s.instance(d, id, c, inst, lv.fresh && !lv.dict, fromInput)
	}

	n := lv.instances()
	if n == 0 {
		return s.emptyHeader(d, id, c)
	}
	for i := range n {
		inst := instanceRef{index: i + 1}
		if lv.dict {
			inst = instanceRef{key: lv.keys[i]}
		}
		if err := s.instance(d, id, c, inst, i == 0 && c.Kind.IsVariable(), false); err != nil {
			return err
		}
	}
	return nil
}

// lock takes the instance lock of a variable collection, releasing a lock on
// a different collection at the same depth, and applies a requested resize.
// It returns false when the collection must be skipped.
func (s *session) lock(d, id int, c *schema.Collection, sel selection) (bool, error) {
	lv := &s.levels[d]
	if lv.locked && (lv.lockAddr.ID != id || lv.lockAddr.Collection != c) {
		if err := s.unlock(d, nil); err != nil {
			return false, err
		}
	}
	s.ctx.Depth = d
	addr := s.ctx.address(d)
	*addr = Address{ID: id, Collection: c}

	if !lv.locked {
		s.ctx.Instances = Instances{Count: sel.count, Shrink: sel.shrink}
		if err := s.call(lockRequest(d)); err != nil {
			return false, err
		}
		resp := s.ctx.Response
		lv.locked = true
		lv.lockAddr = *addr
		lv.dict = c.Kind.IsDictionary()
		lv.fresh = true
		lv.count, lv.keys = 0, nil
		if resp.ErrorID != ErrorNone {
			return false, s.report(resp)
		}
		if lv.dict {
			lv.keys = slices.Clone(resp.Keys)
			if lv.keys == nil {
				lv.keys = []string{}
			}
		} else {
			lv.count = resp.Count
		}
	}

	switch {
	case !lv.dict && sel.resize:
		if lv.count == sel.count || (!sel.shrink && lv.count > sel.count) {
			break
		}
		s.ctx.Instances = Instances{Count: sel.count, Shrink: sel.shrink}
		if err := s.call(setRequest(d)); err != nil {
			return false, err
		}
		resp := s.ctx.Response
		if resp.ErrorID != ErrorNone {
			lv.count = 0
			return false, s.report(resp)
		}
		lv.count = sel.count
		lv.fresh = true
	case lv.dict && sel.complete && sel.key != "":
		keys := slices.Clone(lv.keys)
		if !slices.Contains(keys, sel.key) {
			keys = append(keys, sel.key)
		}
		s.ctx.Instances = Instances{Count: len(keys), Keys: keys, Shrink: sel.shrink}
		if err := s.call(setRequest(d)); err != nil {
			return false, err
		}
		resp := s.ctx.Response
		if resp.ErrorID != ErrorNone {
			lv.keys = []string{}
			return false, s.report(resp)
		}
		if resp.Keys != nil {
			keys = slices.Clone(resp.Keys)
		}
		lv.keys = keys
		lv.fresh = true
	}
	s.ctx.Instances = Instances{Count: lv.count, Keys: lv.keys, Shrink: sel.shrink}
	return true, nil
}

// unlock releases a lock held at depth d, passing err through.
func (s *session) unlock(d int, err error) error {
	if d > MaxListDepth {
		return err
	}
	lv := &s.levels[d]
	if !lv.locked {
		return err
	}
	lv.locked = false

	saved, savedDepth := *s.ctx.address(d), s.ctx.Depth
	s.ctx.Depth = d
	*s.ctx.address(d) = lv.lockAddr
	s.ctx.Instances = Instances{Count: lv.count, Keys: lv.keys}
	err = s.closing(unlockRequest(d), err)
	*s.ctx.address(d) = saved
	s.ctx.Depth = savedDepth
	return err
}

// remove deletes one dictionary instance.
func (s *session) remove(d, id int, c *schema.Collection, sel selection, fromInput bool) error {
	inst := instanceRef{key: sel.key}
	if errID := s.checkInstance(d, inst); errID != ErrorNone {
		if err := s.header(d, id, c, inst, false, errID, ""); err != nil {
			return err
		}
		if err := s.closeLevel(); err != nil {
			return err
		}
	} else {
		s.ctx.Depth = d
		s.ctx.address(d).Key = sel.key
		if err := s.call(removeRequest(d)); err != nil {
			return err
		}
		if resp := s.ctx.Response; resp.ErrorID != ErrorNone {
			if err := s.report(resp); err != nil {
				return err
			}
		} else {
			lv := &s.levels[d]
			lv.keys = slices.DeleteFunc(slices.Clone(lv.keys), func(k string) bool { return k == sel.key })
			if err := s.removedHeader(d, id, sel.key); err != nil {
				return err
			}
		}
	}
	if fromInput {
		return s.skipBody(d, c)
	}
	return nil
}

func (s *session) checkInstance(d int, inst instanceRef) ErrorID {
	lv := &s.levels[d]
	if lv.dict {
		switch {
		case inst.key == "":
			return ErrorMissingName
		case !slices.Contains(lv.keys, inst.key):
			return ErrorInvalidName
		}
		return ErrorNone
	}
	if inst.index < 1 || inst.index > lv.count {
		return ErrorInvalidIndex
	}
	return ErrorNone
}

// instance processes one instance: start, header, body, end.
func (s *session) instance(d, id int, c *schema.Collection, inst instanceRef, showCount, fromInput bool) error {
	s.ctx.Depth = d
	addr := s.ctx.address(d)
	addr.Index, addr.Key = inst.index, inst.key

	if errID := s.checkInstance(d, inst); errID != ErrorNone {
		if err := s.header(d, id, c, inst, showCount, errID, ""); err != nil {
			return err
		}
		if err := s.closeLevel(); err != nil {
			return err
		}
		if fromInput {
			return s.skipBody(d, c)
		}
		return nil
	}

	if err := s.call(startRequest(d)); err != nil {
		return err
	}
	resp := s.ctx.Response
	if resp.ErrorID != ErrorNone {
		if err := s.header(d, id, c, inst, showCount, resp.ErrorID, resp.Hint); err != nil {
			return err
		}
		var failed error
		if resp.ErrorID.IsFatal() {
			failed = &fault{id: resp.ErrorID, hint: resp.Hint}
		}
		failed = s.closing(endRequest(d), failed)
		if errors.Is(failed, errHalted) {
			return failed
		}
		if err := s.closeLevel(); err != nil {
			return err
		}
		if failed == nil && fromInput {
			return s.skipBody(d, c)
		}
		return failed
	}
	if resp.CompareMatches && !s.isSet() {
		if err := s.closing(endRequest(d), nil); err != nil {
			return err
		}
		if fromInput {
			return s.skipBody(d, c)
		}
		return nil
	}

	if err := s.header(d, id, c, inst, showCount, ErrorNone, ""); err != nil {
		return err
	}
	err := s.body(d, c, fromInput)
	if errors.Is(err, errHalted) {
		return err
	}
	err = s.unlock(d+1, err)
	if errors.Is(err, errHalted) {
		return err
	}
	s.ctx.Depth = d
	*addr = Address{ID: id, Collection: c, Index: inst.index, Key: inst.key}
	s.ctx.Element = ElementRef{}
	err = s.closing(endRequest(d), err)
	if errors.Is(err, errHalted) {
		return err
	}
	if cerr := s.closeLevel(); cerr != nil {
		return cerr
	}
	return err
}

// body processes the fields of an instance.
func (s *session) body(d int, c *schema.Collection, fromInput bool) error {
	if !fromInput {
		return s.allElements(d, c)
	}
	for first := true; ; first = false {
		f, err := s.readField(d, c)
		if err != nil {
			return err
		}
		if f.end {
			if !first {
				return nil
			}
			if s.isSet() {
				return s.fail(ErrorBadCommand, HintEmptyElement)
			}
			return s.allElements(d, c)
		}
		if f.item.List != nil {
			err = s.collection(d+1, f.id, f.item.List, f.sel, true)
		} else {
			if err = s.unlock(d+1, nil); err == nil {
				err = s.element(d, f)
			}
		}
		if err != nil {
			return err
		}
	}
}

// allElements visits every item of an instance, leaving out write-only
// elements.
func (s *session) allElements(d int, c *schema.Collection) error {
	for id, item := range c.Items {
		var err error
		switch {
		case item.List != nil:
			err = s.collection(d+1, id, item.List, defaultSelection(), false)
		case !item.Readable():
			continue
		default:
			if err = s.unlock(d+1, nil); err == nil {
				err = s.element(d, field{id: id, item: item})
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// element runs ELEMENT_PROCESS for one element and writes its reply field.
func (s *session) element(d int, f field) error {
	e := f.item.Element
	s.ctx.Depth = d
	s.ctx.Element = ElementRef{ID: f.id, Element: e}

	switch {
	case f.invalid != ErrorNone:
		return s.field(f.id, nil, f.invalid, f.hint)
	case s.isSet() && !e.Access.CanWrite():
		return s.field(f.id, nil, ErrorBadValue, HintReadOnly)
	case !s.isSet() && !e.Access.CanRead():
		return s.field(f.id, nil, ErrorBadValue, HintWriteOnly)
	}

	if s.isSet() {
		s.ctx.Value = f.value
	} else {
		s.ctx.Value = Value{}
	}
	if err := s.call(RequestElementProcess); err != nil {
		return err
	}
	resp := s.ctx.Response
	if resp.ErrorID != ErrorNone {
		if err := s.field(f.id, nil, resp.ErrorID, resp.Hint); err != nil {
			return err
		}
		if resp.ErrorID.IsFatal() {
			return &fault{id: resp.ErrorID, hint: resp.Hint}
		}
		return nil
	}

	if s.isSet() {
		if s.ctx.Attributes.EmbedTransformed && resp.HasValue {
			return s.reply(f.id, e, resp.Value)
		}
		return s.field(f.id, nil, ErrorNone, "")
	}
	if resp.CompareMatches {
		return nil
	}
	if !resp.HasValue {
		return s.field(f.id, nil, ErrorNone, "")
	}
	return s.reply(f.id, e, resp.Value)
}

// reply writes a value returned by the callback. An untyped value takes the
// element type; a value of another type is refused.
func (s *session) reply(id int, e *schema.Element, v Value) error {
	if v.Type != schema.TypeNone && v.Type != e.Type {
		return s.field(id, nil, ErrorBadValue, HintValueType)
	}
	v.Type = e.Type
	return s.field(id, &v, ErrorNone, "")
}

// readField decodes the next field of an instance body.
func (s *session) readField(d int, c *schema.Collection) (field, error) {
	m, err := s.readModifier()
	if err != nil {
		return field{}, err
	}
	if m.IsTerminator() {
		return field{end: true}, nil
	}
	if m.Kind != ber.KindValue || m.Value > 0xFFFFFFFF {
		return field{}, s.fail(ErrorBadDescriptor, "")
	}
	id, flags := ber.SplitField(uint32(m.Value))
	item, ok := c.Item(int(id))
	if !ok || flags.Error {
		return field{}, s.fail(ErrorBadDescriptor, "")
	}
	f := field{id: int(id), item: item, sel: defaultSelection()}

	if flags.Typed {
		t, err := s.readUint()
		if err != nil {
			return f, err
		}
		if schema.ElementType(t) != item.Type() {
			return f, s.fail(ErrorBadDescriptor, HintMismatch)
		}
	}

	if item.List != nil {
		if d+1 > s.maxDepth {
			return f, s.fail(ErrorBadDescriptor, HintMismatch)
		}
		if flags.Attribute {
			f.sel, err = s.readSelection(item.List)
		}
		return f, err
	}
	if flags.Attribute {
		return f, s.fail(ErrorBadDescriptor, "")
	}
	return s.readValue(f)
}

// readValue decodes the value of an element field. Queries carry NO_VALUE;
// a set with NO_VALUE yields the type's zero value.
func (s *session) readValue(f field) (field, error) {
	e := f.item.Element
	m, err := s.readModifier()
	if err != nil {
		return f, err
	}
	if m.IsNoValue() {
		f.value = ZeroValue(e.Type)
		return f, nil
	}
	if !s.isSet() || m.Kind != ber.KindValue || m.Value > 0xFFFFFFFF {
		return f, s.fail(ErrorBadDescriptor, "")
	}

	if StringEncoded(e.Type) {
		text, err := s.readText(int(m.Value))
		if err != nil {
			return f, err
		}
		v, ok := ValueFromBytes(e.Type, []byte(text))
		if !ok {
			return f, s.fail(ErrorFatalBadValue, "")
		}
		f.value = v
		return f, nil
	}

	v, ok := ValueFromUint(e.Type, uint32(m.Value))
	if !ok {
		return f, s.fail(ErrorFatalBadValue, "")
	}
	if e.Type == schema.TypeEnum && int(v.Unsigned) >= len(e.Enum) {
		f.invalid, f.hint = ErrorBadValue, HintEnumRange
	}
	f.value = v
	return f, nil
}

// readSelection decodes the attribute token of a group or list header.
func (s *session) readSelection(c *schema.Collection) (selection, error) {
	sel := defaultSelection()
	tok, err := s.readUint()
	if err != nil {
		return sel, err
	}
	dict := c.Kind.IsDictionary()
	a := ber.DecodeAttribute(tok)
	switch a.Type {
	case ber.AttributeIndex:
		if dict {
			return sel, s.fail(ErrorBadDescriptor, HintMismatch)
		}
		sel.index = int(a.Value)
		return sel, nil
	case ber.AttributeName:
		if !dict || a.Value > maxKeyLength {
			return sel, s.fail(ErrorBadDescriptor, HintMismatch)
		}
		sel.key, err = s.readText(int(a.Value))
		sel.keyed = true
		return sel, err
	case ber.AttributeCount:
		if dict || !s.isSet() || c.Kind != schema.VariableArray {
			return sel, s.fail(ErrorBadDescriptor, HintMismatch)
		}
		sel.count, sel.resize = int(a.Value), true
		return sel, nil
	}

	for range a.Value {
		aid, err := s.readUint()
		if err != nil {
			return sel, err
		}
		if aid != attrIndex && (!s.isSet() || !c.Kind.IsVariable()) {
			return sel, s.fail(ErrorBadDescriptor, HintMismatch)
		}
		if dict && aid == attrName {
			if sel.key, err = s.readString(maxKeyLength); err != nil {
				return sel, err
			}
			sel.keyed = true
			continue
		}
		v, err := s.readUint()
		if err != nil {
			return sel, err
		}
		switch {
		case !dict && aid == attrIndex:
			sel.index = int(v)
		case !dict && aid == attrCount:
			sel.count, sel.resize = int(v), true
		case !dict && aid == attrShrink:
			sel.shrink = v != 0
		case dict && aid == attrComplete:
			sel.complete = v != 0
		case dict && aid == attrRemove:
			sel.remove = v != 0
		default:
			return sel, s.fail(ErrorBadDescriptor, HintMismatch)
		}
	}
	return sel, nil
}

// skipBody reads an instance body without traversing it.
func (s *session) skipBody(d int, c *schema.Collection) error {
	for {
		f, err := s.readField(d, c)
		if err != nil {
			return err
		}
		if f.end {
			return nil
		}
		if f.item.List != nil {
			if err := s.skipBody(d+1, f.item.List); err != nil {
				return err
			}
		}
	}
}

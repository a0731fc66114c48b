package backend

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mash-protocol/rci-go/pkg/persistence"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Saver persists the stored settings. Implemented by
// *persistence.SettingsStore.
type Saver interface {
	Save(settings *persistence.Settings) error
}

// CommandFunc serves one do_command target.
type CommandFunc func(payload string) (string, error)

// Option configures a Store.
type Option func(*Store)

// WithSaver commits stored settings through sv.
func WithSaver(sv Saver) Option {
	return func(s *Store) { s.saver = sv }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithCommand registers a do_command target.
func WithCommand(target string, fn CommandFunc) Option {
	return func(s *Store) { s.commands[target] = fn }
}

// WithRebootHook sets the function Reboot runs.
func WithRebootHook(fn func() error) Option {
	return func(s *Store) { s.reboot = fn }
}

type entry struct {
	value   rci.Value
	element *schema.Element
}

type dataset struct {
	values    map[string]entry
	instances map[string]persistence.Instances
}

func newDataset() *dataset {
	return &dataset{values: map[string]entry{}, instances: map[string]persistence.Instances{}}
}

func (d *dataset) clone() *dataset {
	c := &dataset{values: maps.Clone(d.values), instances: make(map[string]persistence.Instances, len(d.instances))}
	for k, v := range d.instances {
		c.instances[k] = persistence.Instances{Count: v.Count, Keys: slices.Clone(v.Keys)}
	}
	return c
}

// settingsOnly returns a copy without state paths.
func (d *dataset) settingsOnly() *dataset {
	c := d.clone()
	state := prefix(schema.GroupState) + "/"
	maps.DeleteFunc(c.values, func(p string, _ entry) bool { return strings.HasPrefix(p, state) })
	maps.DeleteFunc(c.instances, func(p string, _ persistence.Instances) bool { return strings.HasPrefix(p, state) })
	return c
}

// sessionState is kept in rci.Context.UserData.
type sessionState struct {
	id    string
	locks map[string]int
	dirty bool

	// Prior current values of everything a set command touched, for undo
	// on cancel. Nil pointers mark paths that did not exist.
	undoValues    map[string]*entry
	undoInstances map[string]*persistence.Instances
}

func (ss *sessionState) resetUndo() {
	ss.undoValues = map[string]*entry{}
	ss.undoInstances = map[string]*persistence.Instances{}
}

// Store is a schema-driven configuration backend. It is safe for use by
// several engines at once.
type Store struct {
	schema   *schema.Schema
	saver    Saver
	log      *slog.Logger
	commands map[string]CommandFunc
	reboot   func() error

	mu      sync.Mutex
	current *dataset
	stored  *dataset
	owners  map[string]*sessionState
}

// New returns a store holding the schema defaults. It fails when a default
// does not parse as its element type.
func New(s *schema.Schema, opts ...Option) (*Store, error) {
	st := &Store{
		schema:   s,
		log:      slog.Default(),
		commands: map[string]CommandFunc{},
		current:  newDataset(),
		stored:   newDataset(),
		owners:   map[string]*sessionState{},
	}
	st.commands[""] = echo
	st.commands["echo"] = echo
	for _, opt := range opts {
		opt(st)
	}
	if err := checkDefaults(s); err != nil {
		return nil, err
	}
	return st, nil
}

func echo(payload string) (string, error) { return payload, nil }

func checkDefaults(s *schema.Schema) error {
	var walk func(c *schema.Collection, path string) error
	walk = func(c *schema.Collection, path string) error {
		for _, it := range c.Items {
			if it.List != nil {
				if err := walk(it.List, path+"/"+it.List.Name); err != nil {
					return err
				}
				continue
			}
			if _, err := defaultValue(it.Element); err != nil {
				return fmt.Errorf("backend: default of %s/%s: %w", path, it.Element.Name, err)
			}
		}
		return nil
	}
	for _, g := range append(slices.Clone(s.Settings), s.States...) {
		if err := walk(&g.Collection, g.Name); err != nil {
			return err
		}
	}
	return nil
}

func defaultValue(el *schema.Element) (rci.Value, error) {
	if el.Default == "" {
		return rci.ZeroValue(el.Type), nil
	}
	return rci.ParseValue(el.Type, el.Default, el.Enum)
}

// Schema returns the store's schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Restore replaces the current and stored values with a persisted snapshot.
// Entries that no longer fit the schema are skipped and logged.
func (s *Store) Restore(settings *persistence.Settings) error {
	if settings == nil {
		return nil
	}
	d := newDataset()
	for path, text := range settings.Values {
		el, err := resolve(s.schema, path)
		if err != nil {
			s.log.Warn("backend: dropping stored value", "path", path, "error", err)
			continue
		}
		v, err := rci.ParseValue(el.Type, text, el.Enum)
		if err != nil {
			s.log.Warn("backend: dropping stored value", "path", path, "error", err)
			continue
		}
		d.values[path] = entry{value: v, element: el}
	}
	for path, inst := range settings.Instances {
		d.instances[path] = persistence.Instances{Count: inst.Count, Keys: slices.Clone(inst.Keys)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	states := s.current.clone()
	s.stored = d
	s.current = d.clone()
	state := prefix(schema.GroupState) + "/"
	for p, e := range states.values {
		if strings.HasPrefix(p, state) {
			s.current.values[p] = e
		}
	}
	return nil
}

// Snapshot returns the stored settings in persistent form.
func (s *Store) Snapshot() *persistence.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *persistence.Settings {
	out := &persistence.Settings{
		Schema:    s.schema.Version,
		Values:    make(map[string]string, len(s.stored.values)),
		Instances: make(map[string]persistence.Instances, len(s.stored.instances)),
	}
	for p, e := range s.stored.values {
		out.Values[p] = e.value.Format(e.element.Enum)
	}
	for p, inst := range s.stored.instances {
		out.Instances[p] = persistence.Instances{Count: inst.Count, Keys: slices.Clone(inst.Keys)}
	}
	return out
}

// Get returns the current value at path, falling back to the default.
func (s *Store) Get(path string) (rci.Value, error) {
	el, err := resolve(s.schema, path)
	if err != nil {
		return rci.Value{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(s.current, path, el), nil
}

// GetText returns the current value at path in display form.
func (s *Store) GetText(path string) (string, error) {
	el, err := resolve(s.schema, path)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(s.current, path, el).Format(el.Enum), nil
}

// SetText parses text for the element at path and makes it the current
// value. Settings changed this way are committed at once.
func (s *Store) SetText(path, text string) error {
	el, err := resolve(s.schema, path)
	if err != nil {
		return err
	}
	v, err := rci.ParseValue(el.Type, text, el.Enum)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.values[path] = entry{value: v, element: el}
	if strings.HasPrefix(path, prefix(schema.GroupSetting)+"/") {
		return s.commitLocked()
	}
	return nil
}

// SetState publishes the value of a state element.
func (s *Store) SetState(path string, v rci.Value) error {
	if !strings.HasPrefix(path, prefix(schema.GroupState)+"/") {
		return fmt.Errorf("%w: %q is not a state path", ErrBadPath, path)
	}
	el, err := resolve(s.schema, path)
	if err != nil {
		return err
	}
	v.Type = el.Type
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.values[path] = entry{value: v, element: el}
	return nil
}

// Dump returns the current values that differ from their defaults, by
// path, in display form.
func (s *Store) Dump() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.current.values))
	for p, e := range s.current.values {
		lines = append(lines, p+" = "+e.value.Format(e.element.Enum))
	}
	sort.Strings(lines)
	return lines
}

// FactoryReset drops all current and stored settings and commits the
// empty snapshot.
func (s *Store) FactoryReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factoryResetLocked()
}

func (s *Store) factoryResetLocked() error {
	states := s.current.clone()
	s.current = newDataset()
	state := prefix(schema.GroupState) + "/"
	for p, e := range states.values {
		if strings.HasPrefix(p, state) {
			s.current.values[p] = e
		}
	}
	return s.commitLocked()
}

// Reboot runs the reboot hook after a successful reboot command.
// Implements rci.Rebooter.
func (s *Store) Reboot() rci.Result {
	if s.reboot == nil {
		return rci.Continue
	}
	if err := s.reboot(); err != nil {
		s.log.Error("backend: reboot failed", "error", err)
		return rci.Abort
	}
	return rci.Continue
}

// commitLocked makes the current settings the stored ones and saves them.
func (s *Store) commitLocked() error {
	s.stored = s.current.settingsOnly()
	if s.saver == nil {
		return nil
	}
	if err := s.saver.Save(s.snapshotLocked()); err != nil {
		return fmt.Errorf("backend: save settings: %w", err)
	}
	return nil
}

// lookup reads path from d; a nil dataset reads the defaults.
func (s *Store) lookup(d *dataset, path string, el *schema.Element) rci.Value {
	if d != nil {
		if e, ok := d.values[path]; ok {
			return e.value
		}
	}
	v, err := defaultValue(el)
	if err != nil {
		return rci.ZeroValue(el.Type)
	}
	return v
}

func (s *Store) source(src rci.Source) *dataset {
	switch src {
	case rci.SourceStored:
		return s.stored
	case rci.SourceDefaults:
		return nil
	default:
		return s.current
	}
}

func (s *Store) newSession() *sessionState {
	ss := &sessionState{id: uuid.NewString(), locks: map[string]int{}}
	ss.resetUndo()
	return ss
}

// putValue changes a current value, remembering the old one.
func (s *Store) putValue(sess *sessionState, path string, e entry) {
	if _, seen := sess.undoValues[path]; !seen {
		var prev *entry
		if old, ok := s.current.values[path]; ok {
			prev = &old
		}
		sess.undoValues[path] = prev
	}
	s.current.values[path] = e
	sess.dirty = true
}

// putInstances changes the instances of a collection, remembering the old
// ones.
func (s *Store) putInstances(sess *sessionState, path string, inst persistence.Instances) {
	s.saveInstances(sess, path)
	s.current.instances[path] = inst
	sess.dirty = true
}

func (s *Store) saveInstances(sess *sessionState, path string) {
	if _, seen := sess.undoInstances[path]; seen {
		return
	}
	var prev *persistence.Instances
	if old, ok := s.current.instances[path]; ok {
		prev = &persistence.Instances{Count: old.Count, Keys: slices.Clone(old.Keys)}
	}
	sess.undoInstances[path] = prev
}

// drop removes every value and collection inside the instance at inst.
func (s *Store) drop(sess *sessionState, inst string) {
	for p := range s.current.values {
		if under(p, inst) {
			if _, seen := sess.undoValues[p]; !seen {
				old := s.current.values[p]
				sess.undoValues[p] = &old
			}
			delete(s.current.values, p)
		}
	}
	for p := range s.current.instances {
		if under(p, inst) {
			s.saveInstances(sess, p)
			delete(s.current.instances, p)
		}
	}
	sess.dirty = true
}

// undo restores what the session changed since its set command started.
func (s *Store) undo(sess *sessionState) {
	for p, prev := range sess.undoValues {
		if prev == nil {
			delete(s.current.values, p)
		} else {
			s.current.values[p] = *prev
		}
	}
	for p, prev := range sess.undoInstances {
		if prev == nil {
			delete(s.current.instances, p)
		} else {
			s.current.instances[p] = *prev
		}
	}
	sess.resetUndo()
	sess.dirty = false
}

package suite

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
)

// ClassState is the state shared by every suite instance of one class
// group: the LIFO cleanup registry and the setup-completed marker that
// gates teardown.
type ClassState struct {
	mu        sync.Mutex
	cleanups  []func() error
	setupDone bool
}

// NewClassState creates the shared state for one class group.
func NewClassState() *ClassState {
	return &ClassState{}
}

func (c *ClassState) addCleanup(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// DrainCleanups runs every registered cleanup task in reverse
// registration order. A failing task is collected, not re-raised, and
// never stops the remaining tasks. The registry is empty afterwards.
func (c *ClassState) DrainCleanups() []error {
	c.mu.Lock()
	tasks := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	var errs []error
	for i := len(tasks) - 1; i >= 0; i-- {
		if err := runCleanup(tasks[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runCleanup(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panic: %v", r)
		}
	}()
	return fn()
}

// MarkSetupCompleted records that class setup finished cleanly, so
// teardown is attempted later.
func (c *ClassState) MarkSetupCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setupDone = true
}

// SetupCompleted reports whether class setup ran to completion.
func (c *ClassState) SetupCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setupDone
}

// Fixture is the embeddable base every registered suite must carry. It
// gives suite code its logger, its config access, and the class-scoped
// cleanup registry.
type Fixture struct {
	class  *ClassState
	logger *slog.Logger
	cfg    Config
}

// AddClassCleanup registers a task to run after the class's tests and
// before class teardown, in reverse registration order. Tasks may be
// registered during class setup or at any point before teardown.
func (f *Fixture) AddClassCleanup(fn func() error) {
	if f.class == nil {
		panic("suite: AddClassCleanup called on an unbound suite")
	}
	f.class.addCleanup(fn)
}

// Logger returns the suite's scoped logger. Records logged through it
// while a test runs are captured onto that test's log.
func (f *Fixture) Logger() *slog.Logger {
	if f.logger == nil {
		return slog.Default()
	}
	return f.logger
}

// Config returns the resolved test configuration.
func (f *Fixture) Config() Config {
	if f.cfg == nil {
		return emptyConfig{}
	}
	return f.cfg
}

func (f *Fixture) bind(cs *ClassState, lg *slog.Logger, cfg Config) {
	f.class = cs
	f.logger = lg
	f.cfg = cfg
}

type binder interface {
	bind(*ClassState, *slog.Logger, Config)
}

type emptyConfig struct{}

func (emptyConfig) Get(string, string) (string, bool) { return "", false }

// Attach binds engine state to a suite instance. It fails if the value
// does not embed Fixture.
func Attach(s any, cs *ClassState, lg *slog.Logger, cfg Config) error {
	b, ok := s.(binder)
	if !ok {
		return fmt.Errorf("suite %T does not embed suite.Fixture", s)
	}
	b.bind(cs, lg, cfg)
	return nil
}

// Embeds reports whether a value embeds Fixture. Registration uses it to
// validate candidate suites.
func Embeds(s any) bool {
	_, ok := s.(binder)
	return ok
}

// ApplyBindings seeds exported suite fields from a dataset's data
// mapping. Keys match field names case-insensitively; values must be
// assignable or convertible to the field type.
func ApplyBindings(s any, data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("suite %T is not a struct pointer", s)
	}
	elem := v.Elem()
	tp := elem.Type()

	for key, val := range data {
		field, ok := fieldByNameFold(tp, key)
		if !ok {
			return fmt.Errorf("dataset field %q has no matching exported field on %s", key, tp.Name())
		}
		fv := elem.FieldByIndex(field.Index)
		if val == nil {
			fv.SetZero()
			continue
		}
		rv := reflect.ValueOf(val)
		switch {
		case rv.Type().AssignableTo(fv.Type()):
			fv.Set(rv)
		case rv.Type().ConvertibleTo(fv.Type()):
			fv.Set(rv.Convert(fv.Type()))
		default:
			return fmt.Errorf("dataset field %q: cannot bind %T to %s", key, val, fv.Type())
		}
	}
	return nil
}

func fieldByNameFold(tp reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < tp.NumField(); i++ {
		f := tp.Field(i)
		if f.Anonymous || f.PkgPath != "" {
			continue
		}
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

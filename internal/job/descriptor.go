package job

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Descriptor describes one processing request. It is immutable once built:
// the constructor copies its inputs and accessors return copies.
type Descriptor struct {
	id       string
	op       Operation
	inputs   []Artifact
	options  map[string]string
	format   string
	deadline time.Time
}

// Spec carries the fields used to build a Descriptor.
type Spec struct {
	ID        string
	Operation Operation
	Inputs    []Artifact
	Options   map[string]string
	Format    string
	Deadline  time.Time
}

// NewDescriptor validates spec and returns an immutable Descriptor. A missing
// ID is replaced by a fresh UUID.
func NewDescriptor(spec Spec) (*Descriptor, error) {
	if _, ok := operationNames[spec.Operation]; !ok {
		return nil, Errorf(ErrInvalidInput, "", "unknown operation")
	}
	if len(spec.Inputs) == 0 {
		return nil, Errorf(ErrInvalidInput, spec.Operation.String(), "no inputs")
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	d := &Descriptor{
		id:       id,
		op:       spec.Operation,
		inputs:   append([]Artifact(nil), spec.Inputs...),
		options:  make(map[string]string, len(spec.Options)),
		format:   strings.ToLower(strings.TrimPrefix(spec.Format, ".")),
		deadline: spec.Deadline,
	}
	for k, v := range spec.Options {
		d.options[strings.ToLower(k)] = v
	}
	return d, nil
}

func (d *Descriptor) ID() string           { return d.id }
func (d *Descriptor) Operation() Operation { return d.op }
func (d *Descriptor) Format() string       { return d.format }

// Deadline returns the request deadline; ok is false when none was set.
func (d *Descriptor) Deadline() (deadline time.Time, ok bool) {
	return d.deadline, !d.deadline.IsZero()
}

// Inputs returns a copy of the ordered inputs.
func (d *Descriptor) Inputs() []Artifact {
	return append([]Artifact(nil), d.inputs...)
}

// Input returns the i'th input.
func (d *Descriptor) Input(i int) Artifact { return d.inputs[i] }

// NumInputs returns the number of inputs.
func (d *Descriptor) NumInputs() int { return len(d.inputs) }

// Options returns a copy of the option map.
func (d *Descriptor) Options() map[string]string {
	out := make(map[string]string, len(d.options))
	for k, v := range d.options {
		out[k] = v
	}
	return out
}

// Option returns the named option or def when unset or blank.
func (d *Descriptor) Option(name, def string) string {
	if v, ok := d.options[name]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// IntOption parses the named option as an integer.
func (d *Descriptor) IntOption(name string, def int) (int, error) {
	v := d.Option(name, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, Errorf(ErrInvalidInput, d.op.String(), "option %s: %q is not an integer", name, v)
	}
	return n, nil
}

// BoolOption parses the named option as a boolean.
func (d *Descriptor) BoolOption(name string, def bool) (bool, error) {
	v := d.Option(name, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, Errorf(ErrInvalidInput, d.op.String(), "option %s: %q is not a boolean", name, v)
	}
	return b, nil
}

// Derive returns a new Descriptor for the same job over different inputs. It
// keeps the ID, operation, options, format and deadline, so log lines of
// batch items and staged inputs carry the caller's job ID.
func (d *Descriptor) Derive(inputs ...Artifact) (*Descriptor, error) {
	return NewDescriptor(Spec{
		ID:        d.id,
		Operation: d.op,
		Inputs:    inputs,
		Options:   d.options,
		Format:    d.format,
		Deadline:  d.deadline,
	})
}

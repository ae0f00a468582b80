package pdf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// FormField is one AcroForm field. ID is the field's object number and Name
// its fully qualified name.
type FormField struct {
	ID     string
	Name   string
	Type   string
	Value  string
	Locked bool
}

// FormFields lists the form fields of path. A PDF without a form is
// ErrInvalidInput.
func FormFields(path string) ([]FormField, error) {
	fields, err := formFields(path, "form")
	if err != nil {
		return nil, err
	}
	out := make([]FormField, 0, len(fields))
	for _, f := range fields {
		out = append(out, FormField{ID: f.ID, Name: f.Name, Type: f.Typ.String(), Value: f.V, Locked: f.Locked})
	}
	return out, nil
}

func formFields(path, op string) ([]form.Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, job.Wrap(job.ErrWorkspace, op, err)
	}
	defer f.Close()
	fields, err := api.FormFields(f, config())
	if err != nil {
		return nil, &job.Error{Kind: job.ErrInvalidInput, Op: op, Msg: fmt.Sprintf("%s has no fillable form", filepath.Base(path)), Err: err}
	}
	return fields, nil
}

// FillForm sets the fields named in values, by field name or ID, and writes
// the result to out. Values are strings, booleans for checkboxes or string
// lists for list boxes. With lock every field of the form is made read-only
// afterwards. It returns the names of the fields that were set.
func FillForm(in, out string, values map[string]any, lock bool) ([]string, error) {
	const op = "fill_form"
	if len(values) == 0 {
		return nil, job.Errorf(job.ErrInvalidInput, op, "no field values given")
	}
	fields, err := formFields(in, op)
	if err != nil {
		return nil, err
	}

	var fm form.Form
	var filled []string
	used := make(map[string]bool, len(values))
	for _, fld := range fields {
		key := fld.Name
		v, ok := values[key]
		if !ok {
			key = fld.ID
			if v, ok = values[key]; !ok {
				continue
			}
		}
		used[key] = true
		if err := addFormValue(&fm, fld, v); err != nil {
			return nil, job.Errorf(job.ErrInvalidInput, op, "field %s: %v", key, err)
		}
		if fld.Name != "" {
			filled = append(filled, fld.Name)
		} else {
			filled = append(filled, fld.ID)
		}
	}
	var unknown []string
	for k := range values {
		if !used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, job.Errorf(job.ErrInvalidInput, op, "no such form field: %s", strings.Join(unknown, ", "))
	}

	data, err := json.Marshal(form.FormGroup{Forms: []form.Form{fm}})
	if err != nil {
		return nil, job.Wrap(job.ErrToolFailed, op, err)
	}
	target := out
	if lock {
		target = out + ".filled"
		defer os.Remove(target)
	}
	if err := fillFile(in, target, data); err != nil {
		return nil, err
	}
	if lock {
		if err := api.LockFormFieldsFile(target, out, nil, config()); err != nil {
			return nil, &job.Error{Kind: job.ErrToolFailed, Op: op, Msg: "lock fields", Err: err}
		}
	}
	return filled, nil
}

func fillFile(in, out string, data []byte) error {
	const op = "fill_form"
	src, err := os.Open(in)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, op, err)
	}
	defer src.Close()
	w, err := os.Create(out)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, op, err)
	}
	if err := api.FillForm(src, bytes.NewReader(data), w, config()); err != nil {
		w.Close()
		// The source already parsed as a form, so a failure here comes
		// from the supplied values.
		msg := "values rejected"
		if errors.Is(err, api.ErrNoFormFieldsAffected) {
			msg = "no field changed"
		}
		return &job.Error{Kind: job.ErrInvalidInput, Op: op, Msg: msg, Err: err}
	}
	return job.Wrap(job.ErrWorkspace, op, w.Close())
}

func addFormValue(fm *form.Form, fld form.Field, v any) error {
	switch fld.Typ {
	case form.FTCheckBox:
		b, err := boolValue(v)
		if err != nil {
			return err
		}
		fm.CheckBoxes = append(fm.CheckBoxes, &form.CheckBox{ID: fld.ID, Name: fld.Name, Value: b})
	case form.FTListBox:
		vals, err := listValue(v)
		if err != nil {
			return err
		}
		fm.ListBoxes = append(fm.ListBoxes, &form.ListBox{ID: fld.ID, Name: fld.Name, Values: vals})
	default:
		s, err := stringValue(v)
		if err != nil {
			return err
		}
		switch fld.Typ {
		case form.FTDate:
			fm.DateFields = append(fm.DateFields, &form.DateField{ID: fld.ID, Name: fld.Name, Value: s})
		case form.FTComboBox:
			fm.ComboBoxes = append(fm.ComboBoxes, &form.ComboBox{ID: fld.ID, Name: fld.Name, Value: s})
		case form.FTRadioButtonGroup:
			fm.RadioButtonGroups = append(fm.RadioButtonGroups, &form.RadioButtonGroup{ID: fld.ID, Name: fld.Name, Value: s})
		default:
			fm.TextFields = append(fm.TextFields, &form.TextField{ID: fld.ID, Name: fld.Name, Value: s})
		}
	}
	return nil
}

func stringValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}

func boolValue(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "on", "checked", "x":
			return true, nil
		case "no", "off", "":
			return false, nil
		}
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}

func listValue(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a string list, got %T", v)
}

// Package pipeline implements the per-listener payload stages downstream of
// envelope validation: schema validation of the extracted payload element and
// deserialization into the listener's registered Go type.
package pipeline

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/dullfig/xml-pipeline/internal/core/registry"
)

// ValidationError carries the internal reason a payload failed validation.
// It is logged with the thread context and never surfaced to senders, who
// receive the canned <huh> text instead.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("xmlpipeline: payload invalid at %s: %s", e.Path, e.Reason)
}

func invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the payload element against the listener's structural
// descriptor: the root tag must match, every required field must appear,
// scalar values must parse as their declared kind, and unknown elements are
// rejected.
func Validate(el *etree.Element, rootTag string, pt *registry.PayloadType) error {
	if el == nil {
		return invalid(rootTag, "payload element missing")
	}
	if el.Tag != rootTag {
		return invalid(el.Tag, "root tag does not match %s", rootTag)
	}
	return validateRecord(el, pt, rootTag)
}

func validateRecord(el *etree.Element, pt *registry.PayloadType, path string) error {
	fields := make(map[string]*registry.Field, len(pt.Fields))
	for i := range pt.Fields {
		fields[pt.Fields[i].Name] = &pt.Fields[i]
	}

	seen := make(map[string]int, len(fields))
	for _, child := range el.ChildElements() {
		field, known := fields[child.Tag]
		childPath := path + "/" + child.Tag
		if !known {
			return invalid(childPath, "unexpected element")
		}
		seen[child.Tag]++
		if seen[child.Tag] > 1 && !field.Repeated {
			return invalid(childPath, "element repeated")
		}
		if err := validateField(child, field, childPath); err != nil {
			return err
		}
	}

	for i := range pt.Fields {
		field := &pt.Fields[i]
		if seen[field.Name] == 0 && !field.HasDefault && !field.Repeated {
			return invalid(path+"/"+field.Name, "required element missing")
		}
	}
	return nil
}

func validateField(el *etree.Element, field *registry.Field, path string) error {
	if field.Kind == registry.KindRecord {
		return validateRecord(el, field.Record, path)
	}
	text := strings.TrimSpace(el.Text())
	switch field.Kind {
	case registry.KindInteger:
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			return invalid(path, "not an integer: %q", text)
		}
	case registry.KindDecimal:
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return invalid(path, "not a decimal: %q", text)
		}
	case registry.KindBoolean:
		if text != "true" && text != "false" {
			return invalid(path, "not a boolean: %q", text)
		}
	}
	return nil
}

// Deserialize constructs a fresh typed payload instance from a validated
// element. Absent optional fields take their declared defaults.
func Deserialize(el *etree.Element, pt *registry.PayloadType) (any, error) {
	instance := reflect.New(pt.GoType)
	if err := fillRecord(el, pt, instance.Elem()); err != nil {
		return nil, err
	}
	return instance.Interface(), nil
}

func fillRecord(el *etree.Element, pt *registry.PayloadType, v reflect.Value) error {
	byName := make(map[string][]*etree.Element)
	for _, child := range el.ChildElements() {
		byName[child.Tag] = append(byName[child.Tag], child)
	}

	idx := 0
	for i := 0; i < v.NumField(); i++ {
		if !v.Type().Field(i).IsExported() {
			continue
		}
		field := &pt.Fields[idx]
		idx++
		fv := v.Field(i)
		children := byName[field.Name]

		if field.Repeated {
			slice := reflect.MakeSlice(fv.Type(), 0, len(children))
			for _, child := range children {
				item := reflect.New(fv.Type().Elem()).Elem()
				if err := fillValue(child, field, item); err != nil {
					return err
				}
				slice = reflect.Append(slice, item)
			}
			fv.Set(slice)
			continue
		}

		if len(children) == 0 {
			if field.HasDefault {
				if err := setScalar(fv, field, field.Default); err != nil {
					return err
				}
			}
			continue
		}
		if err := fillValue(children[0], field, fv); err != nil {
			return err
		}
	}
	return nil
}

func fillValue(el *etree.Element, field *registry.Field, fv reflect.Value) error {
	if field.Kind == registry.KindRecord {
		return fillRecord(el, field.Record, fv)
	}
	return setScalar(fv, field, strings.TrimSpace(el.Text()))
}

func setScalar(fv reflect.Value, field *registry.Field, text string) error {
	switch field.Kind {
	case registry.KindInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return invalid(field.Name, "not an integer: %q", text)
		}
		if fv.CanInt() {
			fv.SetInt(n)
		} else {
			fv.SetUint(uint64(n))
		}
	case registry.KindDecimal:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return invalid(field.Name, "not a decimal: %q", text)
		}
		fv.SetFloat(f)
	case registry.KindBoolean:
		fv.SetBool(text == "true")
	default:
		fv.SetString(text)
	}
	return nil
}

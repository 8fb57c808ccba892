package registry

import (
	"reflect"
	"strings"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

// FieldKind enumerates the primitive shapes a payload field may take.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInteger
	KindDecimal
	KindBoolean
	KindRecord
)

// Field describes one element of a payload type.
type Field struct {
	// Name is the element name, lowercased.
	Name string

	Kind FieldKind

	// Doc is the optional human description from the field's doc tag.
	Doc string

	// Default holds the literal default value when one is declared. Fields
	// with a default are optional in the synthesized schema.
	Default    string
	HasDefault bool

	// Repeated marks slice fields, rendered with maxOccurs="unbounded".
	Repeated bool

	// Record holds the nested descriptor for KindRecord fields.
	Record *PayloadType
}

// PayloadType is the structural description of a listener's payload record,
// reflected once at registration and reused for schema synthesis, example
// generation, validation, and deserialization.
type PayloadType struct {
	// Name is the lowercased Go type name, the second half of the root tag.
	Name string

	Fields []Field

	// GoType is the underlying struct type, used to allocate fresh payload
	// instances on the deserialization path.
	GoType reflect.Type
}

// Describe reflects a payload prototype into its structural descriptor. The
// prototype must be a non-nil pointer to a struct; field order follows
// declaration order so derived artifacts are deterministic.
func Describe(prototype any) (*PayloadType, error) {
	if prototype == nil {
		return nil, errspkg.ErrPrototypeRequired
	}
	t := reflect.TypeOf(prototype)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, errspkg.ErrPrototypePointer
	}
	return describeStruct(t.Elem())
}

func describeStruct(t reflect.Type) (*PayloadType, error) {
	pt := &PayloadType{
		Name:   strings.ToLower(t.Name()),
		GoType: t,
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		field, err := describeField(sf)
		if err != nil {
			return nil, err
		}
		pt.Fields = append(pt.Fields, field)
	}
	return pt, nil
}

func describeField(sf reflect.StructField) (Field, error) {
	field := Field{
		Name: fieldName(sf),
		Doc:  sf.Tag.Get("doc"),
	}
	if def, ok := sf.Tag.Lookup("default"); ok {
		field.Default = def
		field.HasDefault = true
	}

	ft := sf.Type
	if ft.Kind() == reflect.Slice {
		field.Repeated = true
		ft = ft.Elem()
	}

	switch ft.Kind() {
	case reflect.String:
		field.Kind = KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		field.Kind = KindInteger
	case reflect.Float32, reflect.Float64:
		field.Kind = KindDecimal
	case reflect.Bool:
		field.Kind = KindBoolean
	case reflect.Struct:
		field.Kind = KindRecord
		nested, err := describeStruct(ft)
		if err != nil {
			return Field{}, err
		}
		field.Record = nested
	default:
		return Field{}, errspkg.ErrUnrepresentableField
	}
	return field, nil
}

// fieldName prefers the xml struct tag's name part, falling back to the
// lowercased Go field name.
func fieldName(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup("xml"); ok {
		name := strings.Split(tag, ",")[0]
		if name != "" && name != "-" {
			return strings.ToLower(name)
		}
	}
	return strings.ToLower(sf.Name)
}

// SameShape reports structural equality of two payload descriptors. Broadcast
// listeners sharing a root tag must agree on shape.
func SameShape(a, b *PayloadType) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		fa, fb := a.Fields[i], b.Fields[i]
		if fa.Name != fb.Name || fa.Kind != fb.Kind || fa.Repeated != fb.Repeated ||
			fa.HasDefault != fb.HasDefault || fa.Default != fb.Default {
			return false
		}
		if fa.Kind == KindRecord && !SameShape(fa.Record, fb.Record) {
			return false
		}
	}
	return true
}

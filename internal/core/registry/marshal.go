package registry

import (
	"reflect"
	"strconv"

	"github.com/beevik/etree"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

// MarshalPayload renders a typed payload value into its element form rooted
// at the listener's derived root tag. This is the re-injection path for
// handler return values.
func MarshalPayload(rootTag string, pt *PayloadType, value any) (*etree.Element, error) {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, errspkg.ErrPayloadMissing
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || v.Type() != pt.GoType {
		return nil, errspkg.ErrPayloadTypeMismatch
	}

	root := etree.NewElement(rootTag)
	if err := marshalFields(root, pt, v); err != nil {
		return nil, err
	}
	return root, nil
}

func marshalFields(parent *etree.Element, pt *PayloadType, v reflect.Value) error {
	idx := 0
	for i := 0; i < v.NumField(); i++ {
		if !v.Type().Field(i).IsExported() {
			continue
		}
		field := pt.Fields[idx]
		idx++
		fv := v.Field(i)

		if field.Repeated {
			for j := 0; j < fv.Len(); j++ {
				if err := marshalOne(parent, field, fv.Index(j)); err != nil {
					return err
				}
			}
			continue
		}
		if err := marshalOne(parent, field, fv); err != nil {
			return err
		}
	}
	return nil
}

func marshalOne(parent *etree.Element, field Field, fv reflect.Value) error {
	el := parent.CreateElement(field.Name)
	if field.Kind == KindRecord {
		return marshalFields(el, field.Record, fv)
	}
	el.SetText(scalarText(field.Kind, fv))
	return nil
}

func scalarText(kind FieldKind, fv reflect.Value) string {
	switch kind {
	case KindInteger:
		if fv.CanInt() {
			return strconv.FormatInt(fv.Int(), 10)
		}
		return strconv.FormatUint(fv.Uint(), 10)
	case KindDecimal:
		return strconv.FormatFloat(fv.Float(), 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(fv.Bool())
	default:
		return fv.String()
	}
}

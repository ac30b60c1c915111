package intent

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindText
	KindNumber
	KindBool
	KindTextList
	KindNumberList
)

// Value is a tagged union over the argument types tenant code may supply:
// text, number, boolean, or homogeneous arrays of text/number. Accessors
// return false on a kind mismatch so validators can defer on absence without
// type assertions.
type Value struct {
	kind     Kind
	text     string
	num      float64
	boolean  bool
	textList []string
	numList  []float64
}

func TextValue(s string) Value        { return Value{kind: KindText, text: s} }
func NumberValue(n float64) Value     { return Value{kind: KindNumber, num: n} }
func BoolValue(b bool) Value          { return Value{kind: KindBool, boolean: b} }
func TextListValue(l []string) Value  { return Value{kind: KindTextList, textList: l} }
func NumberListValue(l []float64) Value {
	return Value{kind: KindNumberList, numList: l}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindText
}

func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) Bool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

func (v Value) TextList() ([]string, bool) {
	return v.textList, v.kind == KindTextList
}

func (v Value) NumberList() ([]float64, bool) {
	return v.numList, v.kind == KindNumberList
}

// Fields is one named argument set.
type Fields map[string]Value

func (f Fields) Text(name string) (string, bool) {
	v, ok := f[name]
	if !ok {
		return "", false
	}
	return v.Text()
}

func (f Fields) Number(name string) (float64, bool) {
	v, ok := f[name]
	if !ok {
		return 0, false
	}
	return v.Number()
}

func (f Fields) Bool(name string) (bool, bool) {
	v, ok := f[name]
	if !ok {
		return false, false
	}
	return v.Bool()
}

// FieldsFromAny converts one decoded-JSON argument bag into a Fields set.
// Values outside the supported variants are dropped; mixed-type arrays are
// dropped rather than coerced.
func FieldsFromAny(m map[string]any) Fields {
	fields := make(Fields, len(m))
	for name, raw := range m {
		switch v := raw.(type) {
		case string:
			fields[name] = TextValue(v)
		case float64:
			fields[name] = NumberValue(v)
		case int:
			fields[name] = NumberValue(float64(v))
		case int64:
			fields[name] = NumberValue(float64(v))
		case bool:
			fields[name] = BoolValue(v)
		case []any:
			if value, ok := listValue(v); ok {
				fields[name] = value
			}
		}
	}
	return fields
}

func listValue(items []any) (Value, bool) {
	if len(items) == 0 {
		return TextListValue(nil), true
	}
	switch items[0].(type) {
	case string:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return Value{}, false
			}
			out = append(out, s)
		}
		return TextListValue(out), true
	case float64:
		out := make([]float64, 0, len(items))
		for _, item := range items {
			n, ok := item.(float64)
			if !ok {
				return Value{}, false
			}
			out = append(out, n)
		}
		return NumberListValue(out), true
	default:
		return Value{}, false
	}
}

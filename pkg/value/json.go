package value

import (
	"encoding/json"
	"math"
)

// ToJSON marshals a value to JSON bytes.
// Dictionaries preserve key order; decimals keep their exact digits.
func ToJSON(v Value) ([]byte, error) {
	return json.Marshal(valueToRaw(v))
}

// ToJSONString is a convenience that returns a string.
func ToJSONString(v Value) string {
	b, err := ToJSON(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func valueToRaw(v Value) any {
	switch val := v.(type) {
	case nil, None, Skip:
		return nil
	case Bool:
		return val.Value
	case Int:
		return val.Value
	case Decimal:
		return json.Number(canonicalDecimal(val.Value))
	case Float:
		if math.IsInf(val.Value, 0) || math.IsNaN(val.Value) {
			return formatSpecialFloat(val.Value)
		}
		return val.Value
	case String:
		return val.Value
	case URI:
		return val.Value
	case QName:
		return val.String()
	case Instant:
		return val.Value.Format("2006-01-02")
	case Duration:
		return map[string]string{
			"start": val.Start.Format("2006-01-02"),
			"end":   val.End.Format("2006-01-02"),
		}
	case Forever:
		return "forever"
	case Severity:
		return val.Value
	case Balance:
		return val.Value
	case PeriodType:
		return val.Value
	case Concept:
		return val.Name.String()
	case Fact:
		return map[string]any{"concept": val.Name(), "value": valueToRaw(val.Value)}
	case Taxonomy:
		return val.Name
	case Network:
		return map[string]string{"arcrole": val.Arcrole, "role": val.Role}
	case Relationship:
		return map[string]any{"source": val.Source.String(), "target": val.Target.String(), "order": val.Order}
	case List:
		return rawItems(val.Items)
	case Set:
		return rawItems(val.Items)
	case Dictionary:
		return &orderedDict{pairs: val.Pairs}
	}
	return nil
}

// Name returns the concept name as written.
func (f Fact) Name() string {
	return f.Concept.String()
}

func rawItems(items []Value) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = valueToRaw(item)
	}
	return out
}

func formatSpecialFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	return "NaN"
}

// orderedDict preserves key order in JSON output. Keys that are not
// strings are rendered through their JSON form.
type orderedDict struct {
	pairs []Pair
}

func (o *orderedDict) MarshalJSON() ([]byte, error) {
	if len(o.pairs) == 0 {
		return []byte("{}"), nil
	}

	buf := []byte{'{'}
	for i, kv := range o.pairs {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, ok := kv.Key.(String)
		keyText := key.Value
		if !ok {
			keyText = ToJSONString(kv.Key)
		}
		keyBytes, err := json.Marshal(keyText)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')

		valBytes, err := json.Marshal(valueToRaw(kv.Value))
		if err != nil {
			return nil, err
		}
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Package value defines the rule language value types and the static
// type-combination rules the analyzer relies on.
package value

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd"
)

// Type is the tag carried by every value.
type Type string

const (
	TypeUnknown      Type = "unknown"
	TypeNone         Type = "none"
	TypeSkip         Type = "skip"
	TypeInteger      Type = "int"
	TypeDecimal      Type = "decimal"
	TypeFloat        Type = "float"
	TypeString       Type = "string"
	TypeURI          Type = "uri"
	TypeBoolean      Type = "bool"
	TypeQName        Type = "qname"
	TypeInstant      Type = "instant"
	TypeDuration     Type = "duration"
	TypeForever      Type = "forever"
	TypeSeverity     Type = "severity"
	TypeBalance      Type = "balance"
	TypePeriodType   Type = "period-type"
	TypeConcept      Type = "concept"
	TypeFact         Type = "fact"
	TypeTaxonomy     Type = "taxonomy"
	TypeNetwork      Type = "network"
	TypeRelationship Type = "relationship"
	TypeList         Type = "list"
	TypeSet          Type = "set"
	TypeDictionary   Type = "dictionary"
)

// IsNumeric reports whether t is one of the number types.
func (t Type) IsNumeric() bool {
	return t == TypeInteger || t == TypeDecimal || t == TypeFloat
}

// IsComposite reports whether t is list, set or dictionary.
func (t Type) IsComposite() bool {
	return t == TypeList || t == TypeSet || t == TypeDictionary
}

// Value is the interface for all rule values.
// The sealed marker method restricts implementations to this package.
type Value interface {
	Type() Type
	value() // sealed marker
}

// Key is the value-only shadow of a value. Two values with equal keys are
// the same member of a set or the same dictionary key.
type Key string

// None represents the absence of a value.
type None struct{}

func (None) Type() Type { return TypeNone }
func (None) value()     {}

// Skip tells the evaluator to drop the current iteration.
type Skip struct{}

func (Skip) Type() Type { return TypeSkip }
func (Skip) value()     {}

type Bool struct {
	Value bool
}

func (Bool) Type() Type { return TypeBoolean }
func (Bool) value()     {}

type Int struct {
	Value int64
}

func (Int) Type() Type { return TypeInteger }
func (Int) value()     {}

// Decimal is an exact decimal number.
type Decimal struct {
	Value *apd.Decimal
}

func (Decimal) Type() Type { return TypeDecimal }
func (Decimal) value()     {}

type Float struct {
	Value float64
}

func (Float) Type() Type { return TypeFloat }
func (Float) value()     {}

type String struct {
	Value string
}

func (String) Type() Type { return TypeString }
func (String) value()     {}

type URI struct {
	Value string
}

func (URI) Type() Type { return TypeURI }
func (URI) value()     {}

// QName is a namespace-qualified name. Namespace may be empty until the
// prefix is resolved against a catalog.
type QName struct {
	Namespace string
	Prefix    string
	Local     string
}

func (QName) Type() Type { return TypeQName }
func (QName) value()     {}

func (q QName) String() string {
	if q.Prefix == "" {
		return q.Local
	}
	return q.Prefix + ":" + q.Local
}

type Instant struct {
	Value time.Time
}

func (Instant) Type() Type { return TypeInstant }
func (Instant) value()     {}

type Duration struct {
	Start time.Time
	End   time.Time
}

func (Duration) Type() Type { return TypeDuration }
func (Duration) value()     {}

type Forever struct{}

func (Forever) Type() Type { return TypeForever }
func (Forever) value()     {}

type Severity struct {
	Value string
}

func (Severity) Type() Type { return TypeSeverity }
func (Severity) value()     {}

type Balance struct {
	Value string
}

func (Balance) Type() Type { return TypeBalance }
func (Balance) value()     {}

type PeriodType struct {
	Value string
}

func (PeriodType) Type() Type { return TypePeriodType }
func (PeriodType) value()     {}

// Concept refers to a taxonomy concept by name.
type Concept struct {
	Name QName
}

func (Concept) Type() Type { return TypeConcept }
func (Concept) value()     {}

// Fact is a reported fact. Alignment is the canonical form of its
// entity, period and dimensions.
type Fact struct {
	ID        string
	Concept   QName
	Alignment string
	Value     Value
}

func (Fact) Type() Type { return TypeFact }
func (Fact) value()     {}

type Taxonomy struct {
	Name string
}

func (Taxonomy) Type() Type { return TypeTaxonomy }
func (Taxonomy) value()     {}

type Network struct {
	Arcrole string
	Role    string
}

func (Network) Type() Type { return TypeNetwork }
func (Network) value()     {}

type Relationship struct {
	Source QName
	Target QName
	Order  float64
}

func (Relationship) Type() Type { return TypeRelationship }
func (Relationship) value()     {}

// List is an ordered sequence.
type List struct {
	Items  []Value
	shadow Key
}

func (List) Type() Type { return TypeList }
func (List) value()     {}

// Set is an unordered collection deduplicated by shadow. Items keeps
// first-insertion order so output is deterministic.
type Set struct {
	Items  []Value
	index  map[Key]struct{}
	shadow Key
}

func (Set) Type() Type { return TypeSet }
func (Set) value()     {}

// Pair is one dictionary entry.
type Pair struct {
	Key   Value
	Value Value
}

// Dictionary maps keys to values, compared by the key's shadow.
// Insertion order is preserved via the Pairs slice.
type Dictionary struct {
	Pairs  []Pair
	index  map[Key]int
	shadow Key
}

func (Dictionary) Type() Type { return TypeDictionary }
func (Dictionary) value()     {}

// NewList creates a list value.
func NewList(items ...Value) List {
	l := List{Items: items}
	l.shadow = compositeKey("l", items, false)
	return l
}

// NewSet creates a set, dropping members whose shadow is already present.
func NewSet(items ...Value) Set {
	s := Set{index: make(map[Key]struct{}, len(items))}
	for _, it := range items {
		k := Shadow(it)
		if _, dup := s.index[k]; dup {
			continue
		}
		s.index[k] = struct{}{}
		s.Items = append(s.Items, it)
	}
	s.shadow = compositeKey("s", s.Items, true)
	return s
}

// Contains reports whether v is a member by value.
func (s Set) Contains(v Value) bool {
	_, ok := s.index[Shadow(v)]
	return ok
}

// NewDictionary creates a dictionary. A later pair with an equal key
// replaces the earlier value in place.
func NewDictionary(pairs ...Pair) Dictionary {
	d := Dictionary{index: make(map[Key]int, len(pairs))}
	for _, p := range pairs {
		k := Shadow(p.Key)
		if i, ok := d.index[k]; ok {
			d.Pairs[i].Value = p.Value
			continue
		}
		d.index[k] = len(d.Pairs)
		d.Pairs = append(d.Pairs, p)
	}
	parts := make([]string, len(d.Pairs))
	for i, p := range d.Pairs {
		parts[i] = string(Shadow(p.Key)) + "=" + string(Shadow(p.Value))
	}
	sort.Strings(parts)
	d.shadow = Key("d{" + strings.Join(parts, ",") + "}")
	return d
}

// Get retrieves a value by key.
func (d Dictionary) Get(key Value) (Value, bool) {
	i, ok := d.index[Shadow(key)]
	if !ok {
		return nil, false
	}
	return d.Pairs[i].Value, true
}

func compositeKey(tag string, items []Value, unordered bool) Key {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(Shadow(it))
	}
	if unordered {
		sort.Strings(parts)
	}
	return Key(tag + "[" + strings.Join(parts, ",") + "]")
}

// Shadow returns the value-only key of v. Numbers of different types that
// are numerically equal share a key, so 1, 1.0 and 1e0 are one set member.
func Shadow(v Value) Key {
	switch val := v.(type) {
	case nil, None:
		return "none"
	case Skip:
		return "skip"
	case Bool:
		return Key("b:" + strconv.FormatBool(val.Value))
	case Int:
		return Key("n:" + strconv.FormatInt(val.Value, 10))
	case Decimal:
		return Key("n:" + canonicalDecimal(val.Value))
	case Float:
		return Key("n:" + canonicalFloat(val.Value))
	case String:
		return Key("s:" + strconv.Quote(val.Value))
	case URI:
		return Key("u:" + strconv.Quote(val.Value))
	case QName:
		if val.Namespace != "" {
			return Key("q:{" + val.Namespace + "}" + val.Local)
		}
		return Key("q:" + val.String())
	case Instant:
		return Key("i:" + val.Value.Format(time.RFC3339))
	case Duration:
		return Key("p:" + val.Start.Format(time.RFC3339) + "/" + val.End.Format(time.RFC3339))
	case Forever:
		return "forever"
	case Severity:
		return Key("sev:" + val.Value)
	case Balance:
		return Key("bal:" + val.Value)
	case PeriodType:
		return Key("pt:" + val.Value)
	case Concept:
		return Key("c:" + string(Shadow(val.Name)))
	case Fact:
		return Key("f:" + val.ID)
	case Taxonomy:
		return Key("t:" + val.Name)
	case Network:
		return Key("net:" + val.Arcrole + "|" + val.Role)
	case Relationship:
		return Key("r:" + string(Shadow(val.Source)) + ">" + string(Shadow(val.Target)))
	case List:
		return val.shadow
	case Set:
		return val.shadow
	case Dictionary:
		return val.shadow
	}
	return "?"
}

func canonicalDecimal(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	s := d.Text('f')
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" || s == "" {
		s = "0"
	}
	return s
}

func canonicalFloat(f float64) string {
	d, err := new(apd.Decimal).SetFloat64(f)
	if err != nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return canonicalDecimal(d)
}

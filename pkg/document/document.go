// Package document declares the capabilities a rule set consumes from the
// host's financial-document model, and an in-memory implementation of them.
package document

import "time"

// QName is a namespace-qualified name.
type QName struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Local     string `json:"local" yaml:"local"`
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// PeriodType is the period type of a concept.
type PeriodType string

const (
	Instant  PeriodType = "instant"
	Duration PeriodType = "duration"
)

// Balance is the balance type of a monetary concept.
type Balance string

const (
	Debit  Balance = "debit"
	Credit Balance = "credit"
)

// Concept is a taxonomy element that facts report values for.
type Concept struct {
	Name       QName      `json:"name" yaml:"name"`
	DataType   QName      `json:"dataType" yaml:"data_type"`
	PeriodType PeriodType `json:"periodType" yaml:"period_type"`
	Balance    Balance    `json:"balance,omitempty" yaml:"balance,omitempty"`
	Abstract   bool       `json:"abstract,omitempty" yaml:"abstract,omitempty"`
}

// Relationship is one arc of a relationship network.
type Relationship struct {
	From    QName   `json:"from" yaml:"from"`
	To      QName   `json:"to" yaml:"to"`
	Arcrole string  `json:"arcrole" yaml:"arcrole"`
	Role    string  `json:"role" yaml:"role"`
	Order   float64 `json:"order,omitempty" yaml:"order,omitempty"`
	Weight  float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Period is a fact's reporting period. Forever periods have both times zero
// and Forever set; instants have Start equal to End.
type Period struct {
	Start   time.Time `json:"start" yaml:"start"`
	End     time.Time `json:"end" yaml:"end"`
	Forever bool      `json:"forever,omitempty" yaml:"forever,omitempty"`
}

// IsInstant reports whether the period is a point in time.
func (p Period) IsInstant() bool {
	return !p.Forever && p.Start.Equal(p.End)
}

// Context is the alignment of a fact apart from its concept and unit.
type Context struct {
	Entity     QName            `json:"entity" yaml:"entity"`
	Period     Period           `json:"period" yaml:"period"`
	Dimensions map[string]QName `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// Fact is one reported value.
type Fact struct {
	ID      string  `json:"id,omitempty" yaml:"id,omitempty"`
	Concept QName   `json:"concept" yaml:"concept"`
	Context Context `json:"context" yaml:"context"`
	Unit    string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Value   string  `json:"value" yaml:"value"`
	Nil     bool    `json:"nil,omitempty" yaml:"nil,omitempty"`
	// Decimals is the reported precision; nil when not numeric.
	Decimals *int `json:"decimals,omitempty" yaml:"decimals,omitempty"`
}

// ConceptLookup finds concepts by namespace and local name.
type ConceptLookup interface {
	Concept(name QName) (Concept, bool)
}

// RelationshipSets traverses relationship networks.
type RelationshipSets interface {
	// Relationships returns the arcs of the network for arcrole and role
	// that start at from, in arc order. An empty role selects all roles.
	Relationships(arcrole, role string, from QName) []Relationship
	// Roots returns the concepts that are the source of an arc but not
	// the target of any, sorted by name.
	Roots(arcrole, role string) []QName
}

// FactSource enumerates the facts of an instance document.
type FactSource interface {
	// Facts calls yield for every fact of concept, in document order,
	// until yield returns false. A zero concept enumerates all facts.
	Facts(concept QName, yield func(Fact) bool)
}

// NamespaceAvailability reports which namespaces the host knows.
type NamespaceAvailability interface {
	Available(uri string) bool
}

// Document is the full capability surface.
type Document interface {
	ConceptLookup
	RelationshipSets
	FactSource
	NamespaceAvailability
}

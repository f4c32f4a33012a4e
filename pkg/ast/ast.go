// Package ast defines the rule language expression tree.
package ast

// Span represents a source location range.
type Span struct {
	File      string `json:"file" yaml:"file"`
	StartLine int    `json:"startLine" yaml:"start_line"`
	StartCol  int    `json:"startCol" yaml:"start_col"`
	EndLine   int    `json:"endLine" yaml:"end_line"`
	EndCol    int    `json:"endCol" yaml:"end_col"`
	Offset    int    `json:"offset" yaml:"offset"`
}

// NodeID identifies a node within one file. IDs are assigned pre-order
// starting at 1; zero means "not assigned".
type NodeID int

// Node is the interface implemented by all tree nodes.
type Node interface {
	Kind() string
	NodeSpan() Span
	NodeID() NodeID
	setID(NodeID)
}

// BinaryOp represents a binary operator.
type BinaryOp string

const (
	OpOr      BinaryOp = "or"
	OpAnd     BinaryOp = "and"
	OpEq      BinaryOp = "=="
	OpNeq     BinaryOp = "!="
	OpLt      BinaryOp = "<"
	OpLtEq    BinaryOp = "<="
	OpGt      BinaryOp = ">"
	OpGtEq    BinaryOp = ">="
	OpIn      BinaryOp = "in"
	OpNotIn   BinaryOp = "not in"
	OpSymDiff BinaryOp = "^"
	OpInter   BinaryOp = "&"
	OpAdd     BinaryOp = "+"
	OpSub     BinaryOp = "-"
	OpUnion   BinaryOp = "|"
	OpMul     BinaryOp = "*"
	OpDiv     BinaryOp = "/"
)

// UnaryOp represents a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpPos UnaryOp = "+"
	OpNot UnaryOp = "not"
)

// BindingKind says which construct introduced a variable.
type BindingKind string

const (
	BindLocal    BindingKind = "local"
	BindLoop     BindingKind = "loop"
	BindArgument BindingKind = "argument"
	BindFact     BindingKind = "fact"
	BindItem     BindingKind = "item"
	BindAlias    BindingKind = "alias"
)

// LiteralClass groups the keyword literals.
type LiteralClass string

const (
	LitForever    LiteralClass = "forever"
	LitSkip       LiteralClass = "skip"
	LitSeverity   LiteralClass = "severity"
	LitBalance    LiteralClass = "balance"
	LitPeriodType LiteralClass = "period-type"
)

// --- Expr is the interface for all expression nodes ---

type Expr interface {
	Node
	exprNode() // sealed marker
}

// --- Decl is the interface for all top-level declarations ---

type Decl interface {
	Node
	declNode() // sealed marker
}

// --- Literal Expressions ---

type IntLiteral struct {
	Span  Span
	ID    NodeID
	Text  string
	Value int64
}

func (n *IntLiteral) Kind() string    { return "IntLiteral" }
func (n *IntLiteral) NodeSpan() Span  { return n.Span }
func (n *IntLiteral) NodeID() NodeID  { return n.ID }
func (n *IntLiteral) setID(id NodeID) { n.ID = id }
func (n *IntLiteral) exprNode()       {}

// DecimalLiteral keeps its source text so no precision is lost before the
// value layer converts it.
type DecimalLiteral struct {
	Span Span
	ID   NodeID
	Text string
}

func (n *DecimalLiteral) Kind() string    { return "DecimalLiteral" }
func (n *DecimalLiteral) NodeSpan() Span  { return n.Span }
func (n *DecimalLiteral) NodeID() NodeID  { return n.ID }
func (n *DecimalLiteral) setID(id NodeID) { n.ID = id }
func (n *DecimalLiteral) exprNode()       {}

type FloatLiteral struct {
	Span  Span
	ID    NodeID
	Text  string
	Value float64
}

func (n *FloatLiteral) Kind() string    { return "FloatLiteral" }
func (n *FloatLiteral) NodeSpan() Span  { return n.Span }
func (n *FloatLiteral) NodeID() NodeID  { return n.ID }
func (n *FloatLiteral) setID(id NodeID) { n.ID = id }
func (n *FloatLiteral) exprNode()       {}

type StrLiteral struct {
	Span  Span
	ID    NodeID
	Value string
}

func (n *StrLiteral) Kind() string    { return "StrLiteral" }
func (n *StrLiteral) NodeSpan() Span  { return n.Span }
func (n *StrLiteral) NodeID() NodeID  { return n.ID }
func (n *StrLiteral) setID(id NodeID) { n.ID = id }
func (n *StrLiteral) exprNode()       {}

type BoolLiteral struct {
	Span  Span
	ID    NodeID
	Value bool
}

func (n *BoolLiteral) Kind() string    { return "BoolLiteral" }
func (n *BoolLiteral) NodeSpan() Span  { return n.Span }
func (n *BoolLiteral) NodeID() NodeID  { return n.ID }
func (n *BoolLiteral) setID(id NodeID) { n.ID = id }
func (n *BoolLiteral) exprNode()       {}

type NoneLiteral struct {
	Span Span
	ID   NodeID
}

func (n *NoneLiteral) Kind() string    { return "NoneLiteral" }
func (n *NoneLiteral) NodeSpan() Span  { return n.Span }
func (n *NoneLiteral) NodeID() NodeID  { return n.ID }
func (n *NoneLiteral) setID(id NodeID) { n.ID = id }
func (n *NoneLiteral) exprNode()       {}

// KeywordLiteral covers forever, skip, severities, balances and period types.
type KeywordLiteral struct {
	Span  Span
	ID    NodeID
	Class LiteralClass
	Word  string
}

func (n *KeywordLiteral) Kind() string    { return "KeywordLiteral" }
func (n *KeywordLiteral) NodeSpan() Span  { return n.Span }
func (n *KeywordLiteral) NodeID() NodeID  { return n.ID }
func (n *KeywordLiteral) setID(id NodeID) { n.ID = id }
func (n *KeywordLiteral) exprNode()       {}

// --- Names and references ---

// QName is a qualified name. An empty Prefix means the default namespace.
type QName struct {
	Span   Span
	ID     NodeID
	Prefix string
	Local  string
}

func (n *QName) Kind() string    { return "QName" }
func (n *QName) NodeSpan() Span  { return n.Span }
func (n *QName) NodeID() NodeID  { return n.ID }
func (n *QName) setID(id NodeID) { n.ID = id }
func (n *QName) exprNode()       {}

// String renders the name as written.
func (n *QName) String() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// VarRef is a `$name` reference.
type VarRef struct {
	Span Span
	ID   NodeID
	Name string
}

func (n *VarRef) Kind() string    { return "VarRef" }
func (n *VarRef) NodeSpan() Span  { return n.Span }
func (n *VarRef) NodeID() NodeID  { return n.ID }
func (n *VarRef) setID(id NodeID) { n.ID = id }
func (n *VarRef) exprNode()       {}

// FuncCall calls a user-defined or built-in function by name.
type FuncCall struct {
	Span Span
	ID   NodeID
	Name string
	Args []Expr
}

func (n *FuncCall) Kind() string    { return "FuncCall" }
func (n *FuncCall) NodeSpan() Span  { return n.Span }
func (n *FuncCall) NodeID() NodeID  { return n.ID }
func (n *FuncCall) setID(id NodeID) { n.ID = id }
func (n *FuncCall) exprNode()       {}

// PropertyExpr is `object.name` or `object.name(args)`.
type PropertyExpr struct {
	Span    Span
	ID      NodeID
	Object  Expr
	Name    string
	Args    []Expr
	HasArgs bool
}

func (n *PropertyExpr) Kind() string    { return "PropertyExpr" }
func (n *PropertyExpr) NodeSpan() Span  { return n.Span }
func (n *PropertyExpr) NodeID() NodeID  { return n.ID }
func (n *PropertyExpr) setID(id NodeID) { n.ID = id }
func (n *PropertyExpr) exprNode()       {}

type IndexExpr struct {
	Span   Span
	ID     NodeID
	Object Expr
	Index  Expr
}

func (n *IndexExpr) Kind() string    { return "IndexExpr" }
func (n *IndexExpr) NodeSpan() Span  { return n.Span }
func (n *IndexExpr) NodeID() NodeID  { return n.ID }
func (n *IndexExpr) setID(id NodeID) { n.ID = id }
func (n *IndexExpr) exprNode()       {}

type ListExpr struct {
	Span     Span
	ID       NodeID
	Elements []Expr
}

func (n *ListExpr) Kind() string    { return "ListExpr" }
func (n *ListExpr) NodeSpan() Span  { return n.Span }
func (n *ListExpr) NodeID() NodeID  { return n.ID }
func (n *ListExpr) setID(id NodeID) { n.ID = id }
func (n *ListExpr) exprNode()       {}

// --- Operators ---

type BinaryExpr struct {
	Span  Span
	ID    NodeID
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *BinaryExpr) Kind() string    { return "BinaryExpr" }
func (n *BinaryExpr) NodeSpan() Span  { return n.Span }
func (n *BinaryExpr) NodeID() NodeID  { return n.ID }
func (n *BinaryExpr) setID(id NodeID) { n.ID = id }
func (n *BinaryExpr) exprNode()       {}

type UnaryExpr struct {
	Span    Span
	ID      NodeID
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) Kind() string    { return "UnaryExpr" }
func (n *UnaryExpr) NodeSpan() Span  { return n.Span }
func (n *UnaryExpr) NodeID() NodeID  { return n.ID }
func (n *UnaryExpr) setID(id NodeID) { n.ID = id }
func (n *UnaryExpr) exprNode()       {}

// --- Control flow ---

// IfExpr is `if c0 t0 else if c1 t1 ... else e`. Conds and Thens have the
// same length.
type IfExpr struct {
	Span  Span
	ID    NodeID
	Conds []Expr
	Thens []Expr
	Else  Expr
}

func (n *IfExpr) Kind() string    { return "IfExpr" }
func (n *IfExpr) NodeSpan() Span  { return n.Span }
func (n *IfExpr) NodeID() NodeID  { return n.ID }
func (n *IfExpr) setID(id NodeID) { n.ID = id }
func (n *IfExpr) exprNode()       {}

type ForExpr struct {
	Span    Span
	ID      NodeID
	Var     *VarDecl
	Control Expr
	Body    Expr
}

func (n *ForExpr) Kind() string    { return "ForExpr" }
func (n *ForExpr) NodeSpan() Span  { return n.Span }
func (n *ForExpr) NodeID() NodeID  { return n.ID }
func (n *ForExpr) setID(id NodeID) { n.ID = id }
func (n *ForExpr) exprNode()       {}

// BlockExpr is a sequence of `$v = expr;` assignments followed by a value.
type BlockExpr struct {
	Span    Span
	ID      NodeID
	Assigns []*VarDecl
	Value   Expr
}

func (n *BlockExpr) Kind() string    { return "BlockExpr" }
func (n *BlockExpr) NodeSpan() Span  { return n.Span }
func (n *BlockExpr) NodeID() NodeID  { return n.ID }
func (n *BlockExpr) setID(id NodeID) { n.ID = id }
func (n *BlockExpr) exprNode()       {}

// VarDecl introduces a variable. Value is set only for block assignments.
type VarDecl struct {
	Span    Span
	ID      NodeID
	Name    string
	Binding BindingKind
	Value   Expr
}

func (n *VarDecl) Kind() string    { return "VarDecl" }
func (n *VarDecl) NodeSpan() Span  { return n.Span }
func (n *VarDecl) NodeID() NodeID  { return n.ID }
func (n *VarDecl) setID(id NodeID) { n.ID = id }

// --- Document access ---

// NavigateExpr traverses relationship networks. Arcrole is a QName, a
// StrLiteral or nil.
type NavigateExpr struct {
	Span             Span
	ID               NodeID
	Arcrole          Expr
	Direction        string
	IncludeStart     bool
	From             Expr
	To               Expr
	Role             Expr
	Taxonomy         Expr
	ReturnKind       string
	ReturnComponents []string
}

func (n *NavigateExpr) Kind() string    { return "NavigateExpr" }
func (n *NavigateExpr) NodeSpan() Span  { return n.Span }
func (n *NavigateExpr) NodeID() NodeID  { return n.ID }
func (n *NavigateExpr) setID(id NodeID) { n.ID = id }
func (n *NavigateExpr) exprNode()       {}

// FilterExpr is `filter coll where cond returns expr`; Item binds $item.
type FilterExpr struct {
	Span       Span
	ID         NodeID
	Collection Expr
	Item       *VarDecl
	Where      Expr
	Returns    Expr
}

func (n *FilterExpr) Kind() string    { return "FilterExpr" }
func (n *FilterExpr) NodeSpan() Span  { return n.Span }
func (n *FilterExpr) NodeID() NodeID  { return n.ID }
func (n *FilterExpr) setID(id NodeID) { n.ID = id }
func (n *FilterExpr) exprNode()       {}

// FactSelector matches document facts by aspect. Fact binds $fact for the
// where clause.
type FactSelector struct {
	Span    Span
	ID      NodeID
	Covered bool
	Nils    string
	Filters []*AspectFilter
	Fact    *VarDecl
	Where   Expr
}

func (n *FactSelector) Kind() string    { return "FactSelector" }
func (n *FactSelector) NodeSpan() Span  { return n.Span }
func (n *FactSelector) NodeID() NodeID  { return n.ID }
func (n *FactSelector) setID(id NodeID) { n.ID = id }
func (n *FactSelector) exprNode()       {}

// Aspect names recognised by AspectFilter.
const (
	AspectConcept   = "concept"
	AspectPeriod    = "period"
	AspectEntity    = "entity"
	AspectUnit      = "unit"
	AspectCube      = "cube"
	AspectDimension = "dimension"
)

// AspectFilter is one `@aspect op value as $v` clause of a fact selector.
// Op is empty when the aspect is only named; Wildcard is set for `*`.
type AspectFilter struct {
	Span      Span
	ID        NodeID
	Aspect    string
	Dimension *QName
	Op        string
	Wildcard  bool
	Value     Expr
	Alias     *VarDecl
}

func (n *AspectFilter) Kind() string    { return "AspectFilter" }
func (n *AspectFilter) NodeSpan() Span  { return n.Span }
func (n *AspectFilter) NodeID() NodeID  { return n.ID }
func (n *AspectFilter) setID(id NodeID) { n.ID = id }

// --- Declarations ---

type NamespaceDecl struct {
	Span   Span
	ID     NodeID
	Prefix string
	URI    string
}

func (n *NamespaceDecl) Kind() string    { return "NamespaceDecl" }
func (n *NamespaceDecl) NodeSpan() Span  { return n.Span }
func (n *NamespaceDecl) NodeID() NodeID  { return n.ID }
func (n *NamespaceDecl) setID(id NodeID) { n.ID = id }
func (n *NamespaceDecl) declNode()       {}

type RuleNamePrefixDecl struct {
	Span Span
	ID   NodeID
	Name string
}

func (n *RuleNamePrefixDecl) Kind() string    { return "RuleNamePrefixDecl" }
func (n *RuleNamePrefixDecl) NodeSpan() Span  { return n.Span }
func (n *RuleNamePrefixDecl) NodeID() NodeID  { return n.ID }
func (n *RuleNamePrefixDecl) setID(id NodeID) { n.ID = id }
func (n *RuleNamePrefixDecl) declNode()       {}

type RuleNameSeparatorDecl struct {
	Span      Span
	ID        NodeID
	Separator string
}

func (n *RuleNameSeparatorDecl) Kind() string    { return "RuleNameSeparatorDecl" }
func (n *RuleNameSeparatorDecl) NodeSpan() Span  { return n.Span }
func (n *RuleNameSeparatorDecl) NodeID() NodeID  { return n.ID }
func (n *RuleNameSeparatorDecl) setID(id NodeID) { n.ID = id }
func (n *RuleNameSeparatorDecl) declNode()       {}

type OutputAttributeDecl struct {
	Span Span
	ID   NodeID
	Name string
}

func (n *OutputAttributeDecl) Kind() string    { return "OutputAttributeDecl" }
func (n *OutputAttributeDecl) NodeSpan() Span  { return n.Span }
func (n *OutputAttributeDecl) NodeID() NodeID  { return n.ID }
func (n *OutputAttributeDecl) setID(id NodeID) { n.ID = id }
func (n *OutputAttributeDecl) declNode()       {}

type VersionDecl struct {
	Span Span
	ID   NodeID
	Text string
}

func (n *VersionDecl) Kind() string    { return "VersionDecl" }
func (n *VersionDecl) NodeSpan() Span  { return n.Span }
func (n *VersionDecl) NodeID() NodeID  { return n.ID }
func (n *VersionDecl) setID(id NodeID) { n.ID = id }
func (n *VersionDecl) declNode()       {}

type ConstantDecl struct {
	Span  Span
	ID    NodeID
	Name  string
	Value Expr
}

func (n *ConstantDecl) Kind() string    { return "ConstantDecl" }
func (n *ConstantDecl) NodeSpan() Span  { return n.Span }
func (n *ConstantDecl) NodeID() NodeID  { return n.ID }
func (n *ConstantDecl) setID(id NodeID) { n.ID = id }
func (n *ConstantDecl) declNode()       {}

type FunctionDecl struct {
	Span   Span
	ID     NodeID
	Name   string
	Params []*VarDecl
	Body   Expr
}

func (n *FunctionDecl) Kind() string    { return "FunctionDecl" }
func (n *FunctionDecl) NodeSpan() Span  { return n.Span }
func (n *FunctionDecl) NodeID() NodeID  { return n.ID }
func (n *FunctionDecl) setID(id NodeID) { n.ID = id }
func (n *FunctionDecl) declNode()       {}

// RuleDecl is an `assert` or `output` rule. Satisfied is meaningful only
// for assertions.
type RuleDecl struct {
	Span      Span
	ID        NodeID
	Output    bool
	Name      string
	Satisfied bool
	Body      Expr
	Results   []*ResultClause
}

func (n *RuleDecl) Kind() string    { return "RuleDecl" }
func (n *RuleDecl) NodeSpan() Span  { return n.Span }
func (n *RuleDecl) NodeID() NodeID  { return n.ID }
func (n *RuleDecl) setID(id NodeID) { n.ID = id }
func (n *RuleDecl) declNode()       {}

type ResultClause struct {
	Span  Span
	ID    NodeID
	Name  string
	Value Expr
}

func (n *ResultClause) Kind() string    { return "ResultClause" }
func (n *ResultClause) NodeSpan() Span  { return n.Span }
func (n *ResultClause) NodeID() NodeID  { return n.ID }
func (n *ResultClause) setID(id NodeID) { n.ID = id }

// --- File ---

type File struct {
	Span  Span
	ID    NodeID
	Decls []Decl
}

func (n *File) Kind() string    { return "File" }
func (n *File) NodeSpan() Span  { return n.Span }
func (n *File) NodeID() NodeID  { return n.ID }
func (n *File) setID(id NodeID) { n.ID = id }

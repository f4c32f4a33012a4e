package ast

// Children returns the direct children of n in evaluation order. A VarDecl
// appears at the point where its binding becomes visible to later siblings:
// a loop variable after its control expression, $item after the filtered
// collection, $fact after the aspect filters and before the where clause.
func Children(n Node) []Node {
	var out []Node
	add := func(c Node) {
		if c == nil {
			return
		}
		out = append(out, c)
	}
	addExpr := func(e Expr) {
		if e != nil {
			out = append(out, e)
		}
	}

	switch node := n.(type) {
	case *IntLiteral, *DecimalLiteral, *FloatLiteral, *StrLiteral, *BoolLiteral,
		*NoneLiteral, *KeywordLiteral, *QName, *VarRef:
		return nil
	case *FuncCall:
		for _, a := range node.Args {
			addExpr(a)
		}
	case *PropertyExpr:
		addExpr(node.Object)
		for _, a := range node.Args {
			addExpr(a)
		}
	case *IndexExpr:
		addExpr(node.Object)
		addExpr(node.Index)
	case *ListExpr:
		for _, e := range node.Elements {
			addExpr(e)
		}
	case *BinaryExpr:
		addExpr(node.Left)
		addExpr(node.Right)
	case *UnaryExpr:
		addExpr(node.Operand)
	case *IfExpr:
		for i := range node.Conds {
			addExpr(node.Conds[i])
			addExpr(node.Thens[i])
		}
		addExpr(node.Else)
	case *ForExpr:
		addExpr(node.Control)
		if node.Var != nil {
			add(node.Var)
		}
		addExpr(node.Body)
	case *BlockExpr:
		for _, a := range node.Assigns {
			add(a)
		}
		addExpr(node.Value)
	case *VarDecl:
		addExpr(node.Value)
	case *NavigateExpr:
		addExpr(node.Arcrole)
		addExpr(node.From)
		addExpr(node.To)
		addExpr(node.Role)
		addExpr(node.Taxonomy)
	case *FilterExpr:
		addExpr(node.Collection)
		if node.Item != nil {
			add(node.Item)
		}
		addExpr(node.Where)
		addExpr(node.Returns)
	case *FactSelector:
		for _, f := range node.Filters {
			add(f)
		}
		if node.Fact != nil {
			add(node.Fact)
		}
		addExpr(node.Where)
	case *AspectFilter:
		if node.Dimension != nil {
			add(node.Dimension)
		}
		addExpr(node.Value)
		if node.Alias != nil {
			add(node.Alias)
		}
	case *NamespaceDecl, *RuleNamePrefixDecl, *RuleNameSeparatorDecl,
		*OutputAttributeDecl, *VersionDecl:
		return nil
	case *ConstantDecl:
		addExpr(node.Value)
	case *FunctionDecl:
		for _, p := range node.Params {
			add(p)
		}
		addExpr(node.Body)
	case *RuleDecl:
		addExpr(node.Body)
		for _, r := range node.Results {
			add(r)
		}
	case *ResultClause:
		addExpr(node.Value)
	case *File:
		for _, d := range node.Decls {
			add(d)
		}
	}
	return out
}

// Walk traverses the tree rooted at root depth-first with an explicit
// stack. enter is called before a node's children; returning false skips
// the children and the matching exit call. exit is called after all
// children. Either callback may be nil.
func Walk(root Node, enter func(Node) bool, exit func(Node)) {
	type frame struct {
		node    Node
		exiting bool
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.exiting {
			if exit != nil {
				exit(top.node)
			}
			continue
		}
		if enter != nil && !enter(top.node) {
			continue
		}
		stack = append(stack, frame{node: top.node, exiting: true})
		kids := Children(top.node)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: kids[i]})
		}
	}
}

// Index maps node ids of one file back to nodes and records the subtree
// extent and parent of every node.
type Index struct {
	nodes  []Node
	end    []NodeID
	parent []NodeID
}

// AssignIDs numbers every node of f pre-order starting at 1 and returns the
// resulting index. It is the only place node ids are written.
func AssignIDs(f *File) *Index {
	ix := &Index{
		nodes:  []Node{nil},
		end:    []NodeID{0},
		parent: []NodeID{0},
	}
	var open []NodeID
	Walk(f, func(n Node) bool {
		id := NodeID(len(ix.nodes))
		n.setID(id)
		var parent NodeID
		if len(open) > 0 {
			parent = open[len(open)-1]
		}
		ix.nodes = append(ix.nodes, n)
		ix.end = append(ix.end, id)
		ix.parent = append(ix.parent, parent)
		open = append(open, id)
		return true
	}, func(n Node) {
		open = open[:len(open)-1]
		ix.end[n.NodeID()] = NodeID(len(ix.nodes) - 1)
	})
	return ix
}

// Len returns the number of nodes in the file.
func (ix *Index) Len() int { return len(ix.nodes) - 1 }

// Node returns the node with the given id, or nil.
func (ix *Index) Node(id NodeID) Node {
	if id <= 0 || int(id) >= len(ix.nodes) {
		return nil
	}
	return ix.nodes[id]
}

// End returns the largest id inside the subtree rooted at id.
func (ix *Index) End(id NodeID) NodeID {
	if id <= 0 || int(id) >= len(ix.end) {
		return 0
	}
	return ix.end[id]
}

// Parent returns the parent id, or 0 for the file root.
func (ix *Index) Parent(id NodeID) NodeID {
	if id <= 0 || int(id) >= len(ix.parent) {
		return 0
	}
	return ix.parent[id]
}

// Contains reports whether inner lies in the subtree rooted at outer
// (a node contains itself).
func (ix *Index) Contains(outer, inner NodeID) bool {
	return inner >= outer && inner <= ix.End(outer)
}

// Unit is one parsed file with its node index.
type Unit struct {
	ID    int
	Name  string
	Root  *File
	Index *Index
}

// NewUnit assigns node ids to root and wraps it.
func NewUnit(id int, name string, root *File) *Unit {
	return &Unit{ID: id, Name: name, Root: root, Index: AssignIDs(root)}
}

// DeclName returns the declared name of a top-level declaration, or "".
func DeclName(d Decl) string {
	switch n := d.(type) {
	case *ConstantDecl:
		return n.Name
	case *FunctionDecl:
		return n.Name
	case *RuleDecl:
		return n.Name
	case *OutputAttributeDecl:
		return n.Name
	case *NamespaceDecl:
		return n.Prefix
	}
	return ""
}

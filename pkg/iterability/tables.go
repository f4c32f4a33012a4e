package iterability

import (
	"github.com/thomasrohde/rulec/pkg/ast"
)

// tableFrame is the table a node's children inherit. owned marks the
// parts of a construct that belong to its own table: a loop's control
// and variable, an aggregate's argument, a selector's filters and where
// clause. A selector inside an owned part does not open a table.
type tableFrame struct {
	table ast.NodeID
	owned bool
}

// assignTables walks decl top-down and gives every node a table id. The
// declaration root, loops, aggregates and selectors outside an owned part
// open a table equal to their own id; everything else inherits from its
// parent. An id already set is kept, so repeated assignment is a no-op.
// aggregate reports whether a call is a built-in aggregate rather than a
// user function of the same name.
func assignTables(decl ast.Decl, ann *FileAnnotations, aggregate func(*ast.FuncCall) bool) {
	frames := map[ast.NodeID]tableFrame{
		decl.NodeID(): {table: decl.NodeID()},
	}
	ast.Walk(decl, func(n ast.Node) bool {
		f := frames[n.NodeID()]
		delete(frames, n.NodeID())

		opens := false
		switch node := n.(type) {
		case *ast.ForExpr:
			opens = true
		case *ast.FactSelector:
			opens = !f.owned
		case *ast.FuncCall:
			opens = aggregate(node)
		}

		info := ann.Nodes[n.NodeID()]
		if info == nil {
			info = singleInfo()
			ann.Nodes[n.NodeID()] = info
		}
		if info.TableID == 0 {
			if opens {
				info.TableID = n.NodeID()
			} else {
				info.TableID = f.table
			}
		}

		for _, c := range ast.Children(n) {
			child := tableFrame{table: info.TableID, owned: f.owned}
			if opens {
				child.owned = ownedBy(n, c)
			}
			frames[c.NodeID()] = child
		}
		return true
	}, nil)
}

// ownedBy reports whether child belongs to the table its parent opens.
func ownedBy(parent, child ast.Node) bool {
	switch p := parent.(type) {
	case *ast.ForExpr:
		return child.NodeID() != p.Body.NodeID()
	case *ast.FuncCall, *ast.FactSelector:
		return true
	}
	return false
}

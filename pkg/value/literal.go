package value

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/apd"

	"github.com/thomasrohde/rulec/pkg/ast"
)

// decimalContext is used for folding decimal arithmetic.
var decimalContext = &apd.Context{
	Precision:   34,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       apd.DefaultTraps,
}

// FromLiteral converts a literal node, or a list of literals, into a value.
// It reports false for any other expression.
func FromLiteral(e ast.Expr) (Value, bool) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		return Int{Value: n.Value}, true
	case *ast.DecimalLiteral:
		d, _, err := apd.NewFromString(n.Text)
		if err != nil {
			return nil, false
		}
		return Decimal{Value: d}, true
	case *ast.FloatLiteral:
		return Float{Value: n.Value}, true
	case *ast.StrLiteral:
		return String{Value: n.Value}, true
	case *ast.BoolLiteral:
		return Bool{Value: n.Value}, true
	case *ast.NoneLiteral:
		return None{}, true
	case *ast.QName:
		return QName{Prefix: n.Prefix, Local: n.Local}, true
	case *ast.KeywordLiteral:
		switch n.Class {
		case ast.LitForever:
			return Forever{}, true
		case ast.LitSkip:
			return Skip{}, true
		case ast.LitSeverity:
			return Severity{Value: n.Word}, true
		case ast.LitBalance:
			return Balance{Value: n.Word}, true
		case ast.LitPeriodType:
			return PeriodType{Value: n.Word}, true
		}
	case *ast.ListExpr:
		items := make([]Value, 0, len(n.Elements))
		for _, el := range n.Elements {
			v, ok := FromLiteral(el)
			if !ok {
				return nil, false
			}
			items = append(items, v)
		}
		return NewList(items...), true
	}
	return nil, false
}

// TypeOf returns the static type of a literal expression, or TypeUnknown.
func TypeOf(e ast.Expr) Type {
	if v, ok := FromLiteral(e); ok {
		return v.Type()
	}
	return TypeUnknown
}

func toDecimal(v Value) (*apd.Decimal, bool) {
	switch n := v.(type) {
	case Int:
		return apd.New(n.Value, 0), true
	case Decimal:
		return n.Value, true
	}
	return nil, false
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n.Value), true
	case Decimal:
		f, err := n.Value.Float64()
		return f, err == nil
	case Float:
		return n.Value, true
	}
	return 0, false
}

// ErrNotFoldable reports an operation the combination table accepts but
// Fold cannot compute from literals alone.
var ErrNotFoldable = errors.New("operation cannot be folded")

func notFoldable(op Op, a, b Value) error {
	return fmt.Errorf("%w: %s %s %s", ErrNotFoldable, a.Type(), op, b.Type())
}

// Fold applies a binary operator to two values. It covers the operators a
// constant made only of literals can use and returns a *TypeError when the
// combination table rejects the operand types.
func Fold(op Op, a, b Value) (Value, error) {
	rt, err := Combine(op, a.Type(), b.Type())
	if err != nil {
		return nil, err
	}

	switch op {
	case "==":
		return Bool{Value: Shadow(a) == Shadow(b)}, nil
	case "!=":
		return Bool{Value: Shadow(a) != Shadow(b)}, nil
	case "and":
		return Bool{Value: a.(Bool).Value && b.(Bool).Value}, nil
	case "or":
		return Bool{Value: a.(Bool).Value || b.(Bool).Value}, nil
	}

	switch rt {
	case TypeInteger:
		x, y := a.(Int).Value, b.(Int).Value
		switch op {
		case "+":
			return Int{Value: x + y}, nil
		case "-":
			return Int{Value: x - y}, nil
		case "*":
			return Int{Value: x * y}, nil
		}
	case TypeDecimal:
		x, _ := toDecimal(a)
		y, _ := toDecimal(b)
		res := new(apd.Decimal)
		var err error
		switch op {
		case "+":
			_, err = decimalContext.Add(res, x, y)
		case "-":
			_, err = decimalContext.Sub(res, x, y)
		case "*":
			_, err = decimalContext.Mul(res, x, y)
		case "/":
			_, err = decimalContext.Quo(res, x, y)
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s %s: %w", Shadow(a), op, Shadow(b), err)
		}
		return Decimal{Value: res}, nil
	case TypeFloat:
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		switch op {
		case "+":
			return Float{Value: x + y}, nil
		case "-":
			return Float{Value: x - y}, nil
		case "*":
			return Float{Value: x * y}, nil
		case "/":
			if y == 0 {
				return Float{Value: math.Inf(1)}, nil
			}
			return Float{Value: x / y}, nil
		}
	case TypeString:
		return String{Value: stringOf(a) + stringOf(b)}, nil
	case TypeBoolean:
		return compare(op, a, b)
	case TypeList:
		if op == "-" {
			drop := NewSet(itemsOf(b)...)
			var out []Value
			for _, it := range itemsOf(a) {
				if !drop.Contains(it) {
					out = append(out, it)
				}
			}
			return NewList(out...), nil
		}
		return NewList(append(append([]Value{}, itemsOf(a)...), itemsOf(b)...)...), nil
	case TypeSet:
		return setOp(op, itemsOf(a), itemsOf(b)), nil
	}
	return nil, notFoldable(op, a, b)
}

func stringOf(v Value) string {
	switch s := v.(type) {
	case String:
		return s.Value
	case URI:
		return s.Value
	}
	return ""
}

func itemsOf(v Value) []Value {
	switch c := v.(type) {
	case List:
		return c.Items
	case Set:
		return c.Items
	}
	return nil
}

func setOp(op Op, left, right []Value) Set {
	r := NewSet(right...)
	l := NewSet(left...)
	switch op {
	case "&":
		var out []Value
		for _, it := range l.Items {
			if r.Contains(it) {
				out = append(out, it)
			}
		}
		return NewSet(out...)
	case "^":
		var out []Value
		for _, it := range l.Items {
			if !r.Contains(it) {
				out = append(out, it)
			}
		}
		for _, it := range r.Items {
			if !l.Contains(it) {
				out = append(out, it)
			}
		}
		return NewSet(out...)
	case "-":
		var out []Value
		for _, it := range l.Items {
			if !r.Contains(it) {
				out = append(out, it)
			}
		}
		return NewSet(out...)
	}
	return NewSet(append(append([]Value{}, left...), right...)...)
}

func compare(op Op, a, b Value) (Value, error) {
	switch op {
	case "in", "not in":
		found := false
		switch c := b.(type) {
		case List:
			for _, it := range c.Items {
				if Shadow(it) == Shadow(a) {
					found = true
				}
			}
		case Set:
			found = c.Contains(a)
		case Dictionary:
			_, found = c.Get(a)
		default:
			if !isStringy(a.Type()) || !isStringy(b.Type()) {
				return nil, notFoldable(op, a, b)
			}
			found = strings.Contains(stringOf(b), stringOf(a))
		}
		if op == "not in" {
			found = !found
		}
		return Bool{Value: found}, nil
	}

	var c int
	switch {
	case a.Type().IsNumeric() && b.Type().IsNumeric():
		x, xok := toDecimal(a)
		y, yok := toDecimal(b)
		if xok && yok {
			c = x.Cmp(y)
		} else {
			xf, _ := toFloat(a)
			yf, _ := toFloat(b)
			c = cmpFloat(xf, yf)
		}
	case isStringy(a.Type()):
		c = cmpString(stringOf(a), stringOf(b))
	default:
		return nil, notFoldable(op, a, b)
	}
	switch op {
	case "<":
		return Bool{Value: c < 0}, nil
	case "<=":
		return Bool{Value: c <= 0}, nil
	case ">":
		return Bool{Value: c > 0}, nil
	case ">=":
		return Bool{Value: c >= 0}, nil
	}
	return nil, notFoldable(op, a, b)
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpString(x, y string) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

package value

import (
	"fmt"
)

// Op is a binary operator as written in rule source.
type Op string

// TypeError reports an operator applied to incompatible types.
type TypeError struct {
	Op    Op
	Left  Type
	Right Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("cannot apply '%s' to %s and %s", e.Op, e.Left, e.Right)
}

// numericRank orders the number types by widening: int < decimal < float.
var numericRank = map[Type]int{
	TypeInteger: 0,
	TypeDecimal: 1,
	TypeFloat:   2,
}

func widerNumeric(a, b Type) Type {
	if numericRank[a] >= numericRank[b] {
		return a
	}
	return b
}

func isStringy(t Type) bool {
	return t == TypeString || t == TypeURI
}

func isCollection(t Type) bool {
	return t == TypeList || t == TypeSet
}

// Combine returns the result type of `a op b`. The table is symmetric:
// Combine(op, a, b) and Combine(op, b, a) agree on success and failure.
// An unknown operand type yields an unknown result without error.
func Combine(op Op, a, b Type) (Type, error) {
	if a == TypeUnknown || b == TypeUnknown {
		return TypeUnknown, nil
	}
	fail := func() (Type, error) {
		return TypeUnknown, &TypeError{Op: op, Left: a, Right: b}
	}

	switch op {
	case "or", "and":
		if a == TypeBoolean && b == TypeBoolean {
			return TypeBoolean, nil
		}
		return fail()

	case "==", "!=":
		return TypeBoolean, nil

	case "<", "<=", ">", ">=":
		switch {
		case a.IsNumeric() && b.IsNumeric():
			return TypeBoolean, nil
		case isStringy(a) && isStringy(b):
			return TypeBoolean, nil
		case a == b && (a == TypeInstant || a == TypeQName):
			return TypeBoolean, nil
		}
		return fail()

	case "in", "not in":
		// Membership is symmetric as a type rule: one side must be a
		// container or both sides strings.
		if a.IsComposite() || b.IsComposite() || (isStringy(a) && isStringy(b)) {
			return TypeBoolean, nil
		}
		return fail()

	case "+":
		switch {
		case a.IsNumeric() && b.IsNumeric():
			return widerNumeric(a, b), nil
		case isStringy(a) && isStringy(b):
			return TypeString, nil
		case (a == TypeInstant && b == TypeDuration) || (a == TypeDuration && b == TypeInstant):
			return TypeInstant, nil
		case a == b && a.IsComposite():
			return a, nil
		case isCollection(a) && isCollection(b):
			return TypeList, nil
		}
		return fail()

	case "-":
		switch {
		case a.IsNumeric() && b.IsNumeric():
			return widerNumeric(a, b), nil
		case (a == TypeInstant && b == TypeDuration) || (a == TypeDuration && b == TypeInstant):
			return TypeInstant, nil
		case a == TypeInstant && b == TypeInstant:
			return TypeDuration, nil
		case a == b && a.IsComposite():
			return a, nil
		}
		return fail()

	case "*":
		if a.IsNumeric() && b.IsNumeric() {
			return widerNumeric(a, b), nil
		}
		return fail()

	case "/":
		if a.IsNumeric() && b.IsNumeric() {
			w := widerNumeric(a, b)
			if w == TypeInteger {
				return TypeDecimal, nil
			}
			return w, nil
		}
		return fail()

	case "|", "&", "^":
		switch {
		case a == TypeSet && b == TypeSet:
			return TypeSet, nil
		case isCollection(a) && isCollection(b):
			return TypeSet, nil
		case a == TypeDictionary && b == TypeDictionary && op == "|":
			return TypeDictionary, nil
		}
		return fail()
	}
	return fail()
}

package resolve

import (
	"strconv"
	"strings"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Update operators.
const (
	opSet   = "$set"
	opUnset = "$unset"
	opInc   = "$inc"
	opPush  = "$push"
)

func invalidUpdate(path, format string, args ...any) *apierr.Error {
	return apierr.New(apierr.CodeInvalidUpdate, format, args...).With("path", path)
}

// checkDocumentUpdate validates a collection update clause before any
// document is read.
func checkDocumentUpdate(ops []command.UpdateOp) error {
	if len(ops) == 0 {
		return apierr.New(apierr.CodeInvalidUpdate, "update clause is empty")
	}
	var paths []string
	for _, op := range ops {
		switch op.Operator {
		case opSet, opUnset, opPush:
		case opInc:
			if _, ok := op.Value.(ir.Number); !ok {
				return invalidUpdate(op.Path, "%s on %q requires a number, got %s", op.Operator, op.Path, ir.KindOf(op.Value))
			}
		default:
			return apierr.New(apierr.CodeUnsupportedUpdateOperator, "update operator %q is not supported", op.Operator).
				With("operator", op.Operator)
		}
		if op.Path == "" || strings.HasPrefix(op.Path, "$") {
			return invalidUpdate(op.Path, "invalid update path %q", op.Path)
		}
		if op.Path == schema.IDField || strings.HasPrefix(op.Path, schema.IDField+".") {
			return invalidUpdate(op.Path, "%s cannot be updated", schema.IDField)
		}
		for _, p := range paths {
			if overlaps(p, op.Path) {
				return invalidUpdate(op.Path, "update paths %q and %q conflict", p, op.Path)
			}
		}
		paths = append(paths, op.Path)
	}
	return nil
}

// overlaps reports equal paths and paths where one is inside the other.
func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// applyUpdate applies ops to a copy of doc. The second result is false
// when the document already was in the requested state.
func applyUpdate(doc ir.Object, ops []command.UpdateOp) (ir.Object, bool, error) {
	out := doc.Clone()
	changed := false
	for _, op := range ops {
		current, exists := ir.Lookup(out, op.Path)

		var next ir.Value
		switch op.Operator {
		case opSet:
			if exists && ir.Equal(current, op.Value) {
				continue
			}
			next = op.Value

		case opUnset:
			if unsetPath(out, op.Path) {
				changed = true
			}
			continue

		case opInc:
			inc := op.Value.(ir.Number)
			if !exists {
				next = inc
				break
			}
			n, ok := current.(ir.Number)
			if !ok {
				return nil, false, invalidUpdate(op.Path, "%s cannot increment %q holding %s", op.Operator, op.Path, ir.KindOf(current))
			}
			if inc.Sign() == 0 {
				continue
			}
			sum, err := n.Add(inc)
			if err != nil {
				return nil, false, invalidUpdate(op.Path, "%s on %q: %v", op.Operator, op.Path, err)
			}
			next = sum

		case opPush:
			items := ir.Array{op.Value}
			if each, ok := pushEach(op.Value); ok {
				items = each
			}
			if !exists {
				next = items
				break
			}
			arr, ok := current.(ir.Array)
			if !ok {
				return nil, false, invalidUpdate(op.Path, "%s cannot append to %q holding %s", op.Operator, op.Path, ir.KindOf(current))
			}
			if len(items) == 0 {
				continue
			}
			next = append(append(ir.Array{}, arr...), items...)

		default:
			return nil, false, apierr.New(apierr.CodeUnsupportedUpdateOperator, "update operator %q is not supported", op.Operator)
		}

		if err := setPath(out, op.Path, next); err != nil {
			return nil, false, err
		}
		changed = true
	}
	return out, changed, nil
}

// pushEach unpacks {"$each": [...]}.
func pushEach(v ir.Value) (ir.Array, bool) {
	obj, ok := v.(ir.Object)
	if !ok || len(obj) != 1 {
		return nil, false
	}
	each, ok := obj["$each"].(ir.Array)
	return each, ok
}

// setPath stores v at a dotted path, creating missing objects on the way.
// Numeric segments address existing array elements.
func setPath(doc ir.Object, path string, v ir.Value) error {
	segs := strings.Split(path, ".")
	var cur ir.Value = doc
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case ir.Object:
			if last {
				node[seg] = v
				return nil
			}
			next, ok := node[seg]
			if !ok {
				next = ir.Object{}
				node[seg] = next
			}
			cur = next
		case ir.Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return invalidUpdate(path, "cannot address %q of an array with %d elements in %q", seg, len(node), path)
			}
			if last {
				node[idx] = v
				return nil
			}
			cur = node[idx]
		default:
			return invalidUpdate(path, "cannot create field %q inside %s value in %q", seg, ir.KindOf(cur), path)
		}
	}
	return nil
}

// unsetPath removes the field at path. Array elements are set to null so
// later positions keep their index. Reports whether anything was removed.
func unsetPath(doc ir.Object, path string) bool {
	segs := strings.Split(path, ".")
	parent := strings.Join(segs[:len(segs)-1], ".")
	leaf := segs[len(segs)-1]

	var container ir.Value = doc
	if parent != "" {
		var ok bool
		if container, ok = ir.Lookup(doc, parent); !ok {
			return false
		}
	}
	switch node := container.(type) {
	case ir.Object:
		if _, ok := node[leaf]; !ok {
			return false
		}
		delete(node, leaf)
		return true
	case ir.Array:
		idx, err := strconv.Atoi(leaf)
		if err != nil || idx < 0 || idx >= len(node) {
			return false
		}
		if _, isNull := node[idx].(ir.Null); isNull {
			return false
		}
		node[idx] = ir.Null{}
		return true
	}
	return false
}

package ir

import "strings"

// typeRank orders values of different kinds for sorting.
var typeRank = map[Kind]int{
	KindNull:   0,
	KindNumber: 1,
	KindString: 2,
	KindObject: 3,
	KindArray:  4,
	KindBool:   5,
	KindDate:   6,
}

// Compare defines a total order over values. Values of different kinds
// order by kind (null < number < string < object < array < bool < date);
// values of the same kind compare naturally. Objects compare by canonical
// key order, then value.
func Compare(a, b Value) int {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return typeRank[ka] - typeRank[kb]
	}

	switch av := a.(type) {
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case Number:
		return av.Cmp(b.(Number))
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Date:
		bv := b.(Date)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case Array:
		bv := b.(Array)
		for i := 0; i < min(len(av), len(bv)); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return len(av) - len(bv)
	case Object:
		bv := b.(Object)
		ak, bk := av.SortedKeys(), bv.SortedKeys()
		for i := 0; i < min(len(ak), len(bk)); i++ {
			if c := compareUTF16(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(av[ak[i]], bv[bk[i]]); c != 0 {
				return c
			}
		}
		return len(ak) - len(bk)
	default:
		return 0
	}
}

// Equal reports whether two values are equal. Numbers compare numerically,
// so 1 and 1.0 are equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Lookup resolves a dotted path inside an object. Numeric segments index
// into arrays. The second result is false when the path does not exist.
func Lookup(obj Object, path string) (Value, bool) {
	var cur Value = obj
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case Object:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case Array:
			idx, ok := arrayIndex(seg, len(node))
			if !ok {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func arrayIndex(seg string, n int) (int, bool) {
	if seg == "" {
		return 0, false
	}
	idx := 0
	for _, c := range seg {
		if c < '0' || c > '9' {
			return 0, false
		}
		idx = idx*10 + int(c-'0')
		if idx >= n {
			return 0, false
		}
	}
	return idx, true
}

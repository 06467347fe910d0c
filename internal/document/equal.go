package document

// Equal reports content equality. List order matters; section entries are
// compared by key, so two sections holding the same pairs in a different
// order are equal.
func Equal(a, b Document) bool {
	return compare(a, b, false)
}

// SameShape reports whether a and b have the same kinds, list lengths and
// section keys at every position. Text contents are ignored.
func SameShape(a, b Document) bool {
	return compare(a, b, true)
}

func compare(a, b Document, shapeOnly bool) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindText:
		return shapeOnly || a.text == b.text
	case KindScalar:
		return a.Raw() == b.Raw()
	case KindList:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !compare(a.items[i], b.items[i], shapeOnly) {
				return false
			}
		}
		return true
	case KindSection:
		if len(a.entries) != len(b.entries) {
			return false
		}
		for _, e := range a.entries {
			other, ok := b.Get(e.Key)
			if !ok || !compare(e.Value, other, shapeOnly) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

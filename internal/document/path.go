package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Step is one hop from a container to a child: a section key or a list
// index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns a step into a section.
func Key(k string) Step {
	return Step{Key: k}
}

// Index returns a step into a list.
func Index(i int) Step {
	return Step{Index: i, IsIndex: true}
}

func (s Step) token() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// Path locates a node from the document root. The empty path is the root.
type Path []Step

// Child returns a new path extended by s. The receiver is never shared
// with the result.
func (p Path) Child(s Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
var pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")

// String renders p as a JSON Pointer, e.g. "/Experience/1".
func (p Path) String() string {
	var b strings.Builder
	for _, s := range p {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(s.token()))
	}
	return b.String()
}

// Equal reports whether p and q address the same node.
func (p Path) Equal(q Path) bool {
	return p.String() == q.String()
}

// ParsePath parses a JSON Pointer. Tokens are kept as keys; when a path is
// resolved against a list, numeric keys are read as indices.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("path %q must start with '/'", s)
	}
	parts := strings.Split(s[1:], "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		p = append(p, Key(pointerUnescaper.Replace(part)))
	}
	return p, nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// MarshalJSON encodes the path as its pointer string.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a pointer string.
func (p *Path) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// resolveIndex reads a step as a list index.
func (s Step) resolveIndex() (int, bool) {
	if s.IsIndex {
		return s.Index, true
	}
	// Reject forms like "01" or "+1" that Atoi would accept.
	if s.Key == "" || (len(s.Key) > 1 && s.Key[0] == '0') || s.Key[0] == '+' || s.Key[0] == '-' {
		return 0, false
	}
	i, err := strconv.Atoi(s.Key)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Lookup returns the node at path.
func Lookup(doc Document, path Path) (Document, bool) {
	cur := doc
	for _, step := range path {
		switch cur.kind {
		case KindList:
			i, ok := step.resolveIndex()
			if !ok {
				return Document{}, false
			}
			next, ok := cur.Index(i)
			if !ok {
				return Document{}, false
			}
			cur = next
		case KindSection:
			next, ok := cur.Get(step.token())
			if !ok {
				return Document{}, false
			}
			cur = next
		default:
			return Document{}, false
		}
	}
	return cur, true
}

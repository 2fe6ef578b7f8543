// Package instruction parses stage instructions and fills their
// {{stage.key}} placeholders from earlier stage outputs.
//
// A placeholder names the producing stage and the output key it writes:
//
//	Use the plan from {{planner_research_agent.research_output}}.
//
// Rendering is a single pass over the parsed template. Substituted text is
// inserted verbatim and never scanned for further placeholders. Text in
// single braces is left alone.
package instruction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var placeholderRegex = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Reference is one placeholder: the stage that produces a value and the
// output key it is stored under.
type Reference struct {
	Stage string
	Key   string
}

func (r Reference) String() string {
	return r.Stage + "." + r.Key
}

// Template is a parsed instruction.
type Template struct {
	raw      string
	segments []segment
	refs     []Reference
}

type segment struct {
	text string
	ref  *Reference
}

// ParseError reports a malformed placeholder.
type ParseError struct {
	Placeholder string
	Reason      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed placeholder %s: %s", e.Placeholder, e.Reason)
}

// UnresolvedReferenceError reports a placeholder whose value is not
// available, either at validation time or at render time.
type UnresolvedReferenceError struct {
	Stage string
	Key   string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference {{%s.%s}}", e.Stage, e.Key)
}

// Parse scans raw for {{stage.key}} placeholders.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	seen := make(map[Reference]bool)

	lastIndex := 0
	for _, m := range placeholderRegex.FindAllStringSubmatchIndex(raw, -1) {
		start, end := m[0], m[1]
		if start > lastIndex {
			t.segments = append(t.segments, segment{text: raw[lastIndex:start]})
		}

		ref, err := parseReference(raw[start:end], raw[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		t.segments = append(t.segments, segment{ref: &ref})
		if !seen[ref] {
			seen[ref] = true
			t.refs = append(t.refs, ref)
		}
		lastIndex = end
	}
	if lastIndex < len(raw) {
		t.segments = append(t.segments, segment{text: raw[lastIndex:]})
	}
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func parseReference(match, inner string) (Reference, error) {
	parts := strings.Split(strings.TrimSpace(inner), ".")
	if len(parts) != 2 {
		return Reference{}, &ParseError{Placeholder: match, Reason: "want {{stage.key}}"}
	}
	for _, p := range parts {
		if !IsIdentifier(p) {
			return Reference{}, &ParseError{Placeholder: match, Reason: fmt.Sprintf("%q is not an identifier", p)}
		}
	}
	return Reference{Stage: parts[0], Key: parts[1]}, nil
}

// IsIdentifier reports whether s is a non-empty name made of letters,
// digits and underscores that does not start with a digit.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// Raw returns the unparsed instruction.
func (t *Template) Raw() string {
	return t.raw
}

// References returns the placeholders in first-appearance order, without
// duplicates.
func (t *Template) References() []Reference {
	out := make([]Reference, len(t.refs))
	copy(out, t.refs)
	return out
}

// Keys returns the distinct output keys the template reads.
func (t *Template) Keys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, r := range t.refs {
		if !seen[r.Key] {
			seen[r.Key] = true
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Render substitutes every placeholder with lookup(key). The first key that
// lookup cannot supply yields an *UnresolvedReferenceError.
func (t *Template) Render(lookup func(key string) (string, bool)) (string, error) {
	var result strings.Builder
	result.Grow(len(t.raw))
	for _, seg := range t.segments {
		if seg.ref == nil {
			result.WriteString(seg.text)
			continue
		}
		value, ok := lookup(seg.ref.Key)
		if !ok {
			return "", &UnresolvedReferenceError{Stage: seg.ref.Stage, Key: seg.ref.Key}
		}
		result.WriteString(value)
	}
	return result.String(), nil
}

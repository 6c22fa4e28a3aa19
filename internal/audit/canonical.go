package audit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Canonical encoding rules:
//   - keys sorted byte-wise lexicographic
//   - strings escaped (backslash, double quote only) and quoted
//   - money fixed at 2 decimal places, prices fixed at 8, ints bare
//   - no whitespace anywhere
//
// Two implementations on different platforms must produce byte-identical
// output for the same logical field set; every eventHash depends on it.

type fieldKind int

const (
	kindString fieldKind = iota
	kindMoney            // 2 decimal places
	kindPrice            // 8 decimal places
	kindInt
)

// moneyPlaces and pricePlaces are fixed by the wire format. Changing either
// invalidates every previously committed hash.
const (
	moneyPlaces = 2
	pricePlaces = 8
)

type field struct {
	key  string
	kind fieldKind
	str  string
	dec  decimal.Decimal
	num  int64
}

// FieldSet is an ordered-insertion, order-independent set of named fields.
// Keys must be unique; the last Put for a key wins.
type FieldSet struct {
	fields []field
}

// NewFieldSet creates an empty field set.
func NewFieldSet() *FieldSet {
	return &FieldSet{}
}

func (fs *FieldSet) put(f field) *FieldSet {
	for i := range fs.fields {
		if fs.fields[i].key == f.key {
			fs.fields[i] = f
			return fs
		}
	}
	fs.fields = append(fs.fields, f)
	return fs
}

// PutString adds a string field.
func (fs *FieldSet) PutString(key, value string) *FieldSet {
	return fs.put(field{key: key, kind: kindString, str: value})
}

// PutMoney adds a monetary field (fixed 2 decimal places).
func (fs *FieldSet) PutMoney(key string, value decimal.Decimal) *FieldSet {
	return fs.put(field{key: key, kind: kindMoney, dec: value})
}

// PutPrice adds a price field (fixed 8 decimal places).
func (fs *FieldSet) PutPrice(key string, value decimal.Decimal) *FieldSet {
	return fs.put(field{key: key, kind: kindPrice, dec: value})
}

// PutInt adds an integer field (no decimal point, no exponent).
func (fs *FieldSet) PutInt(key string, value int64) *FieldSet {
	return fs.put(field{key: key, kind: kindInt, num: value})
}

// PutUint adds an unsigned integer field.
func (fs *FieldSet) PutUint(key string, value uint64) *FieldSet {
	return fs.put(field{key: key, kind: kindInt, num: int64(value)})
}

// Clone returns an independent copy of the field set.
func (fs *FieldSet) Clone() *FieldSet {
	out := &FieldSet{fields: make([]field, len(fs.fields))}
	copy(out.fields, fs.fields)
	return out
}

// Len returns the number of fields.
func (fs *FieldSet) Len() int {
	return len(fs.fields)
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (f *field) renderValue() string {
	switch f.kind {
	case kindString:
		return `"` + stringEscaper.Replace(f.str) + `"`
	case kindMoney:
		return f.dec.StringFixed(moneyPlaces)
	case kindPrice:
		return f.dec.StringFixed(pricePlaces)
	default:
		return strconv.FormatInt(f.num, 10)
	}
}

// Encode produces the single canonical string for this field set,
// independent of insertion order.
func (fs *FieldSet) Encode() string {
	sorted := make([]field, len(fs.fields))
	copy(sorted, fs.fields)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].key < sorted[j].key
	})

	var b strings.Builder
	b.WriteByte('{')
	for i := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(stringEscaper.Replace(sorted[i].key))
		b.WriteString(`":`)
		b.WriteString(sorted[i].renderValue())
	}
	b.WriteByte('}')
	return b.String()
}

// mergeCanonical re-sorts the fields of fs together with the raw key:value
// pairs of an already-canonical object and re-encodes them. Used by the
// verifier to rebuild a hash input from a journaled payload without knowing
// the original field kinds.
func mergeCanonical(fs *FieldSet, rawObject string) (string, error) {
	pairs, err := splitCanonicalObject(rawObject)
	if err != nil {
		return "", err
	}
	for i := range fs.fields {
		pairs = append(pairs, rawPair{key: fs.fields[i].key, raw: fs.fields[i].renderValue()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var b strings.Builder
	b.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(stringEscaper.Replace(p.key))
		b.WriteString(`":`)
		b.WriteString(p.raw)
	}
	b.WriteByte('}')
	return b.String(), nil
}

type rawPair struct {
	key string
	raw string
}

// splitCanonicalObject scans a canonical `{...}` object into raw key/value
// pairs. Values are either quoted strings (backslash escapes) or bare
// number tokens; nested containers do not occur in this format.
func splitCanonicalObject(s string) ([]rawPair, error) {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("not a canonical object: %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, nil
	}

	var pairs []rawPair
	i := 0
	for i < len(body) {
		key, next, err := scanCanonicalString(body, i)
		if err != nil {
			return nil, err
		}
		if next >= len(body) || body[next] != ':' {
			return nil, fmt.Errorf("expected ':' at offset %d", next)
		}
		next++

		var raw string
		if next < len(body) && body[next] == '"' {
			_, end, err := scanCanonicalString(body, next)
			if err != nil {
				return nil, err
			}
			raw = body[next:end]
			next = end
		} else {
			end := next
			for end < len(body) && body[end] != ',' {
				end++
			}
			raw = body[next:end]
			if raw == "" {
				return nil, fmt.Errorf("empty value for key %q", key)
			}
			next = end
		}
		pairs = append(pairs, rawPair{key: key, raw: raw})

		if next < len(body) {
			if body[next] != ',' {
				return nil, fmt.Errorf("expected ',' at offset %d", next)
			}
			next++
		}
		i = next
	}
	return pairs, nil
}

// scanCanonicalString reads a quoted string starting at offset i and returns
// the unescaped content plus the offset just past the closing quote.
func scanCanonicalString(s string, i int) (string, int, error) {
	if i >= len(s) || s[i] != '"' {
		return "", 0, fmt.Errorf("expected '\"' at offset %d", i)
	}
	var b strings.Builder
	j := i + 1
	for j < len(s) {
		switch s[j] {
		case '\\':
			if j+1 >= len(s) {
				return "", 0, fmt.Errorf("dangling escape at offset %d", j)
			}
			b.WriteByte(s[j+1])
			j += 2
		case '"':
			return b.String(), j + 1, nil
		default:
			b.WriteByte(s[j])
			j++
		}
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", i)
}

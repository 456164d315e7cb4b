package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes any JSON document. Integral numbers become ints.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// CanonicalKey returns a canonical JSON form of v: RFC 8785 (record keys in
// UTF-16 order, jcs string and float encoding), except that integral numbers
// are written as exact integers so distinct ints above 2^53 keep distinct keys.
//
// Values that are Equal produce the same key, so the key can be used to group
// values (voting) or to hash them.
func (v Value) CanonicalKey() string {
	var b strings.Builder
	v.writeCanonical(&b)
	return b.String()
}

func (v Value) writeCanonical(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if n, ok := exactInt(v.f); ok {
			b.WriteString(strconv.FormatInt(n, 10))
			return
		}
		b.WriteString(canonicalLeaf(v.f))
	case KindString:
		b.WriteString(canonicalLeaf(v.s))
	case KindList:
		b.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			item.writeCanonical(b)
		}
		b.WriteByte(']')
	case KindRecord:
		keys := make([]string, 0, len(v.rec))
		for k := range v.rec {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalLeaf(k))
			b.WriteByte(':')
			v.rec[k].writeCanonical(b)
		}
		b.WriteByte('}')
	}
}

// canonicalLeaf encodes a string or float with jcs.
func canonicalLeaf(x any) string {
	raw, err := json.Marshal(x)
	if err != nil {
		// NaN and Inf have no JSON form.
		return fmt.Sprintf("%v", x)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return string(raw)
	}
	return string(canon)
}

func lessUTF16(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

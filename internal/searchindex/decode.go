package searchindex

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

const setIndexPrefix = "Search.setIndex("

// SyntaxError reports where the input stopped being a valid index literal.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformed
}

func fieldError(field string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, field, fmt.Sprintf(format, args...))
}

// Decode reads a serialized index from r.
func Decode(r io.Reader) (*SearchIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading search index: %w", err)
	}
	return Parse(data)
}

// Parse decodes a serialized index. It accepts the Search.setIndex(...) call
// a build writes, optionally terminated by a semicolon, or the bare object
// literal.
func Parse(data []byte) (*SearchIndex, error) {
	body, offset, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	p := &literalParser{data: body, base: offset}
	p.skipSpace()
	root, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.data) {
		return nil, p.errorf("unexpected trailing data")
	}
	return fromValue(root)
}

func unwrap(data []byte) ([]byte, int, error) {
	start := len(data) - len(bytes.TrimLeft(data, " \t\r\n\ufeff"))
	trimmed := bytes.TrimSpace(data[start:])
	if !bytes.HasPrefix(trimmed, []byte(setIndexPrefix)) {
		return trimmed, start, nil
	}
	trimmed = bytes.TrimSuffix(trimmed, []byte(";"))
	trimmed = bytes.TrimRight(trimmed, " \t\r\n")
	if !bytes.HasSuffix(trimmed, []byte(")")) {
		return nil, 0, &SyntaxError{Offset: start + len(trimmed), Msg: "unterminated Search.setIndex call"}
	}
	inner := trimmed[len(setIndexPrefix) : len(trimmed)-1]
	return inner, start + len(setIndexPrefix), nil
}

type literalParser struct {
	data []byte
	pos  int
	base int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.base + p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) parseValue() (Value, error) {
	if p.pos >= len(p.data) {
		return Value{}, p.errorf("unexpected end of input")
	}
	switch c := p.data[p.pos]; {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	case c == '-' || isDigit(c):
		return p.parseInt()
	case isIdentStart(c):
		word := p.parseIdent()
		switch word {
		case "true":
			return Value{Kind: KindBool, Bool: true}, nil
		case "false":
			return Value{Kind: KindBool}, nil
		case "null":
			return Value{Kind: KindNull}, nil
		}
		return Value{}, p.errorf("unexpected identifier %q", word)
	default:
		return Value{}, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) parseObject() (Value, error) {
	p.pos++ // {
	obj := make(map[string]Value)
	p.skipSpace()
	if p.pos < len(p.data) && p.data[p.pos] == '}' {
		p.pos++
		return Value{Kind: KindObject, Object: obj}, nil
	}
	for {
		p.skipSpace()
		keyPos := p.pos
		key, err := p.parseKey()
		if err != nil {
			return Value{}, err
		}
		if _, dup := obj[key]; dup {
			p.pos = keyPos
			return Value{}, p.errorf("duplicate key %q", key)
		}
		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return Value{}, err
		}
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		obj[key] = v
		p.skipSpace()
		if p.pos >= len(p.data) {
			return Value{}, p.errorf("unterminated object")
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return Value{Kind: KindObject, Object: obj}, nil
		default:
			return Value{}, p.errorf("expected ',' or '}' in object")
		}
	}
}

func (p *literalParser) parseKey() (string, error) {
	if p.pos >= len(p.data) {
		return "", p.errorf("unexpected end of input, expected key")
	}
	c := p.data[p.pos]
	switch {
	case c == '"':
		return p.parseString()
	case isIdentStart(c) || isDigit(c):
		return p.parseIdent(), nil
	default:
		return "", p.errorf("unexpected character %q, expected key", c)
	}
}

func (p *literalParser) parseArray() (Value, error) {
	p.pos++ // [
	arr := make([]Value, 0)
	p.skipSpace()
	if p.pos < len(p.data) && p.data[p.pos] == ']' {
		p.pos++
		return Value{Kind: KindArray, Array: arr}, nil
	}
	for {
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		arr = append(arr, v)
		p.skipSpace()
		if p.pos >= len(p.data) {
			return Value{}, p.errorf("unterminated array")
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return Value{Kind: KindArray, Array: arr}, nil
		default:
			return Value{}, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *literalParser) parseInt() (Value, error) {
	start := p.pos
	if p.data[p.pos] == '-' {
		p.pos++
	}
	digits := p.pos
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
	}
	if p.pos == digits {
		return Value{}, p.errorf("expected digits")
	}
	if p.pos < len(p.data) {
		switch p.data[p.pos] {
		case '.', 'e', 'E':
			return Value{}, p.errorf("non-integer number")
		}
	}
	n, err := strconv.ParseInt(string(p.data[start:p.pos]), 10, 64)
	if err != nil {
		p.pos = start
		return Value{}, p.errorf("invalid integer: %v", err)
	}
	return Value{Kind: KindInt, Int: n}, nil
}

func (p *literalParser) parseIdent() string {
	start := p.pos
	for p.pos < len(p.data) && (isIdentStart(p.data[p.pos]) || isDigit(p.data[p.pos])) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func (p *literalParser) parseString() (string, error) {
	p.pos++ // opening quote
	var buf []byte
	for {
		if p.pos >= len(p.data) {
			return "", p.errorf("unterminated string")
		}
		c := p.data[p.pos]
		switch c {
		case '"':
			p.pos++
			return string(buf), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.data) {
				return "", p.errorf("unterminated escape")
			}
			esc := p.data[p.pos]
			p.pos++
			switch esc {
			case '"', '\\', '/', '\'':
				buf = append(buf, esc)
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'u':
				r, err := p.parseUnicodeEscape()
				if err != nil {
					return "", err
				}
				buf = utf8.AppendRune(buf, r)
			default:
				p.pos -= 2
				return "", p.errorf("invalid escape \\%c", esc)
			}
		default:
			if c < utf8.RuneSelf {
				buf = append(buf, c)
				p.pos++
				continue
			}
			r, size := utf8.DecodeRune(p.data[p.pos:])
			if r == utf8.RuneError && size <= 1 {
				return "", p.errorf("invalid UTF-8 in string")
			}
			buf = append(buf, p.data[p.pos:p.pos+size]...)
			p.pos += size
		}
	}
}

// parseUnicodeEscape reads the hex digits of a \u escape (the "\u" has been
// consumed) and joins surrogate pairs. A surrogate outside a valid pair is
// an error.
func (p *literalParser) parseUnicodeEscape() (rune, error) {
	start := p.pos - 2
	r, err := p.hex4()
	if err != nil {
		return 0, err
	}
	if !utf16.IsSurrogate(r) {
		return r, nil
	}
	if p.pos+6 <= len(p.data) && p.data[p.pos] == '\\' && p.data[p.pos+1] == 'u' {
		save := p.pos
		p.pos += 2
		lo, err := p.hex4()
		if err != nil {
			return 0, err
		}
		if dec := utf16.DecodeRune(r, lo); dec != utf8.RuneError {
			return dec, nil
		}
		p.pos = save
	}
	p.pos = start
	return 0, p.errorf("unpaired surrogate in unicode escape")
}

func (p *literalParser) hex4() (rune, error) {
	if p.pos+4 > len(p.data) {
		return 0, p.errorf("short unicode escape")
	}
	n, err := strconv.ParseUint(string(p.data[p.pos:p.pos+4]), 16, 32)
	if err != nil {
		return 0, p.errorf("invalid unicode escape %q", p.data[p.pos:p.pos+4])
	}
	p.pos += 4
	return rune(n), nil
}

func (p *literalParser) expect(c byte) error {
	if p.pos >= len(p.data) || p.data[p.pos] != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// fromValue maps the parsed literal onto the index model.
func fromValue(root Value) (*SearchIndex, error) {
	fields, err := root.asObject("search index")
	if err != nil {
		return nil, err
	}
	idx := New()
	for _, required := range []string{fieldDocNames, fieldTitles, fieldTerms} {
		if _, ok := fields[required]; !ok {
			return nil, fieldError(required, "missing required field")
		}
	}
	for name, v := range fields {
		switch name {
		case fieldDocNames:
			idx.DocNames, err = v.asStrings(name)
		case fieldFilenames:
			idx.Filenames, err = v.asStrings(name)
		case fieldTitles:
			idx.Titles, err = v.asStrings(name)
		case fieldTerms:
			idx.Terms, err = decodeTermTable(name, v)
		case fieldTitleTerms:
			idx.TitleTerms, err = decodeTermTable(name, v)
		case fieldEnvVersion:
			idx.EnvVersion, err = decodeEnvVersion(v)
		case fieldObjects:
			var ok bool
			idx.Objects, ok = decodeObjects(v)
			if !ok {
				// Newer generators store objects as lists; keep them verbatim.
				idx.Extra[name] = v
			}
		case fieldObjNames:
			idx.ObjNames, err = decodeObjNames(v)
		case fieldObjTypes:
			idx.ObjTypes, err = decodeObjTypes(v)
		default:
			idx.Extra[name] = v
		}
		if err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func decodeTermTable(field string, v Value) (map[string]Postings, error) {
	obj, err := v.asObject(field)
	if err != nil {
		return nil, err
	}
	table := make(map[string]Postings, len(obj))
	for term, raw := range obj {
		name := field + "." + term
		switch raw.Kind {
		case KindInt:
			table[term] = Postings{Docs: []int{int(raw.Int)}, Single: true}
		case KindArray:
			docs := make([]int, 0, len(raw.Array))
			for i, item := range raw.Array {
				doc, err := item.asInt(fmt.Sprintf("%s[%d]", name, i))
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc)
			}
			table[term] = Postings{Docs: docs}
		default:
			return nil, fieldError(name, "expected integer or array, got %s", raw.Kind)
		}
	}
	return table, nil
}

func decodeEnvVersion(v Value) (map[string]int, error) {
	obj, err := v.asObject(fieldEnvVersion)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(obj))
	for name, raw := range obj {
		ver, err := raw.asInt(fieldEnvVersion + "." + name)
		if err != nil {
			return nil, err
		}
		out[name] = ver
	}
	return out, nil
}

// decodeObjects reads the prefix -> name -> [doc, type, priority, anchor]
// layout. It reports false when v has any other shape.
func decodeObjects(v Value) (Objects, bool) {
	if v.Kind != KindObject {
		return make(Objects), false
	}
	objects := make(Objects, len(v.Object))
	for prefix, group := range v.Object {
		if group.Kind != KindObject {
			return make(Objects), false
		}
		names := make(map[string]ObjectEntry, len(group.Object))
		for name, raw := range group.Object {
			if raw.Kind != KindArray || len(raw.Array) != 4 {
				return make(Objects), false
			}
			a := raw.Array
			if a[0].Kind != KindInt || a[1].Kind != KindInt || a[2].Kind != KindInt || a[3].Kind != KindString {
				return make(Objects), false
			}
			names[name] = ObjectEntry{
				Doc:      int(a[0].Int),
				Type:     int(a[1].Int),
				Priority: int(a[2].Int),
				Anchor:   a[3].Str,
			}
		}
		objects[prefix] = names
	}
	return objects, true
}

func decodeObjNames(v Value) (map[string]ObjName, error) {
	obj, err := v.asObject(fieldObjNames)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ObjName, len(obj))
	for key, raw := range obj {
		parts, err := raw.asStrings(fieldObjNames + "." + key)
		if err != nil {
			return nil, err
		}
		if len(parts) != 3 {
			return nil, fieldError(fieldObjNames+"."+key, "expected 3 strings, got %d", len(parts))
		}
		out[key] = ObjName{Domain: parts[0], Type: parts[1], Label: parts[2]}
	}
	return out, nil
}

func decodeObjTypes(v Value) (map[string]string, error) {
	obj, err := v.asObject(fieldObjTypes)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(obj))
	for key, raw := range obj {
		s, err := raw.asString(fieldObjTypes + "." + key)
		if err != nil {
			return nil, err
		}
		out[key] = s
	}
	return out, nil
}

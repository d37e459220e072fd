package searchindex

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// JavaScript reserved words are always quoted when used as keys.
var reservedWords = map[string]struct{}{
	"abstract": {}, "boolean": {}, "break": {}, "byte": {}, "case": {},
	"catch": {}, "char": {}, "class": {}, "const": {}, "continue": {},
	"debugger": {}, "default": {}, "delete": {}, "do": {}, "double": {},
	"else": {}, "enum": {}, "export": {}, "extends": {}, "false": {},
	"final": {}, "finally": {}, "float": {}, "for": {}, "function": {},
	"goto": {}, "if": {}, "implements": {}, "import": {}, "in": {},
	"instanceof": {}, "int": {}, "interface": {}, "long": {}, "native": {},
	"new": {}, "null": {}, "package": {}, "private": {}, "protected": {},
	"public": {}, "return": {}, "short": {}, "static": {}, "super": {},
	"switch": {}, "synchronized": {}, "this": {}, "throw": {}, "throws": {},
	"transient": {}, "true": {}, "try": {}, "typeof": {}, "var": {},
	"void": {}, "volatile": {}, "while": {}, "with": {},
}

// Encode writes idx in the form a documentation build emits:
// Search.setIndex({...}) with object entries ordered by their serialized
// "key:value" text.
func Encode(w io.Writer, idx *SearchIndex) error {
	if _, err := w.Write(Marshal(idx)); err != nil {
		return fmt.Errorf("writing search index: %w", err)
	}
	return nil
}

// Marshal returns the serialized form of idx.
func Marshal(idx *SearchIndex) []byte {
	var buf bytes.Buffer
	buf.WriteString(setIndexPrefix)
	buf.Write(marshalFields(idx))
	buf.WriteString(")")
	return buf.Bytes()
}

func marshalFields(idx *SearchIndex) []byte {
	fields := map[string][]byte{
		fieldDocNames:   marshalStrings(idx.DocNames),
		fieldEnvVersion: marshalEnvVersion(idx.EnvVersion),
		fieldFilenames:  marshalStrings(idx.Filenames),
		fieldObjects:    marshalObjects(idx.Objects),
		fieldObjNames:   marshalObjNames(idx.ObjNames),
		fieldObjTypes:   marshalObjTypes(idx.ObjTypes),
		fieldTerms:      marshalTermTable(idx.Terms),
		fieldTitles:     marshalStrings(idx.Titles),
		fieldTitleTerms: marshalTermTable(idx.TitleTerms),
	}
	for name, v := range idx.Extra {
		if name == fieldObjects && len(idx.Objects) > 0 {
			continue
		}
		fields[name] = marshalValue(v)
	}
	return marshalObject(fields)
}

// marshalObject joins already-encoded values into an object literal.
func marshalObject(fields map[string][]byte) []byte {
	entries := make([]string, 0, len(fields))
	for key, val := range fields {
		entries = append(entries, string(appendKey(nil, key))+":"+string(val))
	}
	slices.Sort(entries)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(e)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func marshalStrings(ss []string) []byte {
	buf := []byte{'['}
	for i, s := range ss {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendString(buf, s)
	}
	return append(buf, ']')
}

func marshalInts(ns []int) []byte {
	buf := []byte{'['}
	for i, n := range ns {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(n), 10)
	}
	return append(buf, ']')
}

func marshalPostings(p Postings) []byte {
	if p.Single && len(p.Docs) == 1 {
		return strconv.AppendInt(nil, int64(p.Docs[0]), 10)
	}
	return marshalInts(p.Docs)
}

func marshalTermTable(table map[string]Postings) []byte {
	fields := make(map[string][]byte, len(table))
	for term, p := range table {
		fields[term] = marshalPostings(p)
	}
	return marshalObject(fields)
}

func marshalEnvVersion(env map[string]int) []byte {
	fields := make(map[string][]byte, len(env))
	for name, ver := range env {
		fields[name] = strconv.AppendInt(nil, int64(ver), 10)
	}
	return marshalObject(fields)
}

func marshalObjects(objects Objects) []byte {
	fields := make(map[string][]byte, len(objects))
	for prefix, names := range objects {
		group := make(map[string][]byte, len(names))
		for name, e := range names {
			buf := []byte{'['}
			buf = strconv.AppendInt(buf, int64(e.Doc), 10)
			buf = append(buf, ',')
			buf = strconv.AppendInt(buf, int64(e.Type), 10)
			buf = append(buf, ',')
			buf = strconv.AppendInt(buf, int64(e.Priority), 10)
			buf = append(buf, ',')
			buf = appendString(buf, e.Anchor)
			group[name] = append(buf, ']')
		}
		fields[prefix] = marshalObject(group)
	}
	return marshalObject(fields)
}

func marshalObjNames(names map[string]ObjName) []byte {
	fields := make(map[string][]byte, len(names))
	for key, n := range names {
		fields[key] = marshalStrings([]string{n.Domain, n.Type, n.Label})
	}
	return marshalObject(fields)
}

func marshalObjTypes(types map[string]string) []byte {
	fields := make(map[string][]byte, len(types))
	for key, t := range types {
		fields[key] = appendString(nil, t)
	}
	return marshalObject(fields)
}

func marshalValue(v Value) []byte {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return []byte("true")
		}
		return []byte("false")
	case KindInt:
		return strconv.AppendInt(nil, v.Int, 10)
	case KindString:
		return appendString(nil, v.Str)
	case KindArray:
		buf := []byte{'['}
		for i, item := range v.Array {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, marshalValue(item)...)
		}
		return append(buf, ']')
	case KindObject:
		fields := make(map[string][]byte, len(v.Object))
		for key, item := range v.Object {
			fields[key] = marshalValue(item)
		}
		return marshalObject(fields)
	default:
		return []byte("null")
	}
}

func appendKey(buf []byte, key string) []byte {
	if _, reserved := reservedWords[key]; !reserved && identRe.MatchString(key) {
		return append(buf, key...)
	}
	return appendString(buf, key)
}

// appendString quotes s. Quotes, backslashes and the usual control
// characters get short escapes; everything else outside printable ASCII is
// written as \uXXXX, using surrogate pairs above the BMP.
func appendString(buf []byte, s string) []byte {
	const hex = "0123456789abcdef"
	appendU := func(buf []byte, n rune) []byte {
		return append(buf, '\\', 'u', hex[n>>12&0xf], hex[n>>8&0xf], hex[n>>4&0xf], hex[n&0xf])
	}
	buf = append(buf, '"')
	for _, r := range s {
		switch {
		case r == '\\':
			buf = append(buf, '\\', '\\')
		case r == '"':
			buf = append(buf, '\\', '"')
		case r == '\b':
			buf = append(buf, '\\', 'b')
		case r == '\f':
			buf = append(buf, '\\', 'f')
		case r == '\n':
			buf = append(buf, '\\', 'n')
		case r == '\r':
			buf = append(buf, '\\', 'r')
		case r == '\t':
			buf = append(buf, '\\', 't')
		case r >= ' ' && r <= '~':
			buf = append(buf, byte(r))
		case r < 0x10000:
			buf = appendU(buf, r)
		default:
			n := r - 0x10000
			buf = appendU(buf, 0xd800|((n>>10)&0x3ff))
			buf = appendU(buf, 0xdc00|(n&0x3ff))
		}
	}
	return append(buf, '"')
}

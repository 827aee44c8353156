package steam

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Value is a node of a Valve KeyValues (VDF/ACF) document: either a string
// or an object of named children. Keys are matched case-insensitively.
type Value struct {
	str      string
	children map[string]*Value
	order    []string
}

// IsObject reports whether v holds children.
func (v *Value) IsObject() bool {
	return v != nil && v.children != nil
}

// String returns the string value, or "" for objects and nil.
func (v *Value) String() string {
	if v == nil {
		return ""
	}
	return v.str
}

// Get returns the child at the given path, or nil.
func (v *Value) Get(path ...string) *Value {
	cur := v
	for _, key := range path {
		if !cur.IsObject() {
			return nil
		}
		cur = cur.children[strings.ToLower(key)]
	}
	return cur
}

// Keys returns the child keys in document order, as written.
func (v *Value) Keys() []string {
	if !v.IsObject() {
		return nil
	}
	return v.order
}

func (v *Value) set(key string, child *Value) {
	lower := strings.ToLower(key)
	if _, ok := v.children[lower]; !ok {
		v.order = append(v.order, key)
	}
	v.children[lower] = child
}

var errUnexpectedEOF = errors.New("vdf: unexpected end of input")

// ParseVDF parses a KeyValues document and returns its root key and value.
func ParseVDF(r io.Reader) (string, *Value, error) {
	p := &vdfParser{r: bufio.NewReader(r)}
	key, ok, err := p.token()
	if err != nil {
		return "", nil, err
	}
	if !ok || key.kind != tokString {
		return "", nil, errors.New("vdf: expected a root key")
	}
	val, err := p.value()
	if err != nil {
		return "", nil, fmt.Errorf("vdf: %s: %w", key.text, err)
	}
	return key.text, val, nil
}

type tokKind uint8

const (
	tokString tokKind = iota
	tokOpen
	tokClose
)

type token struct {
	kind tokKind
	text string
}

type vdfParser struct {
	r *bufio.Reader
}

func (p *vdfParser) value() (*Value, error) {
	tok, ok, err := p.token()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUnexpectedEOF
	}
	switch tok.kind {
	case tokString:
		return &Value{str: tok.text}, nil
	case tokOpen:
		return p.object()
	default:
		return nil, errors.New("unexpected '}'")
	}
}

func (p *vdfParser) object() (*Value, error) {
	obj := &Value{children: make(map[string]*Value)}
	for {
		tok, ok, err := p.token()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errUnexpectedEOF
		}
		switch tok.kind {
		case tokClose:
			return obj, nil
		case tokOpen:
			return nil, errors.New("unexpected '{'")
		}
		child, err := p.value()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tok.text, err)
		}
		p.skipConditional()
		obj.set(tok.text, child)
	}
}

// token returns the next token; ok is false at end of input.
func (p *vdfParser) token() (token, bool, error) {
	for {
		c, err := p.skipSpace()
		if err == io.EOF {
			return token{}, false, nil
		}
		if err != nil {
			return token{}, false, err
		}
		switch c {
		case '{':
			return token{kind: tokOpen}, true, nil
		case '}':
			return token{kind: tokClose}, true, nil
		case '"':
			s, err := p.quoted()
			return token{kind: tokString, text: s}, err == nil, err
		case '/':
			if next, _ := p.r.Peek(1); len(next) == 1 && next[0] == '/' {
				if _, err := p.r.ReadString('\n'); err != nil && err != io.EOF {
					return token{}, false, err
				}
				continue
			}
		}
		s, err := p.bare(c)
		return token{kind: tokString, text: s}, err == nil, err
	}
}

func (p *vdfParser) skipSpace() (byte, error) {
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return c, nil
		}
	}
}

func (p *vdfParser) quoted() (string, error) {
	var sb strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err == io.EOF {
			return "", errUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			next, err := p.r.ReadByte()
			if err != nil {
				return "", errUnexpectedEOF
			}
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func (p *vdfParser) bare(first byte) (string, error) {
	var sb strings.Builder
	sb.WriteByte(first)
	for {
		c, err := p.r.ReadByte()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '{' || c == '}' || c == '"' {
			_ = p.r.UnreadByte()
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}

// skipConditional drops a trailing platform conditional such as [$WIN].
func (p *vdfParser) skipConditional() {
	for {
		b, err := p.r.Peek(1)
		if err != nil {
			return
		}
		switch b[0] {
		case ' ', '\t':
			_, _ = p.r.ReadByte()
		case '[':
			_, _ = p.r.ReadString(']')
			return
		default:
			return
		}
	}
}

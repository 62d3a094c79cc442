package vdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SyntaxError reports malformed KeyValues text.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("vdf: line %d: %s", e.Line, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokOpen
	tokClose
	tokCondition
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	data []byte
	pos  int
	line int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case c == '/' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '/':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' {
				l.pos++
			}
		case c == '{':
			l.pos++
			return token{kind: tokOpen, line: l.line}, nil
		case c == '}':
			l.pos++
			return token{kind: tokClose, line: l.line}, nil
		case c == '[':
			start := l.pos
			for l.pos < len(l.data) && l.data[l.pos] != ']' && l.data[l.pos] != '\n' {
				l.pos++
			}
			if l.pos >= len(l.data) || l.data[l.pos] != ']' {
				return token{}, &SyntaxError{Line: l.line, Msg: "unterminated conditional"}
			}
			l.pos++
			return token{kind: tokCondition, text: string(l.data[start:l.pos]), line: l.line}, nil
		case c == '"':
			return l.quoted()
		default:
			return l.bare(), nil
		}
	}
	return token{kind: tokEOF, line: l.line}, nil
}

func (l *lexer) quoted() (token, error) {
	startLine := l.line
	l.pos++
	var b strings.Builder
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch c {
		case '"':
			l.pos++
			return token{kind: tokString, text: b.String(), line: startLine}, nil
		case '\\':
			if l.pos+1 >= len(l.data) {
				b.WriteByte(c)
				l.pos++
				continue
			}
			esc := l.data[l.pos+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"':
				b.WriteByte(esc)
			default:
				// Unknown escapes are kept verbatim so Windows-style paths survive.
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
			l.pos += 2
		default:
			if c == '\n' {
				l.line++
			}
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, &SyntaxError{Line: startLine, Msg: "unterminated string"}
}

func (l *lexer) bare() token {
	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '{' || c == '}' || c == '"' {
			break
		}
		l.pos++
	}
	return token{kind: tokString, text: string(l.data[start:l.pos]), line: l.line}
}

type parser struct {
	lex  *lexer
	peek *token
}

func (p *parser) next() (token, error) {
	if p.peek != nil {
		t := *p.peek
		p.peek = nil
		return t, nil
	}
	return p.lex.next()
}

func (p *parser) unread(t token) {
	p.peek = &t
}

// pairs reads key/value pairs until '}' (nested) or EOF (top level).
func (p *parser) pairs(into *Node, nested bool) error {
	for {
		key, err := p.next()
		if err != nil {
			return err
		}
		switch key.kind {
		case tokEOF:
			if nested {
				return &SyntaxError{Line: key.line, Msg: "unexpected end of input, missing '}'"}
			}
			return nil
		case tokClose:
			if !nested {
				return &SyntaxError{Line: key.line, Msg: "unexpected '}'"}
			}
			return nil
		case tokString:
		default:
			return &SyntaxError{Line: key.line, Msg: "expected key"}
		}

		val, err := p.next()
		if err != nil {
			return err
		}
		// A block may carry its conditional between the key and the brace.
		cond := ""
		if val.kind == tokCondition {
			cond = val.text
			if val, err = p.next(); err != nil {
				return err
			}
		}
		var child *Node
		switch val.kind {
		case tokString:
			child = NewString(val.text)
		case tokOpen:
			child = NewMap()
			if err := p.pairs(child, true); err != nil {
				return err
			}
		default:
			return &SyntaxError{Line: val.line, Msg: fmt.Sprintf("expected value for key %q", key.text)}
		}

		t, err := p.next()
		if err != nil {
			return err
		}
		if t.kind == tokCondition {
			cond = t.text
		} else {
			p.unread(t)
		}
		into.add(key.text, child, cond)
	}
}

// Unmarshal parses KeyValues text into a map node.
func Unmarshal(data []byte) (*Node, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	p := &parser{lex: &lexer{data: data, line: 1}}
	root := NewMap()
	if err := p.pairs(root, false); err != nil {
		return nil, err
	}
	return root, nil
}

// Decode reads all of r and parses it.
func Decode(r io.Reader) (*Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vdf: read: %w", err)
	}
	return Unmarshal(data)
}

// Marshal renders a map node using Steam's own layout: tab indentation, braces
// on their own lines and two tabs between key and value.
func Marshal(root *Node) ([]byte, error) {
	if root.kind != KindMap {
		return nil, &ShapeError{Want: KindMap, Got: root.kind}
	}
	var buf bytes.Buffer
	encodeEntries(&buf, root, 0)
	return buf.Bytes(), nil
}

func encodeEntries(w *bytes.Buffer, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	for _, e := range n.entries {
		cond := ""
		if e.Cond != "" {
			cond = "\t" + e.Cond
		}
		if e.Node.kind == KindMap {
			fmt.Fprintf(w, "%s\"%s\"%s\n%s{\n", indent, escape(e.Key), cond, indent)
			encodeEntries(w, e.Node, depth+1)
			fmt.Fprintf(w, "%s}\n", indent)
			continue
		}
		fmt.Fprintf(w, "%s\"%s\"\t\t\"%s\"%s\n", indent, escape(e.Key), escape(e.Node.value), cond)
	}
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func escape(s string) string {
	return escaper.Replace(s)
}

// Load reads and parses the document at path. A missing file is reported with
// an error that satisfies errors.Is(err, os.ErrNotExist).
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// Dump replaces the document at path in one step: the content is written to a
// sibling temp file which is then renamed over the target.
func Dump(root *Node, path string) error {
	buf, err := Marshal(root)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

package main

import (
	"bufio"
	"io"
)

// tokenizerOpts parameterizes the byte-streaming scanner per dialect: which
// quote characters are recognized for strings vs. identifiers, whether
// backslash escapes single-quoted strings (MySQL), and whether dollar
// quoting is recognized (PostgreSQL).
type tokenizerOpts struct {
	identQuote      byte // '`' for MySQL, '"' for PostgreSQL/SQL Server
	backslashEscape bool // MySQL doubles AND backslash-escapes
	dollarQuoting   bool // PostgreSQL $tag$...$tag$
}

// StatementScanner is a pull-based, byte-streaming splitter of a SQL script
// into individual statements. It never buffers more than one statement at
// a time, satisfying the spec's O(longest statement) memory bound.
type StatementScanner struct {
	r    *bufio.Reader
	opts tokenizerOpts
	err  error
	done bool
}

func newStatementScanner(r *bufio.Reader, opts tokenizerOpts) *StatementScanner {
	return &StatementScanner{r: r, opts: opts}
}

// Err returns the first error encountered, if any (io.EOF is not an error).
func (s *StatementScanner) Err() error { return s.err }

// Next returns the next statement's text (including its terminating
// ";\n"), or ("", false) at end of stream or on error. `--` and `/* */`
// comments outside quotes are removed from the returned text.
func (s *StatementScanner) Next() (string, bool) {
	if s.done {
		return "", false
	}

	var buf []byte
	var inSingle, inIdent, inLineComment, inBlockComment, prevStar bool
	var dollarTag string
	inDollar := false

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				s.done = true
				trimmed := trimASCIIWhitespace(buf)
				if len(trimmed) == 0 {
					return "", false
				}
				return string(buf), true
			}
			s.err = err
			s.done = true
			return "", false
		}

		buf = append(buf, b)

		switch {
		case inLineComment:
			// Comment text is dropped; its terminating newline is kept.
			if b == '\n' {
				inLineComment = false
			} else {
				buf = buf[:len(buf)-1]
			}
			continue
		case inBlockComment:
			buf = buf[:len(buf)-1]
			if b == '/' && prevStar {
				inBlockComment = false
				buf = append(buf, ' ')
			}
			prevStar = b == '*'
			continue
		case inSingle:
			if s.opts.backslashEscape && b == '\\' {
				// consume the escaped byte verbatim
				if nb, err := s.r.ReadByte(); err == nil {
					buf = append(buf, nb)
				}
				continue
			}
			if b == '\'' {
				if pb, err := s.r.Peek(1); err == nil && len(pb) == 1 && pb[0] == '\'' {
					nb, _ := s.r.ReadByte()
					buf = append(buf, nb)
					continue
				}
				inSingle = false
			}
			continue
		case inIdent:
			if b == s.opts.identQuote {
				if pb, err := s.r.Peek(1); err == nil && len(pb) == 1 && pb[0] == s.opts.identQuote {
					nb, _ := s.r.ReadByte()
					buf = append(buf, nb)
					continue
				}
				inIdent = false
			}
			continue
		case inDollar:
			if b == '$' {
				if tag, ok := s.tryMatchDollarClose(&buf, dollarTag); ok {
					_ = tag
					inDollar = false
				}
			}
			continue
		}

		switch b {
		case '\'':
			inSingle = true
		case s.opts.identQuote:
			inIdent = true
		case '-':
			if pb, err := s.r.Peek(1); err == nil && len(pb) == 1 && pb[0] == '-' {
				s.r.ReadByte()
				buf = buf[:len(buf)-1]
				inLineComment = true
			}
		case '/':
			if pb, err := s.r.Peek(1); err == nil && len(pb) == 1 && pb[0] == '*' {
				s.r.ReadByte()
				buf = buf[:len(buf)-1]
				inBlockComment = true
				prevStar = false
			}
		case '$':
			if s.opts.dollarQuoting {
				if tag, ok := s.tryMatchDollarOpen(&buf); ok {
					dollarTag = tag
					inDollar = true
				}
			}
		case ';':
			// Statement boundary: an unquoted ';' followed by newline (or
			// EOF) terminates the statement.
			if pb, err := s.r.Peek(1); err == nil && len(pb) == 1 && pb[0] == '\n' {
				nb, _ := s.r.ReadByte()
				buf = append(buf, nb)
				return string(buf), true
			}
			if _, err := s.r.Peek(1); err == io.EOF {
				buf = append(buf, '\n')
				s.done = true
				return string(buf), true
			}
		}
	}
}

// tryMatchDollarOpen checks whether the bytes just after a '$' in buf form
// a dollar-quote opener "$tag$" and, if so, consumes the rest of the tag
// and the closing '$' from the reader, returning the tag (without dollars).
func (s *StatementScanner) tryMatchDollarOpen(buf *[]byte) (string, bool) {
	var tag []byte
	for {
		pb, err := s.r.Peek(1)
		if err != nil {
			return "", false
		}
		c := pb[0]
		if c == '$' {
			nb, _ := s.r.ReadByte()
			*buf = append(*buf, nb)
			return string(tag), true
		}
		if !isIdentByte(c) {
			return "", false
		}
		nb, _ := s.r.ReadByte()
		*buf = append(*buf, nb)
		tag = append(tag, nb)
		if len(tag) > 64 {
			return "", false
		}
	}
}

func (s *StatementScanner) tryMatchDollarClose(buf *[]byte, tag string) (string, bool) {
	// buf already has the '$' that triggered this check appended.
	for _, want := range []byte(tag) {
		pb, err := s.r.Peek(1)
		if err != nil || pb[0] != want {
			return "", false
		}
		nb, _ := s.r.ReadByte()
		*buf = append(*buf, nb)
	}
	pb, err := s.r.Peek(1)
	if err != nil || pb[0] != '$' {
		return "", false
	}
	nb, _ := s.r.ReadByte()
	*buf = append(*buf, nb)
	return tag, true
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func trimASCIIWhitespace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isASCIISpace(b[i]) {
		i++
	}
	for j > i && isASCIISpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

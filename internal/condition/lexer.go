package condition

import "strings"

// Lexer tokenizes condition input.
type Lexer struct {
	input string
	pos   int  // offset of ch
	next  int  // offset after ch
	ch    byte // current character under examination
}

// NewLexer creates a new lexer for the input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos}

	switch l.ch {
	case '(':
		tok.Type, tok.Literal = TokenLParen, "("
	case ')':
		tok.Type, tok.Literal = TokenRParen, ")"
	case '[':
		tok.Type, tok.Literal = TokenLBracket, "["
	case ']':
		tok.Type, tok.Literal = TokenRBracket, "]"
	case ',':
		tok.Type, tok.Literal = TokenComma, ","
	case '.':
		if isDigit(l.peekChar()) {
			tok.Type, tok.Literal = TokenNumber, l.readNumber()
			return tok
		}
		tok.Type, tok.Literal = TokenDot, "."
	case '+':
		tok.Type, tok.Literal = TokenPlus, "+"
	case '-':
		tok.Type, tok.Literal = TokenMinus, "-"
	case '*':
		tok.Type, tok.Literal = TokenStar, "*"
	case '/':
		tok.Type, tok.Literal = TokenSlash, "/"
	case '%':
		tok.Type, tok.Literal = TokenPercent, "%"
	case '=':
		switch {
		case l.peekChar() == '>':
			l.readChar()
			tok.Type, tok.Literal = TokenArrow, "=>"
		case l.peekChar() == '=':
			l.readChar()
			if l.peekChar() == '=' {
				l.readChar()
				tok.Type, tok.Literal = TokenStrictEq, "==="
			} else {
				tok.Type, tok.Literal = TokenEq, "=="
			}
		default:
			// Assignment is not part of the language.
			tok.Type, tok.Literal = TokenIllegal, "="
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			if l.peekChar() == '=' {
				l.readChar()
				tok.Type, tok.Literal = TokenStrictNeq, "!=="
			} else {
				tok.Type, tok.Literal = TokenNeq, "!="
			}
		} else {
			tok.Type, tok.Literal = TokenNot, "!"
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenLte, "<="
		} else {
			tok.Type, tok.Literal = TokenLt, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenGte, ">="
		} else {
			tok.Type, tok.Literal = TokenGt, ">"
		}
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			tok.Type, tok.Literal = TokenAnd, "&&"
		} else {
			tok.Type, tok.Literal = TokenIllegal, "&"
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok.Type, tok.Literal = TokenOr, "||"
		} else {
			tok.Type, tok.Literal = TokenIllegal, "|"
		}
	case '"', '\'':
		lit, ok := l.readString(l.ch)
		tok.Literal = lit
		tok.Type = TokenString
		if !ok {
			tok.Type = TokenIllegal
		}
		return tok
	case 0:
		tok.Type, tok.Literal = TokenEOF, ""
		return tok
	default:
		switch {
		case isLetter(l.ch):
			tok.Literal = l.readIdentifier()
			tok.Type = LookupKeyword(tok.Literal)
			return tok
		case isDigit(l.ch):
			tok.Type, tok.Literal = TokenNumber, l.readNumber()
			return tok
		default:
			tok.Type, tok.Literal = TokenIllegal, string(l.ch)
		}
	}

	l.readChar()
	return tok
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	l.pos = l.next
	if l.next >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.next]
	}
	l.next++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.next >= len(l.input) {
		return 0
	}
	return l.input[l.next]
}

// skipWhitespace advances past whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readIdentifier reads letters, digits, underscores and dollar signs.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readString reads a quoted string and resolves backslash escapes. The
// second result is false when the closing quote is missing.
func (l *Lexer) readString(quote byte) (string, bool) {
	var b strings.Builder
	l.readChar() // skip opening quote
	for l.ch != quote {
		if l.ch == 0 && l.pos >= len(l.input) {
			return b.String(), false
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 0:
				return b.String(), false
			default:
				b.WriteByte(l.ch)
			}
		} else {
			b.WriteByte(l.ch)
		}
		l.readChar()
	}
	l.readChar() // skip closing quote
	return b.String(), true
}

// readNumber reads an unsigned decimal number with an optional fraction.
// The sign is a separate token.
func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

// isLetter returns true if c can start an identifier.
func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
}

// isDigit returns true if c is a digit.
func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Package condition implements the restricted expression language used by
// compatibility rules. An expression is parsed into an AST, checked so it
// only reads the bound variables source and target through an allowed set
// of members and methods, and then interpreted without side effects.
package condition

// TokenType represents the type of lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent  // source, target, lambda parameters, member names
	TokenNumber // 42, 3.5
	TokenString // "quoted" or 'quoted'

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenDot      // .
	TokenArrow    // =>

	// Arithmetic
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %

	// Logical
	TokenNot // !
	TokenAnd // &&
	TokenOr  // ||

	// Comparison
	TokenEq        // ==
	TokenStrictEq  // ===
	TokenNeq       // !=
	TokenStrictNeq // !==
	TokenLt        // <
	TokenGt        // >
	TokenLte       // <=
	TokenGte       // >=

	// Keywords
	TokenTrue  // true
	TokenFalse // false
	TokenNull  // null
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenIllegal:   "ILLEGAL",
	TokenIdent:     "IDENT",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenComma:     ",",
	TokenDot:       ".",
	TokenArrow:     "=>",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenPercent:   "%",
	TokenNot:       "!",
	TokenAnd:       "&&",
	TokenOr:        "||",
	TokenEq:        "==",
	TokenStrictEq:  "===",
	TokenNeq:       "!=",
	TokenStrictNeq: "!==",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenLte:       "<=",
	TokenGte:       ">=",
	TokenTrue:      "TRUE",
	TokenFalse:     "FALSE",
	TokenNull:      "NULL",
}

// String returns the string representation of the token type.
func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset in the input
}

// keywords maps keyword strings to their token types. Keywords are case
// sensitive.
var keywords = map[string]TokenType{
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
}

// LookupKeyword returns the token type for the given identifier.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}

// IsEquality reports whether t is one of the four equality operators.
func (t TokenType) IsEquality() bool {
	switch t {
	case TokenEq, TokenStrictEq, TokenNeq, TokenStrictNeq:
		return true
	}
	return false
}

// IsRelational reports whether t orders two operands.
func (t TokenType) IsRelational() bool {
	switch t {
	case TokenLt, TokenGt, TokenLte, TokenGte:
		return true
	}
	return false
}

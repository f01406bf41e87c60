package condition

import (
	"fmt"
	"strconv"
)

// Limits on accepted input.
const (
	MaxLength = 1024 // bytes of source text
	MaxDepth  = 64   // nesting of unary operators, parentheses, arrays and calls
)

// Parser parses condition tokens into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
	depth   int
}

// NewParser creates a parser for the input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Prime the parser with two tokens
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the whole input as one expression.
func (p *Parser) Parse() (Expr, error) {
	if p.current.Type == TokenEOF {
		return nil, fmt.Errorf("empty expression")
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.unexpected()
	}
	return expr, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) unexpected() error {
	if p.current.Type == TokenIllegal {
		return fmt.Errorf("illegal input %q at position %d", p.current.Literal, p.current.Pos)
	}
	if p.current.Type == TokenEOF {
		return fmt.Errorf("unexpected end of expression")
	}
	return fmt.Errorf("unexpected token %q at position %d", p.current.Literal, p.current.Pos)
}

func (p *Parser) expect(t TokenType) error {
	if p.current.Type != t {
		return fmt.Errorf("expected %q at position %d, got %q", t.String(), p.current.Pos, p.current.Literal)
	}
	p.nextToken()
	return nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return fmt.Errorf("expression nested deeper than %d at position %d", MaxDepth, p.current.Pos)
	}
	return nil
}

func (p *Parser) leave() { p.depth-- }

// binaryLevel parses one left-associative precedence level.
func (p *Parser) binaryLevel(next func() (Expr, error), ops func(TokenType) bool) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for ops(p.current.Type) {
		op := p.current
		p.nextToken()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: op.Pos, Left: left, Op: op.Type, Right: right}
	}
	return left, nil
}

// parseOr parses "||"-separated operands.
// or = and { "||" and }
func (p *Parser) parseOr() (Expr, error) {
	return p.binaryLevel(p.parseAnd, func(t TokenType) bool { return t == TokenOr })
}

// parseAnd parses "&&"-separated operands.
// and = equality { "&&" equality }
func (p *Parser) parseAnd() (Expr, error) {
	return p.binaryLevel(p.parseEquality, func(t TokenType) bool { return t == TokenAnd })
}

// equality = relational { ("==" | "===" | "!=" | "!==") relational }
func (p *Parser) parseEquality() (Expr, error) {
	return p.binaryLevel(p.parseRelational, TokenType.IsEquality)
}

// relational = additive { ("<" | ">" | "<=" | ">=") additive }
func (p *Parser) parseRelational() (Expr, error) {
	return p.binaryLevel(p.parseAdditive, TokenType.IsRelational)
}

// additive = multiplicative { ("+" | "-") multiplicative }
func (p *Parser) parseAdditive() (Expr, error) {
	return p.binaryLevel(p.parseMultiplicative, func(t TokenType) bool {
		return t == TokenPlus || t == TokenMinus
	})
}

// multiplicative = unary { ("*" | "/" | "%") unary }
func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.binaryLevel(p.parseUnary, func(t TokenType) bool {
		return t == TokenStar || t == TokenSlash || t == TokenPercent
	})
}

// unary = ("!" | "-") unary | postfix
func (p *Parser) parseUnary() (Expr, error) {
	if p.current.Type != TokenNot && p.current.Type != TokenMinus {
		return p.parsePostfix()
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	op := p.current
	p.nextToken()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryExpr{Pos: op.Pos, Op: op.Type, Operand: operand}, nil
}

// postfix = primary { "." ident [ "(" args ")" ] | "[" or "]" }
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case TokenDot:
			p.nextToken() // consume .
			if p.current.Type != TokenIdent {
				return nil, fmt.Errorf("expected member name at position %d, got %q", p.current.Pos, p.current.Literal)
			}
			name := p.current
			p.nextToken()
			if p.current.Type != TokenLParen {
				expr = &MemberExpr{Pos: name.Pos, Object: expr, Property: name.Literal}
				continue
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{Pos: name.Pos, Object: expr, Method: name.Literal, Args: args}
		case TokenLBracket:
			pos := p.current.Pos
			p.nextToken() // consume [
			if err := p.enter(); err != nil {
				return nil, err
			}
			index, err := p.parseOr()
			p.leave()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Pos: pos, Object: expr, Index: index}
		default:
			return expr, nil
		}
	}
}

// args = "(" [ arg { "," arg } ] ")"
// arg  = ident "=>" or | or
func (p *Parser) parseArgs() ([]Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	p.nextToken() // consume (
	var args []Expr
	for p.current.Type != TokenRParen {
		var (
			arg Expr
			err error
		)
		if p.current.Type == TokenIdent && p.peek.Type == TokenArrow {
			arg, err = p.parseLambda()
		} else {
			arg, err = p.parseOr()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.current.Type != TokenComma {
			break
		}
		p.nextToken() // consume comma
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseLambda() (Expr, error) {
	param := p.current
	p.nextToken() // consume param
	p.nextToken() // consume =>
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return &LambdaExpr{Pos: param.Pos, Param: param.Literal, Body: body}, nil
}

// primary = number | string | "true" | "false" | "null" | ident
//
//	| "(" or ")" | "[" [ or { "," or } ] "]"
func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.current
	switch tok.Type {
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.Literal, tok.Pos)
		}
		p.nextToken()
		return &NumberLit{Pos: tok.Pos, Value: v}, nil
	case TokenString:
		p.nextToken()
		return &StringLit{Pos: tok.Pos, Value: tok.Literal}, nil
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLit{Pos: tok.Pos, Value: tok.Type == TokenTrue}, nil
	case TokenNull:
		p.nextToken()
		return &NullLit{Pos: tok.Pos}, nil
	case TokenIdent:
		p.nextToken()
		if p.current.Type == TokenLParen {
			return nil, fmt.Errorf("function call %s() at position %d is not allowed", tok.Literal, tok.Pos)
		}
		if p.current.Type == TokenArrow {
			return nil, fmt.Errorf("lambda at position %d is only allowed as a some/every argument", tok.Pos)
		}
		return &Ident{Pos: tok.Pos, Name: tok.Literal}, nil
	case TokenLParen:
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		p.nextToken() // consume (
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBracket:
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		p.nextToken() // consume [
		arr := &ArrayLit{Pos: tok.Pos}
		for p.current.Type != TokenRBracket {
			elem, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			arr.Elems = append(arr.Elems, elem)
			if p.current.Type != TokenComma {
				break
			}
			p.nextToken() // consume comma
		}
		if err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, p.unexpected()
	}
}

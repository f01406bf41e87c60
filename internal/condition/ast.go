package condition

// Node is the interface for all AST nodes.
type Node interface {
	node()
	Position() int
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Pos   int
	Value float64
}

// StringLit is a quoted string literal.
type StringLit struct {
	Pos   int
	Value string
}

// BoolLit is true or false.
type BoolLit struct {
	Pos   int
	Value bool
}

// NullLit is null.
type NullLit struct {
	Pos int
}

// ArrayLit is "[a, b, ...]".
type ArrayLit struct {
	Pos   int
	Elems []Expr
}

// Ident names a bound variable: source, target, or a lambda parameter.
type Ident struct {
	Pos  int
	Name string
}

// MemberExpr is "object.property".
type MemberExpr struct {
	Pos      int
	Object   Expr
	Property string
}

// IndexExpr is "object[index]".
type IndexExpr struct {
	Pos    int
	Object Expr
	Index  Expr
}

// CallExpr is "object.method(args)". Free function calls do not exist.
type CallExpr struct {
	Pos    int
	Object Expr
	Method string
	Args   []Expr
}

// LambdaExpr is "param => body", accepted only as a some/every argument.
type LambdaExpr struct {
	Pos   int
	Param string
	Body  Expr
}

// UnaryExpr is "!x" or "-x".
type UnaryExpr struct {
	Pos     int
	Op      TokenType // TokenNot or TokenMinus
	Operand Expr
}

// BinaryExpr covers logical, comparison and arithmetic operators.
type BinaryExpr struct {
	Pos   int
	Left  Expr
	Op    TokenType
	Right Expr
}

func (n *NumberLit) node()  {}
func (n *StringLit) node()  {}
func (n *BoolLit) node()    {}
func (n *NullLit) node()    {}
func (n *ArrayLit) node()   {}
func (n *Ident) node()      {}
func (n *MemberExpr) node() {}
func (n *IndexExpr) node()  {}
func (n *CallExpr) node()   {}
func (n *LambdaExpr) node() {}
func (n *UnaryExpr) node()  {}
func (n *BinaryExpr) node() {}

func (n *NumberLit) expr()  {}
func (n *StringLit) expr()  {}
func (n *BoolLit) expr()    {}
func (n *NullLit) expr()    {}
func (n *ArrayLit) expr()   {}
func (n *Ident) expr()      {}
func (n *MemberExpr) expr() {}
func (n *IndexExpr) expr()  {}
func (n *CallExpr) expr()   {}
func (n *LambdaExpr) expr() {}
func (n *UnaryExpr) expr()  {}
func (n *BinaryExpr) expr() {}

func (n *NumberLit) Position() int  { return n.Pos }
func (n *StringLit) Position() int  { return n.Pos }
func (n *BoolLit) Position() int    { return n.Pos }
func (n *NullLit) Position() int    { return n.Pos }
func (n *ArrayLit) Position() int   { return n.Pos }
func (n *Ident) Position() int      { return n.Pos }
func (n *MemberExpr) Position() int { return n.Pos }
func (n *IndexExpr) Position() int  { return n.Pos }
func (n *CallExpr) Position() int   { return n.Pos }
func (n *LambdaExpr) Position() int { return n.Pos }
func (n *UnaryExpr) Position() int  { return n.Pos }
func (n *BinaryExpr) Position() int { return n.Pos }

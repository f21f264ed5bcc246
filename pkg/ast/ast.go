// Package ast defines the Tern AST node types.
package ast

import "fmt"

// Pos is a source location. Offset is a byte offset into the source;
// Line and Col are 1-based, Col counts runes.
type Pos struct {
	File   string `json:"file,omitempty"`
	Offset int    `json:"offset"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Kind() string
	Position() Pos
}

// BinaryOp represents a binary operator.
type BinaryOp string

const (
	OpAdd  BinaryOp = "+"
	OpSub  BinaryOp = "-"
	OpMul  BinaryOp = "*"
	OpDiv  BinaryOp = "/"
	OpMod  BinaryOp = "%"
	OpGt   BinaryOp = ">"
	OpLt   BinaryOp = "<"
	OpGtEq BinaryOp = ">="
	OpLtEq BinaryOp = "<="
	OpEqEq BinaryOp = "=="
	OpNeq  BinaryOp = "!="
	OpAnd  BinaryOp = "and"
	OpOr   BinaryOp = "or"
)

// IsComparison reports whether op is one of the equality or relational operators.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpGt, OpLt, OpGtEq, OpLtEq, OpEqEq, OpNeq:
		return true
	}
	return false
}

// UnaryOp represents a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "not"
)

// --- Expr is the interface for all expression nodes ---

type Expr interface {
	Node
	exprNode() // sealed marker
}

// --- Literals ---

type NumberLit struct {
	Pos   Pos
	Value float64
}

func (n *NumberLit) Kind() string  { return "NumberLit" }
func (n *NumberLit) Position() Pos { return n.Pos }
func (n *NumberLit) exprNode()     {}

type StringLit struct {
	Pos   Pos
	Value string
}

func (n *StringLit) Kind() string  { return "StringLit" }
func (n *StringLit) Position() Pos { return n.Pos }
func (n *StringLit) exprNode()     {}

type BoolLit struct {
	Pos   Pos
	Value bool
}

func (n *BoolLit) Kind() string  { return "BoolLit" }
func (n *BoolLit) Position() Pos { return n.Pos }
func (n *BoolLit) exprNode()     {}

type NilLit struct {
	Pos Pos
}

func (n *NilLit) Kind() string  { return "NilLit" }
func (n *NilLit) Position() Pos { return n.Pos }
func (n *NilLit) exprNode()     {}

// --- Identifiers ---

type Identifier struct {
	Pos  Pos
	Name string
}

func (n *Identifier) Kind() string  { return "Identifier" }
func (n *Identifier) Position() Pos { return n.Pos }
func (n *Identifier) exprNode()     {}

// --- Collections ---

type ListLit struct {
	Pos      Pos
	Elements []Expr
}

func (n *ListLit) Kind() string  { return "ListLit" }
func (n *ListLit) Position() Pos { return n.Pos }
func (n *ListLit) exprNode()     {}

// MapEntry is one key/value pair of a map literal. Keys are expressions;
// whether they produce a string is checked at evaluation time.
type MapEntry struct {
	Key   Expr
	Value Expr
}

type MapLit struct {
	Pos     Pos
	Entries []MapEntry
}

func (n *MapLit) Kind() string  { return "MapLit" }
func (n *MapLit) Position() Pos { return n.Pos }
func (n *MapLit) exprNode()     {}

// --- Calls, properties, assignment ---

type Call struct {
	Pos    Pos
	Callee Expr
	Args   []Expr
}

func (n *Call) Kind() string  { return "Call" }
func (n *Call) Position() Pos { return n.Pos }
func (n *Call) exprNode()     {}

type Property struct {
	Pos    Pos
	Object Expr
	Name   string
}

func (n *Property) Kind() string  { return "Property" }
func (n *Property) Position() Pos { return n.Pos }
func (n *Property) exprNode()     {}

// Assign binds Value to Target. Target is either an *Identifier or a *Property.
type Assign struct {
	Pos    Pos
	Target Expr
	Value  Expr
}

func (n *Assign) Kind() string  { return "Assign" }
func (n *Assign) Position() Pos { return n.Pos }
func (n *Assign) exprNode()     {}

// --- Control flow ---

type Block struct {
	Pos   Pos
	Exprs []Expr
}

func (n *Block) Kind() string  { return "Block" }
func (n *Block) Position() Pos { return n.Pos }
func (n *Block) exprNode()     {}

// If is a conditional; Else is nil when absent.
type If struct {
	Pos  Pos
	Cond Expr
	Then Expr
	Else Expr
}

func (n *If) Kind() string  { return "If" }
func (n *If) Position() Pos { return n.Pos }
func (n *If) exprNode()     {}

type While struct {
	Pos  Pos
	Cond Expr
	Body Expr
}

func (n *While) Kind() string  { return "While" }
func (n *While) Position() Pos { return n.Pos }
func (n *While) exprNode()     {}

type MatchArm struct {
	Pattern Expr
	Result  Expr
}

// Match compares Scrutinee against each arm's pattern in order.
// Else is nil when the match has no fallback arm.
type Match struct {
	Pos       Pos
	Scrutinee Expr
	Arms      []MatchArm
	Else      Expr
}

func (n *Match) Kind() string  { return "Match" }
func (n *Match) Position() Pos { return n.Pos }
func (n *Match) exprNode()     {}

// --- Operators ---

type Binary struct {
	Pos   Pos
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *Binary) Kind() string  { return "Binary" }
func (n *Binary) Position() Pos { return n.Pos }
func (n *Binary) exprNode()     {}

type Unary struct {
	Pos     Pos
	Op      UnaryOp
	Operand Expr
}

func (n *Unary) Kind() string  { return "Unary" }
func (n *Unary) Position() Pos { return n.Pos }
func (n *Unary) exprNode()     {}

// --- Functions ---

type Lambda struct {
	Pos    Pos
	Params []string
	Body   Expr
}

func (n *Lambda) Kind() string  { return "Lambda" }
func (n *Lambda) Position() Pos { return n.Pos }
func (n *Lambda) exprNode()     {}

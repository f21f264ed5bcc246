// Package parser implements the Tern recursive-descent parser.
package parser

import (
	"strings"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/lexer"
)

// maxDepth bounds expression nesting so hostile input cannot exhaust the Go stack.
const maxDepth = 512

type parser struct {
	tokens []lexer.Token
	pos    int
	depth  int
	err    *ParseError
}

// ParseSource tokenizes source and parses it. Lex errors surface as a
// LexFailure at the first error token the parser reaches.
func ParseSource(source, filename string) ([]ast.Expr, error) {
	tokens, _ := lexer.Tokenize(source, filename)
	return Parse(tokens)
}

// Parse turns a token stream into a sequence of top-level expressions. It
// stops at the first error.
func Parse(tokens []lexer.Token) ([]ast.Expr, error) {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != lexer.TokEOF {
		eof := lexer.Token{Type: lexer.TokEOF}
		if len(tokens) > 0 {
			eof.Pos = tokens[len(tokens)-1].Pos
		}
		tokens = append(tokens[:len(tokens):len(tokens)], eof)
	}

	p := &parser{tokens: tokens}
	prog := p.parseProgram()
	if p.err != nil {
		return nil, p.err
	}
	return prog, nil
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() lexer.TokenType {
	return p.current().Type
}

func (p *parser) peekAt(offset int) lexer.TokenType {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return lexer.TokEOF
	}
	return p.tokens[idx].Type
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

// sameLine reports whether the current token starts on the line where the
// previous token ended.
func (p *parser) sameLine() bool {
	if p.pos == 0 {
		return true
	}
	prev := p.tokens[p.pos-1]
	end := prev.Pos.Line + strings.Count(prev.Lexeme, "\n")
	return p.current().Pos.Line == end
}

func (p *parser) fail(kind ParseErrorKind, tok lexer.Token, expected ...string) {
	if p.err != nil {
		return
	}
	if tok.Type == lexer.TokError {
		p.err = &ParseError{Kind: LexFailure, Pos: tok.Pos, Found: tok, Cause: tok.Err}
		return
	}
	p.err = &ParseError{Kind: kind, Pos: tok.Pos, Found: tok, Expected: expected}
}

func (p *parser) expect(typ lexer.TokenType) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		p.fail(ExpectedToken, tok, typ.String())
		return tok, false
	}
	return p.advance(), true
}

func (p *parser) enter() bool {
	p.depth++
	if p.depth > maxDepth {
		p.fail(TooDeep, p.current())
		return false
	}
	return true
}

func (p *parser) leave() {
	p.depth--
}

// --- Program ---

func (p *parser) parseProgram() []ast.Expr {
	prog := []ast.Expr{}
	for p.peek() != lexer.TokEOF {
		expr := p.parseExpr()
		if expr == nil {
			return nil
		}
		prog = append(prog, expr)
	}
	return prog
}

// --- Expressions ---

func (p *parser) parseExpr() ast.Expr {
	defer p.leave()
	if !p.enter() {
		return nil
	}
	return p.parseAssignment()
}

func (p *parser) parseAssignment() ast.Expr {
	left := p.parseLogical()
	if left == nil {
		return nil
	}
	if p.peek() != lexer.TokAssign {
		return left
	}

	opTok := p.advance()
	switch left.(type) {
	case *ast.Identifier, *ast.Property:
	default:
		p.fail(InvalidAssignTarget, opTok)
		return nil
	}

	value := p.parseExpr()
	if value == nil {
		return nil
	}
	return &ast.Assign{Pos: left.Position(), Target: left, Value: value}
}

func (p *parser) parseLogical() ast.Expr {
	left := p.parseComparison()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokAnd:
			op = ast.OpAnd
		case lexer.TokOr:
			op = ast.OpOr
		default:
			return left
		}
		p.advance()
		right := p.parseComparison()
		if right == nil {
			return nil
		}
		left = &ast.Binary{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
}

func comparisonOp(t lexer.TokenType) (ast.BinaryOp, bool) {
	switch t {
	case lexer.TokGt:
		return ast.OpGt, true
	case lexer.TokLt:
		return ast.OpLt, true
	case lexer.TokGtEq:
		return ast.OpGtEq, true
	case lexer.TokLtEq:
		return ast.OpLtEq, true
	case lexer.TokEqEq:
		return ast.OpEqEq, true
	case lexer.TokNeq:
		return ast.OpNeq, true
	}
	return "", false
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	if left == nil {
		return nil
	}

	op, ok := comparisonOp(p.peek())
	if !ok {
		return left
	}
	p.advance()
	right := p.parseAdditive()
	if right == nil {
		return nil
	}
	if _, chained := comparisonOp(p.peek()); chained {
		p.fail(ChainedComparison, p.current())
		return nil
	}
	return &ast.Binary{Pos: left.Position(), Op: op, Left: left, Right: right}
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokPlus:
			op = ast.OpAdd
		case lexer.TokMinus:
			op = ast.OpSub
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &ast.Binary{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokStar:
			op = ast.OpMul
		case lexer.TokSlash:
			op = ast.OpDiv
		case lexer.TokPercent:
			op = ast.OpMod
		default:
			return left
		}
		p.advance()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &ast.Binary{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() ast.Expr {
	var op ast.UnaryOp
	switch p.peek() {
	case lexer.TokMinus:
		op = ast.OpNeg
	case lexer.TokNot:
		op = ast.OpNot
	default:
		return p.parsePostfix()
	}

	defer p.leave()
	if !p.enter() {
		return nil
	}
	start := p.advance()
	operand := p.parseUnary()
	if operand == nil {
		return nil
	}
	return &ast.Unary{Pos: start.Pos, Op: op, Operand: operand}
}

// parsePostfix handles call, trailing-lambda and property chains. A call's
// opening parenthesis or a bare lambda argument must start on the same line as
// the callee so that a new line beginning with '(' or '|' starts a new expression.
func (p *parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for {
		switch {
		case p.peek() == lexer.TokLParen && p.sameLine():
			args, ok := p.parseArgs()
			if !ok {
				return nil
			}
			if p.peek() == lexer.TokPipe && p.sameLine() {
				lam := p.parseLambda()
				if lam == nil {
					return nil
				}
				args = append(args, lam)
			}
			expr = &ast.Call{Pos: expr.Position(), Callee: expr, Args: args}

		case p.peek() == lexer.TokPipe && p.sameLine():
			lam := p.parseLambda()
			if lam == nil {
				return nil
			}
			expr = &ast.Call{Pos: expr.Position(), Callee: expr, Args: []ast.Expr{lam}}

		case p.peek() == lexer.TokDot:
			p.advance()
			nameTok, ok := p.expect(lexer.TokIdent)
			if !ok {
				return nil
			}
			expr = &ast.Property{Pos: nameTok.Pos, Object: expr, Name: nameTok.Lexeme}

		default:
			return expr
		}
	}
}

func (p *parser) parseArgs() ([]ast.Expr, bool) {
	p.advance() // consume '('
	args := []ast.Expr{}
	for p.peek() != lexer.TokRParen {
		arg := p.parseExpr()
		if arg == nil {
			return nil, false
		}
		args = append(args, arg)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil, false
	}
	return args, true
}

func (p *parser) parsePrimary() ast.Expr {
	tok := p.current()
	switch tok.Type {
	case lexer.TokNumber:
		p.advance()
		return &ast.NumberLit{Pos: tok.Pos, Value: tok.Num}
	case lexer.TokString:
		p.advance()
		return &ast.StringLit{Pos: tok.Pos, Value: tok.Text}
	case lexer.TokTrue:
		p.advance()
		return &ast.BoolLit{Pos: tok.Pos, Value: true}
	case lexer.TokFalse:
		p.advance()
		return &ast.BoolLit{Pos: tok.Pos, Value: false}
	case lexer.TokNil:
		p.advance()
		return &ast.NilLit{Pos: tok.Pos}
	case lexer.TokIdent:
		p.advance()
		return &ast.Identifier{Pos: tok.Pos, Name: tok.Lexeme}
	case lexer.TokLParen:
		return p.parseParen()
	case lexer.TokLBrace:
		return p.parseBlock()
	case lexer.TokPipe:
		return p.parseLambda()
	case lexer.TokIf:
		return p.parseIf()
	case lexer.TokWhile:
		return p.parseWhile()
	case lexer.TokMatch:
		return p.parseMatch()
	}
	p.fail(UnexpectedToken, tok, "expression")
	return nil
}

// parseParen handles grouping, list literals and map literals, all of which
// open with '('.
func (p *parser) parseParen() ast.Expr {
	start := p.advance() // consume '('

	switch {
	case p.peek() == lexer.TokComma && p.peekAt(1) == lexer.TokRParen:
		p.advance()
		p.advance()
		return &ast.ListLit{Pos: start.Pos, Elements: []ast.Expr{}}
	case p.peek() == lexer.TokColon && p.peekAt(1) == lexer.TokRParen:
		p.advance()
		p.advance()
		return &ast.MapLit{Pos: start.Pos, Entries: []ast.MapEntry{}}
	}

	first := p.parseExpr()
	if first == nil {
		return nil
	}

	switch p.peek() {
	case lexer.TokColon:
		return p.parseMapRest(start, first)
	case lexer.TokComma:
		return p.parseListRest(start, first)
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	return first
}

func (p *parser) parseListRest(start lexer.Token, first ast.Expr) ast.Expr {
	elems := []ast.Expr{first}
	for p.peek() == lexer.TokComma {
		p.advance()
		if p.peek() == lexer.TokRParen {
			break
		}
		elem := p.parseExpr()
		if elem == nil {
			return nil
		}
		elems = append(elems, elem)
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	return &ast.ListLit{Pos: start.Pos, Elements: elems}
}

func (p *parser) parseMapRest(start lexer.Token, firstKey ast.Expr) ast.Expr {
	var entries []ast.MapEntry
	key := firstKey
	for {
		if _, ok := p.expect(lexer.TokColon); !ok {
			return nil
		}
		value := p.parseExpr()
		if value == nil {
			return nil
		}
		entries = append(entries, ast.MapEntry{Key: key, Value: value})

		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
		if p.peek() == lexer.TokRParen {
			break
		}
		if key = p.parseExpr(); key == nil {
			return nil
		}
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	return &ast.MapLit{Pos: start.Pos, Entries: entries}
}

func (p *parser) parseBlock() ast.Expr {
	start := p.advance() // consume '{'
	exprs := []ast.Expr{}
	for p.peek() != lexer.TokRBrace && p.peek() != lexer.TokEOF {
		expr := p.parseExpr()
		if expr == nil {
			return nil
		}
		exprs = append(exprs, expr)
	}
	if _, ok := p.expect(lexer.TokRBrace); !ok {
		return nil
	}
	return &ast.Block{Pos: start.Pos, Exprs: exprs}
}

func (p *parser) parseLambda() ast.Expr {
	start := p.advance() // consume '|'
	params := []string{}
	for p.peek() != lexer.TokPipe {
		nameTok, ok := p.expect(lexer.TokIdent)
		if !ok {
			return nil
		}
		params = append(params, nameTok.Lexeme)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokPipe); !ok {
		return nil
	}
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.Lambda{Pos: start.Pos, Params: params, Body: body}
}

func (p *parser) parseIf() ast.Expr {
	start := p.advance() // consume 'if'
	cond := p.parseExpr()
	if cond == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokThen); !ok {
		return nil
	}
	then := p.parseExpr()
	if then == nil {
		return nil
	}
	node := &ast.If{Pos: start.Pos, Cond: cond, Then: then}
	if p.peek() == lexer.TokElse {
		p.advance()
		if node.Else = p.parseExpr(); node.Else == nil {
			return nil
		}
	}
	return node
}

func (p *parser) parseWhile() ast.Expr {
	start := p.advance() // consume 'while'
	cond := p.parseExpr()
	if cond == nil {
		return nil
	}
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.While{Pos: start.Pos, Cond: cond, Body: body}
}

func (p *parser) parseMatch() ast.Expr {
	start := p.advance() // consume 'match'
	scrutinee := p.parseExpr()
	if scrutinee == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokLBrace); !ok {
		return nil
	}

	node := &ast.Match{Pos: start.Pos, Scrutinee: scrutinee}
	for p.peek() != lexer.TokRBrace && p.peek() != lexer.TokEOF {
		if p.peek() == lexer.TokElse {
			p.advance()
			if _, ok := p.expect(lexer.TokColon); !ok {
				return nil
			}
			if node.Else = p.parseExpr(); node.Else == nil {
				return nil
			}
			if p.peek() == lexer.TokComma {
				p.advance()
			}
			break
		}

		pattern := p.parseExpr()
		if pattern == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TokColon); !ok {
			return nil
		}
		result := p.parseExpr()
		if result == nil {
			return nil
		}
		node.Arms = append(node.Arms, ast.MatchArm{Pattern: pattern, Result: result})
		if p.peek() == lexer.TokComma {
			p.advance()
		}
	}
	if _, ok := p.expect(lexer.TokRBrace); !ok {
		return nil
	}
	return node
}

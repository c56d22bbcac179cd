// Package jsongrammar is a small, hand-written JSON Token/Node pair
// satisfying the external contracts pkg/lexer, pkg/parser, and pkg/syntax
// consume from a host grammar (§6 of the specification this module
// implements): a Scanner, a parser.RuleFunc, and a syntax.Classifier.
//
// It exists purely as a test/demo fixture — the core never imports it —
// sufficient to exercise the S1 ("reparse a changed number") and S2
// ("whitespace-only edit") end-to-end scenarios and to give cmd/parsegraph
// and pkg/langserver something real to parse.
package jsongrammar

import (
	"github.com/Sumatoshi-tech/parsegraph/pkg/lexer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/parser"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

// Token kinds produced by Scanner.
const (
	TokenLBrace uint16 = iota + 1
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenColon
	TokenComma
	TokenString
	TokenNumber
	TokenTrue
	TokenFalse
	TokenNull
	TokenWhitespace
	TokenMismatch
)

// Rule ids produced by the grammar's RuleFunc and reported on NodeRefs.
// Punctuation leaves (braces, brackets, colon, comma) built via
// Session.Token are tagged with the token kind itself; string, number and
// literal leaves carry their Rule* id. The rule id space starts well clear
// of the token kind space above to keep Classifier's switch unambiguous.
const (
	RuleValue uint16 = iota + 100
	RuleObject
	RuleArray
	RuleMember
	RuleString
	RuleNumber
	RuleTrue
	RuleFalse
	RuleNull
)

// Scanner implements lexer.Scanner for RFC 8259 JSON, with a mismatch
// fallback: any byte that starts no valid token is emitted as a single
// TokenMismatch chunk rather than failing, per §4.4's "lexing never
// errors" contract.
type Scanner struct{}

// Next recognizes the token at the head of src.
func (Scanner) Next(src []byte) (lexer.Token, bool) {
	if len(src) == 0 {
		return lexer.Token{}, false
	}

	switch b := src[0]; {
	case b == '{':
		return lexer.Token{Kind: TokenLBrace, Length: 1}, true
	case b == '}':
		return lexer.Token{Kind: TokenRBrace, Length: 1}, true
	case b == '[':
		return lexer.Token{Kind: TokenLBracket, Length: 1}, true
	case b == ']':
		return lexer.Token{Kind: TokenRBracket, Length: 1}, true
	case b == ':':
		return lexer.Token{Kind: TokenColon, Length: 1}, true
	case b == ',':
		return lexer.Token{Kind: TokenComma, Length: 1}, true
	case b == ' ' || b == '\t' || b == '\n' || b == '\r':
		return lexer.Token{Kind: TokenWhitespace, Length: whitespaceRun(src)}, true
	case b == '"':
		if n, ok := stringRun(src); ok {
			return lexer.Token{Kind: TokenString, Length: n}, true
		}

		// An unterminated string covers the whole window, so Relex's
		// growth loop widens the window and scans again; at the end of the
		// input the unclosed remainder stays one TokenMismatch chunk.
		return lexer.Token{Kind: TokenMismatch, Length: len(src)}, true
	case b == '-' || (b >= '0' && b <= '9'):
		if n, ok := numberRun(src); ok {
			return lexer.Token{Kind: TokenNumber, Length: n}, true
		}

		return lexer.Token{Kind: TokenMismatch, Length: 1}, true
	case matchLiteral(src, "true"):
		return lexer.Token{Kind: TokenTrue, Length: 4}, true
	case matchLiteral(src, "false"):
		return lexer.Token{Kind: TokenFalse, Length: 5}, true
	case matchLiteral(src, "null"):
		return lexer.Token{Kind: TokenNull, Length: 4}, true
	default:
		return lexer.Token{Kind: TokenMismatch, Length: 1}, true
	}
}

func whitespaceRun(src []byte) int {
	n := 0
	for n < len(src) {
		switch src[n] {
		case ' ', '\t', '\n', '\r':
			n++
		default:
			return n
		}
	}

	return n
}

// stringRun scans a double-quoted JSON string starting at src[0], honoring
// backslash escapes. ok is false if src ends before the closing quote is
// found; Next then reports all of src as one TokenMismatch, which makes
// pkg/lexer.Session.Relex's token-growth loop widen the window and retry.
func stringRun(src []byte) (int, bool) {
	i := 1
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2

			continue
		case '"':
			return i + 1, true
		default:
			i++
		}
	}

	return 0, false
}

// numberRun scans a JSON number: an optional leading '-', an integer part,
// an optional fractional part, and an optional exponent.
func numberRun(src []byte) (int, bool) {
	i := 0

	if src[i] == '-' {
		i++
	}

	if i >= len(src) || src[i] < '0' || src[i] > '9' {
		return 0, false
	}

	for i < len(src) && src[i] >= '0' && src[i] <= '9' {
		i++
	}

	if i < len(src) && src[i] == '.' {
		j := i + 1
		for j < len(src) && src[j] >= '0' && src[j] <= '9' {
			j++
		}

		if j > i+1 {
			i = j
		}
	}

	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}

		k := j
		for k < len(src) && src[k] >= '0' && src[k] <= '9' {
			k++
		}

		if k > j {
			i = k
		}
	}

	return i, true
}

func matchLiteral(src []byte, lit string) bool {
	if len(src) < len(lit) {
		return false
	}

	for i := 0; i < len(lit); i++ {
		if src[i] != lit[i] {
			return false
		}
	}

	return true
}

// Classifier buckets every JSON rule id into syntax.CategoryRule and every
// token kind except whitespace and mismatch into syntax.CategoryToken, the
// minimum a host needs for syntax highlighting. Whitespace, mismatch and
// any other id are syntax.CategoryUnknown.
func Classifier(rule uint16) syntax.Category {
	switch rule {
	case RuleValue, RuleObject, RuleArray, RuleMember, RuleString, RuleNumber, RuleTrue, RuleFalse, RuleNull:
		return syntax.CategoryRule
	case TokenLBrace, TokenRBrace, TokenLBracket, TokenRBracket, TokenColon, TokenComma,
		TokenString, TokenNumber, TokenTrue, TokenFalse, TokenNull:
		return syntax.CategoryToken
	default:
		return syntax.CategoryUnknown
	}
}

// Classify maps a syntax node to the document.ClassifyFunc taxonomy used
// by pkg/document's class table: "Object", "Array", and "Member" nodes are
// classified so a host attribute can subscribe read_class on them (§3.5).
func Classify(tree *syntax.Tree, ref syntax.NodeRef) []string {
	node := tree.Get(ref)
	if node == nil {
		return nil
	}

	switch node.Rule {
	case RuleObject:
		return []string{"Object"}
	case RuleArray:
		return []string{"Array"}
	case RuleMember:
		return []string{"Member"}
	default:
		return nil
	}
}

// Grammar is the parser.RuleFunc entry point: Value, called at the
// document root.
func Grammar(s *parser.Session) syntax.NodeRef {
	return s.Descend(RuleValue, parseValue)
}

func skipWhitespace(s *parser.Session) {
	for {
		ch, ok := s.Peek()
		if !ok || ch.Token != TokenWhitespace {
			return
		}

		s.Advance()
	}
}

func parseValue(s *parser.Session) syntax.NodeRef {
	skipWhitespace(s)

	ch, ok := s.Peek()
	if !ok {
		s.Error("unexpected end of input, expected a value")

		return syntax.NodeRef{}
	}

	switch ch.Token {
	case TokenLBrace:
		return s.Descend(RuleObject, parseObject)
	case TokenLBracket:
		return s.Descend(RuleArray, parseArray)
	case TokenString:
		return s.Descend(RuleString, parseString)
	case TokenNumber:
		return s.Descend(RuleNumber, parseNumber)
	case TokenTrue:
		return s.Descend(RuleTrue, parseLiteral(RuleTrue))
	case TokenFalse:
		return s.Descend(RuleFalse, parseLiteral(RuleFalse))
	case TokenNull:
		return s.Descend(RuleNull, parseLiteral(RuleNull))
	default:
		s.Error("unexpected token, expected a value")

		return syntax.NodeRef{}
	}
}

func parseString(s *parser.Session) syntax.NodeRef {
	ch, ok := s.Peek()
	if !ok || ch.Token != TokenString {
		s.Error("expected a string")

		return syntax.NodeRef{}
	}

	return s.Token(RuleString)
}

func parseNumber(s *parser.Session) syntax.NodeRef {
	ch, ok := s.Peek()
	if !ok || ch.Token != TokenNumber {
		s.Error("expected a number")

		return syntax.NodeRef{}
	}

	return s.Token(RuleNumber)
}

func parseLiteral(rule uint16) parser.RuleFunc {
	return func(s *parser.Session) syntax.NodeRef {
		return s.Token(rule)
	}
}

func parseObject(s *parser.Session) syntax.NodeRef {
	site := s.Site()

	open, ok := expect(s, TokenLBrace, "expected '{'")
	if !ok {
		return syntax.NodeRef{}
	}

	children := []syntax.NodeRef{open}

	skipWhitespace(s)

	if ch, ok := s.Peek(); ok && ch.Token == TokenRBrace {
		children = append(children, s.Token(TokenRBrace))

		return s.Syn().NewRule(RuleObject, site, children...)
	}

	for {
		member := s.Descend(RuleMember, parseMember)
		if member.IsNil() {
			break
		}

		children = append(children, member)

		skipWhitespace(s)

		ch, ok := s.Peek()
		if !ok || ch.Token != TokenComma {
			break
		}

		children = append(children, s.Token(TokenComma))
		skipWhitespace(s)
	}

	skipWhitespace(s)

	if close, ok := expect(s, TokenRBrace, "expected '}'"); ok {
		children = append(children, close)
	}

	return s.Syn().NewRule(RuleObject, site, children...)
}

func parseMember(s *parser.Session) syntax.NodeRef {
	site := s.Site()

	skipWhitespace(s)

	key := s.Descend(RuleString, parseString)
	if key.IsNil() {
		return syntax.NodeRef{}
	}

	skipWhitespace(s)

	colon, ok := expect(s, TokenColon, "expected ':'")
	if !ok {
		return s.Syn().NewRule(RuleMember, site, key)
	}

	skipWhitespace(s)

	value := s.Descend(RuleValue, parseValue)
	if value.IsNil() {
		return s.Syn().NewRule(RuleMember, site, key, colon)
	}

	return s.Syn().NewRule(RuleMember, site, key, colon, value)
}

func parseArray(s *parser.Session) syntax.NodeRef {
	site := s.Site()

	open, ok := expect(s, TokenLBracket, "expected '['")
	if !ok {
		return syntax.NodeRef{}
	}

	children := []syntax.NodeRef{open}

	skipWhitespace(s)

	if ch, ok := s.Peek(); ok && ch.Token == TokenRBracket {
		children = append(children, s.Token(TokenRBracket))

		return s.Syn().NewRule(RuleArray, site, children...)
	}

	for {
		value := s.Descend(RuleValue, parseValue)
		if value.IsNil() {
			break
		}

		children = append(children, value)

		skipWhitespace(s)

		ch, ok := s.Peek()
		if !ok || ch.Token != TokenComma {
			break
		}

		children = append(children, s.Token(TokenComma))
		skipWhitespace(s)
	}

	skipWhitespace(s)

	if close, ok := expect(s, TokenRBracket, "expected ']'"); ok {
		children = append(children, close)
	}

	return s.Syn().NewRule(RuleArray, site, children...)
}

// expect consumes the current chunk as a leaf node tagged with its own
// token kind if it matches want, recording a parse error and leaving the
// cursor untouched otherwise.
func expect(s *parser.Session, want uint16, msg string) (syntax.NodeRef, bool) {
	ch, ok := s.Peek()
	if !ok || ch.Token != want {
		s.Error(msg)

		return syntax.NodeRef{}, false
	}

	return s.Token(want), true
}

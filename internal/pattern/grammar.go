// Package pattern implements a tiny S-expression rewrite-rule language:
// parenthesized expressions whose head atom names an operation kind,
// with leading sigils on atoms selecting match mode. It is
// consumed by RegularFold, which supplies its own opcode table rather than
// this package knowing about any one dialect.
package pattern

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Node is one parsed S-expression: an integer literal, a float literal, an
// atom (with an optional match-mode sigil), or a parenthesized list whose
// head is an opcode name and whose args are nested Nodes.
type Node struct {
	Int   *int64    `  @Int`
	Float *float64  `| @Float`
	List  *ListNode `| "(" @@ ")"`
	Atom  *AtomNode `| @@`
}

// AtomNode is a bare identifier, optionally prefixed with `'` (bind an
// integer constant) or `*` (bind a float constant).
type AtomNode struct {
	Sigil string `@(Quote | Star)?`
	Name  string `@Ident`
}

// ListNode is `(head args...)`, optionally prefixed with `!` (integer
// compute expression, evaluated on captured constants) or `?` (float
// compute expression).
type ListNode struct {
	Sigil string  `@(Bang | Question)?`
	Head  string  `@(Ident | Op | Star)`
	Args  []*Node `@@*`
}

// Rule is `(change <match> <rewrite>)`.
type Rule struct {
	Open    string `"(" "change"`
	Match   *Node  `@@`
	Rewrite *Node  `@@ ")"`
}

var patternLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Float", Pattern: `[0-9]+\.[0-9]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Quote", Pattern: `'`},
	{Name: "Star", Pattern: `\*`},
	{Name: "Bang", Pattern: `!`},
	{Name: "Question", Pattern: `\?`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_\-]*`},
	{Name: "Op", Pattern: `[+\-/%]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var nodeParser = participle.MustBuild[Node](
	participle.Lexer(patternLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

var ruleParser = participle.MustBuild[Rule](
	participle.Lexer(patternLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// ParseNode parses a single match or rewrite expression, e.g. "(add 'a 'b)".
func ParseNode(src string) (*Node, error) {
	return nodeParser.ParseString("", src)
}

// ParseRule parses a full `(change <match> <rewrite>)` rule.
func ParseRule(src string) (*Rule, error) {
	return ruleParser.ParseString("", src)
}

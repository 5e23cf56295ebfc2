// internal/rules/grammar.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/solatis/schemamap/internal/types"
)

/*
 * Embedded rule grammar.
 *
 * A conditional mapping is persisted inside the compiled document as one
 * string:
 *
 *   IF (<cond> <AND|OR> <cond> ...) THEN [<source path>] ELSE [NULL]
 *   <cond> := <field> <operator> [<value>]
 *
 * The grammar is a persisted-format contract: documents written by one
 * release are parsed by the next, so any change bumps GrammarVersion.
 *
 * Serialization (FormatExpression):
 *   - Tokens are separated by single spaces
 *   - is-empty with an empty value omits the value
 *   - Fields and values that would not survive a bare round trip are written
 *     as Go-quoted strings: empty, containing brackets, parentheses or ",
 *     whitespace other than single inner spaces, or a word spelled AND/OR
 *   - Fields containing any whitespace are always quoted
 *
 * Parsing (ParseExpression) is a hand-written scanner plus recursive descent,
 * tolerant of what hand editing produces:
 *   - Arbitrary whitespace between tokens
 *   - Keywords (IF THEN ELSE AND OR NULL) in any case
 *   - Bare multi-word values, collapsed to single spaces
 *   - A dangling AND/OR before the closing parenthesis
 *
 * The final condition's join is always TERMINAL after parsing. Every error
 * wraps types.ErrMalformedExpression and names the byte offset.
 */

// GrammarVersion identifies the embedded expression format.
const GrammarVersion = 1

// Expression is the parsed form of an embedded rule.
type Expression struct {
	Conditions []types.Condition
	Source     string // THEN path; the ELSE branch is always NULL
}

// FormatExpression serializes e. The chain is expected to satisfy
// types.ValidateChain; any mid-chain join other than OR is written as AND.
func FormatExpression(e Expression) string {
	var b strings.Builder
	b.WriteString("IF (")
	for i, c := range e.Conditions {
		if i > 0 {
			if e.Conditions[i-1].Join == types.JoinOr {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		b.WriteString(formatField(c.Field))
		b.WriteByte(' ')
		b.WriteString(string(c.Operator))
		if c.Operator == types.OpIsEmpty && c.Value == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(formatAtom(c.Value))
	}
	b.WriteString(") THEN [")
	b.WriteString(e.Source)
	b.WriteString("] ELSE [NULL]")
	return b.String()
}

// formatAtom writes s bare when the parser would read it back unchanged.
func formatAtom(s string) string {
	if needsQuote(s) {
		return strconv.Quote(s)
	}
	return s
}

// formatField quotes any field containing whitespace: the parser reads a
// bare field as a single word.
func formatField(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return strconv.Quote(s)
	}
	return formatAtom(s)
}

func needsQuote(s string) bool {
	if s == "" || strings.ContainsAny(s, `()[]"`) {
		return true
	}
	words := strings.Fields(s)
	if strings.Join(words, " ") != s {
		return true
	}
	for _, w := range words {
		if isJoinWord(w) {
			return true
		}
	}
	return false
}

func isJoinWord(w string) bool {
	return strings.EqualFold(w, "AND") || strings.EqualFold(w, "OR")
}

// ParseExpression parses an embedded rule string.
func ParseExpression(s string) (Expression, error) {
	p := &exprParser{src: s}
	return p.parse()
}

// exprParser is a single-use recursive descent parser over src.
type exprParser struct {
	src string
	pos int
}

func (p *exprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", types.ErrMalformedExpression, p.pos, fmt.Sprintf(format, args...))
}

func (p *exprParser) parse() (Expression, error) {
	var e Expression

	if err := p.keyword("IF"); err != nil {
		return e, err
	}
	p.skipSpace()
	if !p.consume('(') {
		return e, p.errorf("expected ( after IF")
	}

	conds, err := p.conditions()
	if err != nil {
		return e, err
	}
	e.Conditions = conds

	if err := p.keyword("THEN"); err != nil {
		return e, err
	}
	source, err := p.bracket()
	if err != nil {
		return e, err
	}
	if source == "" {
		return e, p.errorf("empty THEN path")
	}
	if strings.EqualFold(source, "NULL") {
		return e, p.errorf("THEN branch must name a source path, not NULL")
	}
	e.Source = source

	if err := p.keyword("ELSE"); err != nil {
		return e, err
	}
	alt, err := p.bracket()
	if err != nil {
		return e, err
	}
	if !strings.EqualFold(alt, "NULL") {
		return e, p.errorf("ELSE branch must be [NULL], got [%s]", alt)
	}

	p.skipSpace()
	if p.pos != len(p.src) {
		return e, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	return e, nil
}

// conditions parses the chain up to and including the closing parenthesis.
func (p *exprParser) conditions() ([]types.Condition, error) {
	var conds []types.Condition
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated condition block")
		}
		if p.consume(')') {
			break
		}
		if len(conds) == types.MaxConditions {
			return nil, p.errorf("more than %d conditions", types.MaxConditions)
		}

		c, err := p.condition()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.consume(')') {
			c.Join = types.JoinTerminal
			conds = append(conds, c)
			break
		}
		start := p.pos
		word := p.word()
		join, ok := types.ParseJoin(word)
		if !ok || join == types.JoinTerminal {
			p.pos = start
			return nil, p.errorf("expected AND, OR or ), got %q", word)
		}
		c.Join = join
		conds = append(conds, c)
	}

	if len(conds) == 0 {
		return nil, p.errorf("empty condition block")
	}
	// A dangling join before ) leaves the last condition linked to nothing
	conds[len(conds)-1].Join = types.JoinTerminal
	return conds, nil
}

func (p *exprParser) condition() (types.Condition, error) {
	var c types.Condition

	field, err := p.atom()
	if err != nil {
		return c, err
	}
	if field == "" {
		return c, p.errorf("missing condition field")
	}
	c.Field = field

	p.skipSpace()
	start := p.pos
	word := p.word()
	op, ok := types.ParseOperator(word)
	if !ok {
		p.pos = start
		if word == "" {
			return c, p.errorf("missing operator after %q", field)
		}
		return c, p.errorf("unknown operator %q", word)
	}
	c.Operator = op

	value, present, err := p.value()
	if err != nil {
		return c, err
	}
	if !present && op != types.OpIsEmpty {
		return c, p.errorf("missing value for operator %s", op)
	}
	c.Value = value
	return c, nil
}

// value reads a quoted string or bare words up to the next join keyword or ).
// present is false when no value token precedes the join or parenthesis.
func (p *exprParser) value() (string, bool, error) {
	p.skipSpace()
	if p.peek() == '"' {
		s, err := p.quoted()
		return s, true, err
	}

	var words []string
	for {
		p.skipSpace()
		if p.eof() || p.peek() == ')' {
			break
		}
		start := p.pos
		w := p.word()
		if w == "" {
			return "", false, p.errorf("unexpected %q in value", p.peek())
		}
		if isJoinWord(w) {
			p.pos = start
			break
		}
		words = append(words, w)
	}
	return strings.Join(words, " "), len(words) > 0, nil
}

// atom reads a single quoted or bare token.
func (p *exprParser) atom() (string, error) {
	p.skipSpace()
	if p.peek() == '"' {
		return p.quoted()
	}
	return p.word(), nil
}

func (p *exprParser) quoted() (string, error) {
	prefix, err := strconv.QuotedPrefix(p.src[p.pos:])
	if err != nil {
		return "", p.errorf("unterminated quoted string")
	}
	s, err := strconv.Unquote(prefix)
	if err != nil {
		return "", p.errorf("invalid quoted string %s", prefix)
	}
	p.pos += len(prefix)
	return s, nil
}

// bracket reads "[ ... ]" and returns the trimmed content.
func (p *exprParser) bracket() (string, error) {
	p.skipSpace()
	if !p.consume('[') {
		return "", p.errorf("expected [")
	}
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return "", p.errorf("unterminated [")
	}
	content := strings.TrimSpace(p.src[p.pos : p.pos+end])
	p.pos += end + 1
	return content, nil
}

// keyword consumes a case-insensitive keyword.
func (p *exprParser) keyword(kw string) error {
	p.skipSpace()
	start := p.pos
	if w := p.word(); !strings.EqualFold(w, kw) {
		p.pos = start
		return p.errorf("expected %s, got %q", kw, w)
	}
	return nil
}

// word reads a run of characters that are neither whitespace nor brackets.
func (p *exprParser) word() string {
	start := p.pos
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if unicode.IsSpace(r) || strings.ContainsRune("()[]", r) {
			break
		}
		p.pos += size
	}
	return p.src[start:p.pos]
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *exprParser) consume(b byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *exprParser) eof() bool {
	return p.pos >= len(p.src)
}

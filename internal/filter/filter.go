// Package filter implements the redaction pipeline applied to process
// output before it is buffered. Rules are plain data records processed by
// a fixed interpreter, never arbitrary callbacks, so the pipeline stays
// auditable and side-effect free. Filtering always happens before a chunk
// reaches the ring buffer: no consumer can observe an unredacted secret,
// even transiently.
package filter

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultReplacement substitutes matched secrets when a rule does not
// specify its own replacement text.
const DefaultReplacement = "***FILTERED***"

// ErrFilter indicates a redaction rule failed to apply. The engine fails
// closed: the affected chunk is withheld rather than delivered unfiltered.
var ErrFilter = errors.New("filter rule failed to apply")

// Rule is one redaction record. Pattern is a regular expression (use
// Literal to match fixed text). Sensitive controls whether matches are
// recorded in the audit log.
type Rule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
}

// Literal returns a rule pattern matching s as fixed text.
func Literal(s string) string {
	return regexp.QuoteMeta(s)
}

// Match reports one rule firing during Apply.
type Match struct {
	Pattern   string
	Sensitive bool
	Count     int
}

type compiledRule struct {
	rule        Rule
	re          *regexp.Regexp
	replacement []byte
}

// Chain is an ordered, immutable redaction pipeline. Rules apply in the
// order given; later rules see the output of earlier ones.
type Chain struct {
	rules []compiledRule
}

// NewChain compiles the given rules. A malformed pattern fails the whole
// chain construction; a pipeline with a broken rule must never run.
func NewChain(rules []Rule) (*Chain, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("%w: rule %d has an empty pattern", ErrFilter, i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%q): %v", ErrFilter, i, r.Pattern, err)
		}
		replacement := r.Replacement
		if replacement == "" {
			replacement = DefaultReplacement
		}
		compiled = append(compiled, compiledRule{
			rule:        r,
			re:          re,
			replacement: []byte(replacement),
		})
	}
	return &Chain{rules: compiled}, nil
}

// Len returns the number of rules in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Apply runs the pipeline over one reassembled output unit and returns
// the redacted bytes plus a record of which rules fired. The input slice
// is never modified. On any failure the caller must withhold the unit.
func (c *Chain) Apply(unit []byte) ([]byte, []Match, error) {
	if c == nil || len(c.rules) == 0 {
		return unit, nil, nil
	}

	out := unit
	var matches []Match
	for i := range c.rules {
		cr := &c.rules[i]
		if cr.re == nil {
			return nil, nil, fmt.Errorf("%w: rule %q not compiled", ErrFilter, cr.rule.Pattern)
		}
		n := len(cr.re.FindAllIndex(out, -1))
		if n == 0 {
			continue
		}
		// Literal substitution: replacement text is a data record, so a
		// "$" in it must never re-expand the matched secret.
		out = cr.re.ReplaceAllLiteral(out, cr.replacement)
		matches = append(matches, Match{
			Pattern:   cr.rule.Pattern,
			Sensitive: cr.rule.Sensitive,
			Count:     n,
		})
	}
	return out, matches, nil
}

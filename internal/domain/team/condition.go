package team

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
)

var (
	// ErrMalformedCondition means the condition can never be evaluated.
	ErrMalformedCondition = errors.New("malformed condition")
	// ErrUnresolved means a template placeholder had no value. Callers
	// treat the rule as non-matching.
	ErrUnresolved = errors.New("unresolved condition variable")
)

var comparison = regexp.MustCompile(`^(.+?)\s*(==|!=|>=|<=|>|<)\s*(.+)$`)

// Vars are the values available to condition templates.
type Vars map[string]any

// NewVars builds the standard variable set: agent, round, text, plan.* and
// context.*.
func NewVars(agent string, round int, latest *step.Step, summary plan.Summary, ctx map[string]string) Vars {
	text := ""
	if latest != nil {
		text = latest.Text()
	}
	c := make(map[string]any, len(ctx))
	for k, v := range ctx {
		c[k] = v
	}
	return Vars{
		"agent":   agent,
		"round":   round,
		"text":    text,
		"plan":    summary.Vars(),
		"context": c,
	}
}

// Condition is a parsed handoff condition.
//
// The raw string is first rendered as a text/template against Vars (a
// missing key is an error), then the rendered expression is evaluated:
//
//	always | never          constant
//	tool:<name>             the step called <name>
//	/<regexp>/              the step text matches
//	<lhs> <op> <rhs>        comparison, numeric when both sides are numbers
//	anything else           phrase found in the text, case-insensitive, or
//	                        its marker form (DRAFT_IS_COMPLETE)
type Condition struct {
	raw  string
	tmpl *template.Template
}

// ParseCondition compiles a condition. Template syntax errors and invalid
// literal regexps are reported as ErrMalformedCondition.
func ParseCondition(raw string) (*Condition, error) {
	tmpl, err := template.New("condition").Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedCondition, raw, err)
	}
	if !strings.Contains(raw, "{{") {
		if re, ok := regexLiteral(strings.TrimSpace(raw)); ok {
			if _, err := regexp.Compile(re); err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrMalformedCondition, raw, err)
			}
		}
	}
	return &Condition{raw: raw, tmpl: tmpl}, nil
}

// String returns the raw condition.
func (c *Condition) String() string { return c.raw }

// Eval evaluates the condition against the latest step.
func (c *Condition) Eval(latest *step.Step, vars Vars) (bool, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, map[string]any(vars)); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	expr := strings.TrimSpace(buf.String())

	text := ""
	if latest != nil {
		text = latest.Text()
	}

	switch lower := strings.ToLower(expr); {
	case expr == "":
		return false, nil
	case lower == "always" || lower == "true":
		return true, nil
	case lower == "never" || lower == "false":
		return false, nil
	case strings.HasPrefix(lower, "tool:"):
		return calledTool(latest, strings.TrimSpace(expr[len("tool:"):])), nil
	}

	if re, ok := regexLiteral(expr); ok {
		compiled, err := regexp.Compile(re)
		if err != nil {
			return false, fmt.Errorf("%w: %q: %w", ErrMalformedCondition, expr, err)
		}
		return compiled.MatchString(text), nil
	}

	if m := comparison.FindStringSubmatch(expr); m != nil {
		return compare(strings.TrimSpace(m[1]), m[2], strings.TrimSpace(m[3])), nil
	}

	return matchPhrase(text, expr), nil
}

func regexLiteral(expr string) (string, bool) {
	if len(expr) >= 2 && expr[0] == '/' && expr[len(expr)-1] == '/' {
		return expr[1 : len(expr)-1], true
	}
	return "", false
}

func calledTool(latest *step.Step, name string) bool {
	if latest == nil {
		return false
	}
	for _, c := range latest.ToolCalls() {
		if c.ToolName == name {
			return true
		}
	}
	return false
}

func compare(lhs, op, rhs string) bool {
	lhs, rhs = unquote(lhs), unquote(rhs)
	l, lerr := strconv.ParseFloat(lhs, 64)
	r, rerr := strconv.ParseFloat(rhs, 64)
	if lerr != nil || rerr != nil {
		c := strings.Compare(lhs, rhs)
		return cmpHolds(op, c)
	}
	switch {
	case l < r:
		return cmpHolds(op, -1)
	case l > r:
		return cmpHolds(op, 1)
	default:
		return cmpHolds(op, 0)
	}
}

func cmpHolds(op string, c int) bool {
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func matchPhrase(text, phrase string) bool {
	phrase = unquote(phrase)
	if phrase == "" {
		return false
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(phrase)) {
		return true
	}
	marker := Marker(phrase)
	return marker != "" && strings.Contains(strings.ToUpper(text), marker)
}

// Marker converts a phrase to its UPPER_SNAKE marker form:
// "draft is complete" -> "DRAFT_IS_COMPLETE".
func Marker(phrase string) string {
	words := strings.FieldsFunc(phrase, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToUpper(strings.Join(words, "_"))
}

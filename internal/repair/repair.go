// Package repair turns the JSON-ish text returned by chat-completion models into
// strict JSON. It only patches punctuation and structure; it never invents data.
package repair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var delimiterReplacer = strings.NewReplacer(
	"，", ",",
	"：", ":",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// labelPattern matches the stray prefixes models put in front of a task
// description: numerals, CJK ordinals (第一步, 第3天, 三) and short words
// optionally followed by a number (Step 2, 任务1).
const labelPattern = `(?:[0-9]+|第[0-9一二三四五六七八九十百零两]+\p{Han}{0,2}|[一二三四五六七八九十]+|[A-Za-z]{1,10}\s?[0-9]*|\p{Han}{1,4}[0-9]*)`

// embeddedLabelPattern is labelPattern without the bare-word forms. Inside a
// single string "英语: 背单词" or "Python: learn go" is a subject, not a
// label, so words only count when a number follows (任务1, Step 2).
const embeddedLabelPattern = `(?:[0-9]+|第[0-9一二三四五六七八九十百零两]+\p{Han}{0,2}|[一二三四五六七八九十]+|[A-Za-z]{1,10}\s?[0-9]+|\p{Han}{1,4}[0-9]+)`

// jsonString matches the body of a JSON string literal.
const jsonString = `((?:[^"\\]|\\.)*)`

var (
	// {"title": "<label>": "<description>"}
	labeledTitleObject = regexp.MustCompile(`\{\s*"title"\s*:\s*"(?:[^"\\]|\\.)*"\s*:\s*"` + jsonString + `"\s*\}`)
	// {"title": 1: "<description>"}
	bareLabelObject = regexp.MustCompile(`\{\s*"title"\s*:\s*` + labelPattern + `\s*:\s*"` + jsonString + `"\s*\}`)
	// {"title": "<label>: <description>"}. A digit right after the colon
	// means a clock time ("6:30"), not a label.
	embeddedLabelObject = regexp.MustCompile(`\{\s*"title"\s*:\s*"\s*` + embeddedLabelPattern + `\s*:\s*((?:[^"\\0-9]|\\.)(?:[^"\\]|\\.)*)"\s*\}`)

	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// Repair applies the repair passes in order and repeats them until the text
// stops changing, so Repair(Repair(s)) == Repair(s).
func Repair(raw string) string {
	out := raw
	// A pass that changes the text always shortens it, so this reaches a
	// fixpoint within len(raw) iterations.
	for i := 0; i <= len(raw); i++ {
		next := pass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func pass(s string) string {
	s = NormalizeDelimiters(s)
	s = ExtractEnvelope(s)
	s = CollapseTaskObjects(s)
	s = StripTrailingCommas(s)
	s = StripControlChars(s)
	return s
}

// NormalizeDelimiters replaces full-width punctuation and smart quotes with
// their ASCII equivalents.
func NormalizeDelimiters(s string) string {
	return delimiterReplacer.Replace(s)
}

// ExtractEnvelope keeps the span from the first '{' to the last '}'.
// Text without such a span is returned unchanged.
func ExtractEnvelope(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// CollapseTaskObjects rewrites task objects carrying a stray label down to
// {"title": "<description>"}.
func CollapseTaskObjects(s string) string {
	s = labeledTitleObject.ReplaceAllString(s, `{"title": "${1}"}`)
	s = bareLabelObject.ReplaceAllString(s, `{"title": "${1}"}`)
	s = embeddedLabelObject.ReplaceAllString(s, `{"title": "${1}"}`)
	return s
}

// StripTrailingCommas deletes a comma that directly precedes '}' or ']'.
func StripTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "${1}")
}

// StripControlChars removes control characters other than tab, LF and CR.
func StripControlChars(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// Error reports text that still is not valid JSON after repair.
type Error struct {
	Repaired string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("repaired response is not valid JSON: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Decode repairs raw and strictly decodes the result into v.
func Decode(raw string, v interface{}) error {
	fixed := Repair(raw)
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return &Error{Repaired: fixed, Err: err}
	}
	return nil
}

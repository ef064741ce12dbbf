package services

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The analysis model is asked for bare JSON but does not always comply. The
// repair pass below is deliberately bounded: fences, smart quotes, unquoted
// keys and trailing commas. A high repair rate signals prompt drift and
// should be fixed in the prompt, not here.
var (
	unquotedKeyRe  = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	smartQuoteRepl = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// extractJSON trims prose and code fences around the first JSON value in
// text. Returns the input unchanged when no braces or brackets are found.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return text
	}

	open := text[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return text[start:]
	}
	return text[start : end+1]
}

// repairJSON applies the bounded fix-up passes to malformed JSON text.
func repairJSON(text string) string {
	text = smartQuoteRepl.Replace(text)
	text = unquotedKeyRe.ReplaceAllString(text, `$1"$2":`)
	text = trailingComma.ReplaceAllString(text, `$1`)
	return text
}

// decodeModelJSON parses a model response into v. When the initial parse
// fails a single repair pass is attempted; the returned bool reports whether
// repair was needed.
func decodeModelJSON(text string, v any) (bool, error) {
	candidate := extractJSON(text)
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return false, nil
	}

	repaired := repairJSON(candidate)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return true, err
	}
	return true, nil
}

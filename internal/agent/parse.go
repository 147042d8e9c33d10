package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// parseExcerptLen bounds how much raw model output goes into error logs.
const parseExcerptLen = 500

var (
	jsonSpanRe          = regexp.MustCompile(`(?s)\{.*\}`)
	commentAfterCommaRe = regexp.MustCompile(`,\s*//[^\n]*`)
	commentAfterBraceRe = regexp.MustCompile(`\{\s*//[^\n]*`)
	trailingCommaRe     = regexp.MustCompile(`,\s*([\]}])`)
)

// decodeObject recovers the first JSON object span from a model's free-text
// reply and unmarshals it into T. Models occasionally annotate JSON with
// line comments or leave trailing commas, so both are stripped before
// decoding. Best-effort cleanup only, not a lenient JSON dialect parser.
func decodeObject[T any](text string) (T, error) {
	var out T

	span := jsonSpanRe.FindString(text)
	if span == "" {
		return out, eris.New("agent: no JSON object in model response")
	}

	cleaned := commentAfterCommaRe.ReplaceAllString(span, ",")
	cleaned = commentAfterBraceRe.ReplaceAllString(cleaned, "{")
	cleaned = trailingCommaRe.ReplaceAllString(cleaned, "$1")

	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		zap.L().Error("agent: JSON parse failed",
			zap.String("raw_excerpt", excerpt(text, parseExcerptLen)),
		)
		return out, eris.Wrapf(err, "agent: parse model JSON (raw: %s)", excerpt(text, parseExcerptLen))
	}
	return out, nil
}

func excerpt(s string, n int) string {
	return strings.TrimSpace(truncate(s, n))
}

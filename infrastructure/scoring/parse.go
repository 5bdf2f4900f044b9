package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

var validate = validator.New()

// Errors describing why a provider reply was rejected.
var (
	errNoJSON       = errors.New("no JSON object in reply")
	errScoreNotInt  = errors.New("score is not an integer")
	errMissingScore = errors.New("score missing")
)

// scoreReply is the wire shape providers are asked to produce. Score stays a
// json.Number so integers and floats can be told apart.
type scoreReply struct {
	Score       json.Number `json:"score"`
	Explanation string      `json:"explanation"`
}

// checkedReply is scoreReply after number conversion, ready for struct-tag
// validation.
type checkedReply struct {
	Score       *int   `validate:"required,min=0,max=100"`
	Explanation string `validate:"required"`
}

// parseReply extracts and validates a score from raw provider output.
// Integral floats such as 85.0 are accepted; fractional scores, out of range
// scores, and empty explanations are rejected.
func parseReply(raw string) (domain.ScoreResult, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return domain.ScoreResult{}, fmt.Errorf("%w (reply length: %d chars)", errNoJSON, len(raw))
	}

	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.UseNumber()
	var reply scoreReply
	if err := dec.Decode(&reply); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("failed to decode reply JSON: %w", err)
	}

	score, err := integerScore(reply.Score)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	checked := checkedReply{Score: &score, Explanation: strings.TrimSpace(reply.Explanation)}
	if err := validate.Struct(checked); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidScore, err)
	}

	return domain.ScoreResult{Score: score, Explanation: checked.Explanation}, nil
}

func integerScore(n json.Number) (int, error) {
	if n == "" {
		return 0, errMissingScore
	}
	if i, err := n.Int64(); err == nil {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %s", domain.ErrInvalidScore, n)
		}
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", errScoreNotInt, n.String())
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidScore, n)
	}
	return int(f), nil
}

// extractJSON pulls the first JSON object out of a reply that may wrap it in
// a markdown fence or surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		// Skip any language identifier on the fence line.
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find the matching closing brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}

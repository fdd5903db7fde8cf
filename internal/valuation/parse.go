package valuation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"polyagent/internal/money"
	"polyagent/internal/pkg/jsonutil"
)

// The oracle is instructed to emit exactly this shape. Anything else is
// an OracleError — the core never substitutes silent defaults.
const valuationSchemaJSON = `{
  "type": "object",
  "required": ["probability", "confidence", "reasoning_summary", "key_factors", "data_quality", "time_sensitivity"],
  "properties": {
    "probability": {"type": "number"},
    "confidence": {"type": "number"},
    "reasoning_summary": {"type": "string"},
    "key_factors": {"type": "array", "items": {"type": "string"}},
    "data_quality": {"type": "string"},
    "time_sensitivity": {"type": "string"}
  }
}`

var valuationSchema = jsonschema.MustCompileString("valuation.json", valuationSchemaJSON)

// ParseValuation extracts and validates the oracle's JSON valuation from
// free-form model output.
func ParseValuation(text string) (Valuation, error) {
	raw, ok := jsonutil.ExtractObject(text)
	if !ok {
		return Valuation{}, &OracleError{Reason: "no JSON object in response"}
	}
	if !gjson.Valid(raw) {
		return Valuation{}, &OracleError{Reason: "response JSON is invalid"}
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Valuation{}, &OracleError{Reason: "decoding valuation JSON", Err: err}
	}
	if err := valuationSchema.Validate(doc); err != nil {
		return Valuation{}, &OracleError{Reason: "valuation schema mismatch", Err: err}
	}

	parsed := gjson.Parse(raw)
	quality := strings.ToLower(strings.TrimSpace(parsed.Get("data_quality").String()))
	switch quality {
	case QualityHigh, QualityMedium, QualityLow:
	default:
		return Valuation{}, &OracleError{Reason: "unknown data_quality tag " + quality}
	}
	sensitivity := strings.ToLower(strings.TrimSpace(parsed.Get("time_sensitivity").String()))
	switch sensitivity {
	case SensitivityHours, SensitivityDays, SensitivityWeeks:
	default:
		return Valuation{}, &OracleError{Reason: "unknown time_sensitivity tag " + sensitivity}
	}

	var factors []string
	parsed.Get("key_factors").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			factors = append(factors, s)
		}
		return true
	})

	return Valuation{
		Probability:      clamp01(money.FromFloat(parsed.Get("probability").Float())),
		Confidence:       clamp01(money.FromFloat(parsed.Get("confidence").Float())),
		ReasoningSummary: strings.TrimSpace(parsed.Get("reasoning_summary").String()),
		KeyFactors:       factors,
		DataQuality:      quality,
		TimeSensitivity:  sensitivity,
		SourceTime:       time.Now(),
	}, nil
}

func clamp01(v money.Money) money.Money {
	if v.IsNegative() {
		return money.Zero
	}
	if v.GreaterThan(money.One) {
		return money.One
	}
	return v
}

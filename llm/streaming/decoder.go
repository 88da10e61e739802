package streaming

import "github.com/tidwall/gjson"

// DefaultDeltaPath locates the incremental text in a chat completion chunk
// (choices[0].delta.content), in gjson path syntax.
const DefaultDeltaPath = "choices.0.delta.content"

// PayloadOutcome is the result class of decoding one payload line.
type PayloadOutcome int

const (
	PayloadEmpty     PayloadOutcome = iota // well-formed, no delta text
	PayloadDelta                           // carries a non-empty delta
	PayloadDone                            // termination sentinel
	PayloadMalformed                       // not decodable, possibly truncated
)

func (o PayloadOutcome) String() string {
	switch o {
	case PayloadEmpty:
		return "empty"
	case PayloadDelta:
		return "delta"
	case PayloadDone:
		return "done"
	case PayloadMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DecodeResult is the decoded form of a payload line.
type DecodeResult struct {
	Outcome PayloadOutcome
	Delta   string
}

// DecodePayload decodes payload content and extracts the string at path.
// Missing, null, non-string and empty values are all non-contributory.
func DecodePayload(content, path string) DecodeResult {
	if content == DoneSentinel {
		return DecodeResult{Outcome: PayloadDone}
	}
	// "data: " with nothing after it cannot be the head of a truncated record.
	if content == "" {
		return DecodeResult{Outcome: PayloadEmpty}
	}
	if !gjson.Valid(content) {
		return DecodeResult{Outcome: PayloadMalformed}
	}
	v := gjson.Get(content, path)
	if v.Type != gjson.String || v.Str == "" {
		return DecodeResult{Outcome: PayloadEmpty}
	}
	return DecodeResult{Outcome: PayloadDelta, Delta: v.Str}
}

// RebuildLine restores the wire form of a payload line from its content.
func RebuildLine(content string) string {
	return PayloadPrefix + content
}

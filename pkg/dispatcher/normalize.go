package dispatcher

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/harun/toolserver/pkg/bridge"
)

// normalizeScriptResult parses text results as JSON after swapping single for
// double quotes. Unparseable text is returned as it was. Other values cross
// the bridge directly so numbers keep their type and precision.
func normalizeScriptResult(v any) any {
	text, ok := v.(string)
	if !ok {
		return bridge.Convert(v)
	}

	quoted := strings.ReplaceAll(text, "'", `"`)
	if !gjson.Valid(quoted) {
		return text
	}

	dec := json.NewDecoder(strings.NewReader(quoted))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return text
	}
	return bridge.Convert(parsed)
}

// normalize converts a tool result for the response body.
func normalize(v any, isScript bool) any {
	if isScript {
		return normalizeScriptResult(v)
	}
	return bridge.Convert(v)
}

package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/responder-tracker/constants"
)

// ExtractJSONFragment pulls the first balanced JSON object out of a reply
// that may be wrapped in prose or code fences.
func ExtractJSONFragment(content string) ([]byte, bool) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				frag := []byte(s[start : i+1])
				if !json.Valid(frag) {
					return nil, false
				}
				return frag, true
			}
		}
	}
	return nil, false
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (eta -> eta_iso, vehicle_type -> vehicle)
// - Coerces confidence to a number in [0,1]
// - Canonicalizes status casing/synonyms onto the enum
// - Removes unknown keys, reporting each one (never dropped silently)
// Required fields are never invented: a reply missing one stays invalid.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 4)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to the schema
	renamed("eta", "eta_iso")
	renamed("etaIso", "eta_iso")
	renamed("eta_utc", "eta_iso")
	renamed("vehicle_type", "vehicle")
	renamed("quote", "evidence")

	// 2) confidence -> number in [0,1]
	if v, ok := m["confidence"]; ok {
		switch t := v.(type) {
		case float64:
			m["confidence"] = clamp01(t)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
			if err != nil {
				delete(m, "confidence")
				dropped = append(dropped, "confidence(type)")
				break
			}
			if strings.HasSuffix(strings.TrimSpace(t), "%") || f > 1 {
				f /= 100
			}
			m["confidence"] = clamp01(f)
		default:
			delete(m, "confidence")
			dropped = append(dropped, "confidence(type)")
		}
	}

	// 3) status onto the enum
	if v, ok := m["status"].(string); ok {
		if s, known := constants.CanonicalizeStatus(v); known {
			m["status"] = string(s)
		}
	}

	// 4) trim strings; a null eta is the same as Unknown
	for _, k := range []string{"vehicle", "eta_iso", "status", "evidence"} {
		switch t := m[k].(type) {
		case string:
			m[k] = strings.TrimSpace(t)
		case nil:
			if _, present := m[k]; present && k == "eta_iso" {
				m[k] = constants.ETAUnknown
			}
		}
	}

	// 5) remove unknown keys (everything not in the schema set below)
	allowed := map[string]struct{}{
		"vehicle": {}, "eta_iso": {}, "status": {}, "evidence": {}, "confidence": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.reply.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

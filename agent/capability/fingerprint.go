package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives the deterministic identity of an invocation:
// capability:method:sha256(canonical params JSON). Two invocations with the
// same semantic parameters always collide here regardless of map ordering
// or numeric formatting.
func Fingerprint(capability, method string, params map[string]any) string {
	sum := sha256.Sum256([]byte(canonicalJSON(params)))
	return capability + ":" + method + ":" + hex.EncodeToString(sum[:])
}

// canonicalJSON renders a parameter bag with recursively sorted keys.
// Values are normalized through encoding/json first so that e.g. int(3)
// and float64(3) produce the same bytes.
func canonicalJSON(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, normalize(v))
	return sb.String()
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		// Unmarshalable params cannot be cached deterministically; fall
		// back to the error text so the fingerprint is still stable.
		return fmt.Sprintf("!unmarshalable:%v", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw)
	}
	return out
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			enc, _ := json.Marshal(k)
			sb.Write(enc)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		enc, _ := json.Marshal(t)
		sb.Write(enc)
	}
}

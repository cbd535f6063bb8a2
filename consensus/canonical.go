package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalJSON renders v deterministically: map keys sorted, floats fixed to
// four decimal places, no whitespace. It accepts the generic value tree every
// domain type builds for hashing/signing (nil, bool, string, float64, any
// integer kind, map[string]any, []any, []string). The output is identical on
// every node running this encoder, which is what cross-node hash agreement
// depends on; it is not byte-identical to Python's json.dumps output (no
// separator spaces, Go string quoting).
func CanonicalJSON(v any) []byte {
	var b strings.Builder
	writeCanonical(&b, v)
	return []byte(b.String())
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		b.WriteString(strconv.Quote(t))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'f', 4, 64))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'f', 4, 64))
	case int:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case map[string]any:
		writeCanonicalMap(b, t)
	case []any:
		writeCanonicalSlice(b, t)
	case []string:
		s := make([]any, len(t))
		for i, v := range t {
			s[i] = v
		}
		writeCanonicalSlice(b, s)
	case []map[string]any:
		s := make([]any, len(t))
		for i, v := range t {
			s[i] = v
		}
		writeCanonicalSlice(b, s)
	default:
		// Should not happen for well-formed domain values; fail loudly rather
		// than silently hashing the wrong bytes.
		panic(fmt.Sprintf("consensus.CanonicalJSON: unsupported type %T", v))
	}
}

func writeCanonicalMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		writeCanonical(b, m[k])
	}
	b.WriteByte('}')
}

func writeCanonicalSlice(b *strings.Builder, s []any) {
	b.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonical(b, v)
	}
	b.WriteByte(']')
}

// Hash is crypto_hash: canonically serialise each argument, sort the
// resulting strings lexicographically, concatenate, and SHA-256 the result.
// Sorting before concatenation is load-bearing for consensus — callers need
// not agree on argument order, and every node must reproduce this exactly.
func Hash(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, string(CanonicalJSON(a)))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// LeadingZeroBits counts the leading zero bits of the byte representation of
// a hex-encoded hash. Equivalent to, and faster than, expanding each hex
// nibble to a 4-bit string and counting leading '0' characters.
func LeadingZeroBits(hexHash string) (int, error) {
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return 0, fmt.Errorf("leading zero bits: %w", err)
	}
	count := 0
	for _, byt := range raw {
		if byt == 0 {
			count += 8
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if byt&(1<<uint(bit)) != 0 {
				return count, nil
			}
			count++
		}
	}
	return count, nil
}

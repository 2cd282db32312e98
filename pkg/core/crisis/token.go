package crisis

import "strings"

type tokenKind int

const (
	tokenKindUnknown tokenKind = iota
	tokenKindMode
	tokenKindSignal
)

type textPart struct {
	text    string
	isToken bool
	kind    tokenKind
	name    string
	raw     string
}

// extractTokens splits raw into literal text and bracketed control tokens,
// scanning left to right. A token is a bracketed run of the shape KIND:NAME
// where both halves are upper-case words (underscores allowed). Bracketed
// text of any other shape is literal and preserved as written.
func extractTokens(raw string) []textPart {
	var parts []textPart
	rest := raw
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		close := strings.IndexByte(rest[open:], ']')
		if close < 0 {
			break
		}
		close += open

		inner := rest[open+1 : close]
		kind, name, ok := splitToken(inner)
		if !ok {
			// Literal bracketed text. Emit through the bracket and resume
			// after it so a later '[' still scans.
			parts = append(parts, textPart{text: rest[:open+1]})
			rest = rest[open+1:]
			continue
		}

		if open > 0 {
			parts = append(parts, textPart{text: rest[:open]})
		}
		parts = append(parts, textPart{
			isToken: true,
			kind:    kind,
			name:    name,
			raw:     rest[open : close+1],
		})
		rest = rest[close+1:]
	}
	if rest != "" {
		parts = append(parts, textPart{text: rest})
	}
	return parts
}

func splitToken(inner string) (tokenKind, string, bool) {
	idx := strings.IndexByte(inner, ':')
	if idx <= 0 || idx == len(inner)-1 {
		return tokenKindUnknown, "", false
	}
	kindWord := inner[:idx]
	name := inner[idx+1:]
	if !isTokenWord(kindWord) || !isTokenWord(name) {
		return tokenKindUnknown, "", false
	}
	switch kindWord {
	case "MODE":
		return tokenKindMode, name, true
	case "SIGNAL":
		return tokenKindSignal, name, true
	default:
		// Token-shaped but with an unknown kind; strip and warn.
		return tokenKindUnknown, name, true
	}
}

func isTokenWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

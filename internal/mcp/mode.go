// Package mcp gates tool calls to the internal MCP bridges.
//
// DESIGN: Three independent steps per request, each testable on its own:
//   - Authenticator: who is calling (admin bearer, standard bearer, session)
//   - Policy:        may this caller run this tool in this mode
//   - Service:       talk to the bridge for the mode (status, tools, call)
//
// Bridge calls are never retried; tool calls may have side effects.
package mcp

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/legalchat/auth-gateway/internal/config"
)

// Modes lists the known modes in status order.
var Modes = []string{config.ModeDeepResearch, config.ModePruefungsmodus}

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

var separators = strings.NewReplacer(" ", "-", "_", "-")

// NormalizeMode maps user spellings ("Prüfungs Modus", "deep_research",
// "DeepResearch") to a known mode key, or "" when unknown.
func NormalizeMode(value string) string {
	s := norm.NFC.String(strings.ToLower(strings.TrimSpace(value)))
	if s == "" {
		return ""
	}
	s = collapseDashes(separators.Replace(s))
	s = umlauts.Replace(s)
	s = stripMarks(s)

	switch s {
	case "deepresearch", "deep-research":
		return config.ModeDeepResearch
	case "pruefungs-modus", "pruefungsmodus":
		return config.ModePruefungsmodus
	}
	return ""
}

func collapseDashes(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

// stripMarks removes any remaining combining diacritics.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

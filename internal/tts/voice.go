// Package tts - voice.go maps OpenAI voice names onto the secondary backend's voices.
//
// DESIGN: The secondary backend receives the primary payload with only
// options.voice rewritten; every other field passes through byte for byte.
// Resolution order:
//  1. explicit map for the eleven OpenAI voices (case-insensitive)
//  2. a locale default from the first two letters of options.locale
//  3. the configured default voice
package tts

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// VoiceMap maps OpenAI voice names to Edge neural voices.
var VoiceMap = map[string]string{
	"alloy":   "en-US-JennyNeural",
	"ash":     "en-US-GuyNeural",
	"ballad":  "en-US-AriaNeural",
	"coral":   "en-US-AnaNeural",
	"echo":    "en-US-EricNeural",
	"fable":   "en-US-ChristopherNeural",
	"nova":    "en-US-MichelleNeural",
	"onyx":    "en-US-SteffanNeural",
	"sage":    "en-US-RogerNeural",
	"shimmer": "en-US-JennyNeural",
	"verse":   "en-US-AriaNeural",
}

var localeVoices = []struct {
	prefix string
	voice  string
}{
	{"de", "de-DE-KatjaNeural"},
	{"fr", "fr-FR-DeniseNeural"},
	{"es", "es-ES-ElviraNeural"},
	{"ja", "ja-JP-NanamiNeural"},
	{"zh", "zh-CN-XiaoxiaoNeural"},
}

// LocaleDefaultVoice picks a voice for locale, falling back to fallback.
func LocaleDefaultVoice(locale, fallback string) string {
	lower := strings.ToLower(locale)
	for _, lv := range localeVoices {
		if strings.HasPrefix(lower, lv.prefix) {
			return lv.voice
		}
	}
	return fallback
}

// MapVoice resolves the secondary voice for an OpenAI voice and locale.
func MapVoice(locale, voice, fallback string) string {
	if v, ok := VoiceMap[strings.ToLower(voice)]; ok {
		return v
	}
	return LocaleDefaultVoice(locale, fallback)
}

// EdgePayload rewrites options.voice in an OpenAI TTS payload. Bodies that are
// not JSON objects are returned unchanged.
func EdgePayload(body []byte, fallback string) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return body
	}

	options := root.Get("options")
	out := body
	if options.Exists() && !options.IsObject() {
		var err error
		if out, err = sjson.SetRawBytes(out, "options", []byte("{}")); err != nil {
			return body
		}
		options = gjson.Result{}
	}

	var locale, voice string
	if v := options.Get("locale"); v.Type == gjson.String {
		locale = v.Str
	}
	if v := options.Get("voice"); v.Type == gjson.String {
		voice = v.Str
	}

	out, err := sjson.SetBytes(out, "options.voice", MapVoice(locale, voice, fallback))
	if err != nil {
		return body
	}
	return out
}

// payloadInput returns the string input and locale of a TTS payload.
func payloadInput(body []byte) (input, locale string, ok bool) {
	if !gjson.ValidBytes(body) {
		return "", "", false
	}
	in := gjson.GetBytes(body, "input")
	if in.Type != gjson.String {
		return "", "", false
	}
	if l := gjson.GetBytes(body, "options.locale"); l.Type == gjson.String {
		locale = l.Str
	}
	return in.Str, locale, true
}

package branding

import (
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Identity provider theme colors.
const (
	PrimaryColor     = "#4EA1FF"
	DarkPrimaryColor = "#7F7BFF"
)

const ssrMarker = "window.logtoSsr = Object.freeze("

var (
	registerPath   = regexp.MustCompile(`(?i)^/register(?:/|$)`)
	emptyTitle     = regexp.MustCompile(`(?i)<title>\s*</title>`)
	logtoPagePath  = regexp.MustCompile(`^/(?:sign-in|sign-up|signup|sign_in|register|create-account|unknown-session|reset-password|forgot-password|oidc/auth)`)
	appAuthPath    = regexp.MustCompile(`^/(?:api/auth|next-auth)(?:/|$)`)
	legacySignUp   = regexp.MustCompile(`^/sign-up/?$`)
	unknownSession = regexp.MustCompile(`^/unknown-session(?:/|$)`)
)

// jsonEscaper keeps a JSON document safe inside an inline <script>. The
// characters only occur inside string literals, so the escapes are lossless.
var jsonEscaper = strings.NewReplacer(
	"<", `\u003c`,
	">", `\u003e`,
	"&", `\u0026`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// LogtoOptions configures the identity provider rewrites.
type LogtoOptions struct {
	AppName string
	LogoURL string
	Version string
}

// IsLogtoPage reports whether a request on the branded host renders an HTML page.
func IsLogtoPage(method, path string) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	return path == "/" || logtoPagePath.MatchString(path)
}

// PatchLogto rewrites the SSR sign-in experience embedded in a Logto page.
// The document is returned unchanged when the payload is missing or malformed.
func PatchLogto(doc, path string, opts LogtoOptions) string {
	start, end, ok := ssrRange(doc)
	if !ok {
		return doc
	}
	payload := []byte(doc[start:end])
	if !gjson.ValidBytes(payload) || !gjson.GetBytes(payload, "signInExperience.data").IsObject() {
		return doc
	}

	logo := WithVersion(opts.LogoURL, opts.Version)
	var err error
	for _, obj := range []string{"color", "branding"} {
		if !gjson.GetBytes(payload, "signInExperience.data."+obj).IsObject() {
			if payload, err = sjson.SetRawBytes(payload, "signInExperience.data."+obj, []byte("{}")); err != nil {
				return doc
			}
		}
	}
	edits := []edit{
		{"signInExperience.data.color.primaryColor", PrimaryColor},
		{"signInExperience.data.color.darkPrimaryColor", DarkPrimaryColor},
		{"signInExperience.data.color.isDarkModeEnabled", true},
		{"signInExperience.data.branding.logoUrl", logo},
		{"signInExperience.data.branding.darkLogoUrl", logo},
		{"signInExperience.data.hideLogtoBranding", true},
	}
	if registerPath.MatchString(path) {
		// Logto reports SignIn on /register and the SPA would bounce to /sign-in.
		edits = append(edits, edit{"signInExperience.data.signInMode", "SignUp"})
	}
	for _, e := range edits {
		if payload, err = sjson.SetBytes(payload, e.path, e.value); err != nil {
			return doc
		}
	}

	out := doc[:start] + jsonEscaper.Replace(string(payload)) + doc[end:]
	return emptyTitle.ReplaceAllLiteralString(out, "<title>"+html.EscapeString(opts.AppName)+" Anmeldung</title>")
}

type edit struct {
	path  string
	value any
}

// ssrRange locates the object literal passed to Object.freeze by brace matching
// outside of string literals.
func ssrRange(doc string) (int, int, bool) {
	i := strings.Index(doc, ssrMarker)
	if i == -1 {
		return 0, 0, false
	}
	i += len(ssrMarker)
	for i < len(doc) && isSpace(doc[i]) {
		i++
	}
	if i >= len(doc) || doc[i] != '{' {
		return 0, 0, false
	}

	start := i
	depth := 0
	inString, escaped := false, false
	for ; i < len(doc); i++ {
		ch := doc[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return 0, 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// =============================================================================
// REDIRECTS
// =============================================================================

// LogtoRedirect returns the redirect for a GET on the branded identity provider
// host, or "" when the request should be proxied.
//   - /api/auth*, /next-auth*: back to the app origin, same URI
//   - /sign-up without interaction params: /register with app_id
//   - /, /login, /unknown-session*: /sign-in with app_id
func LogtoRedirect(r *http.Request, appOrigin, clientID string) string {
	if r.Method != http.MethodGet {
		return ""
	}
	path := r.URL.Path
	query := r.URL.Query()

	if appAuthPath.MatchString(path) {
		return strings.TrimRight(appOrigin, "/") + r.URL.RequestURI()
	}

	appID := query.Get("app_id")
	if appID == "" {
		appID = clientID
	}

	if !hasInteraction(query) && legacySignUp.MatchString(path) {
		target := url.Values{}
		for k, vs := range query {
			target.Set(k, vs[len(vs)-1])
		}
		if appID != "" && !target.Has("app_id") {
			target.Set("app_id", appID)
		}
		if len(target) == 0 {
			return "/register"
		}
		return "/register?" + target.Encode()
	}

	if path == "/" || path == "/login" || unknownSession.MatchString(path) {
		if appID == "" {
			return "/sign-in"
		}
		return "/sign-in?app_id=" + url.QueryEscape(appID)
	}
	return ""
}

func hasInteraction(q url.Values) bool {
	for _, k := range []string{"interaction", "interaction_id", "flow", "ticket"} {
		if q.Has(k) {
			return true
		}
	}
	return false
}

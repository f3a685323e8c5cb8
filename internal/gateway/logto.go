// Package gateway - logto.go serves the branded identity provider host.
//
// DESIGN: Requests whose public host is a configured branding host never reach
// the chat app. Entry points are redirected to the right sign-in or register
// page first; everything else streams to the identity provider, and its SSR
// sign-in pages get the LegalChat name, logo and colors.
package gateway

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/legalchat/auth-gateway/internal/branding"
)

func (g *Gateway) handleLogto(w http.ResponseWriter, r *http.Request) {
	if location := branding.LogtoRedirect(r, g.appOrigin, g.cfg.Auth.ClientID); location != "" {
		setDetail(r, "redirect")
		redirect(w, location)
		return
	}
	if branding.IsLogtoPage(r.Method, r.URL.Path) {
		r.Header.Set("Accept-Encoding", "identity")
	}
	g.logtoProxy.ServeHTTP(w, r)
}

func (g *Gateway) modifyLogtoResponse(resp *http.Response) error {
	req := resp.Request
	g.rewriter.RewriteHeader(resp.Header, req)

	if !branding.IsLogtoPage(req.Method, req.URL.Path) {
		return nil
	}
	branding.SetNoStore(resp.Header)
	if req.Method != http.MethodGet || !isHTMLResponse(resp.Header) {
		return nil
	}

	doc, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	patched := branding.PatchLogto(string(doc), req.URL.Path, branding.LogtoOptions{
		AppName: g.cfg.Branding.AppName,
		LogoURL: g.cfg.Branding.LogoURL,
		Version: g.cfg.Branding.Version,
	})
	replaceBody(resp, []byte(patched))
	log.Info().Str("path", req.URL.Path).Msg("Logto branding injected")
	return nil
}

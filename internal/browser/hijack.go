package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// consentScriptHosts are CMP and consent-banner vendors whose scripts get
// blackholed before they load.
var consentScriptHosts = []string{
	"cookiebot.com",
	"consent.cookiebot.com",
	"onetrust.com",
	"cdn.cookielaw.org",
	"trustarc.com",
	"consensu.org",
	"didomi.io",
	"usercentrics.eu",
	"cookieyes.com",
	"iubenda.com",
	"quantcast.com",
	"cookie-script.com",
	"osano.com",
	"termly.io",
}

// blockableTypes maps the config vocabulary to CDP resource types.
var blockableTypes = map[string]proto.NetworkResourceType{
	"image":      proto.NetworkResourceTypeImage,
	"font":       proto.NetworkResourceTypeFont,
	"stylesheet": proto.NetworkResourceTypeStylesheet,
	"media":      proto.NetworkResourceTypeMedia,
}

// installHijack wires resource blocking, consent-script blackholing and
// third-party Set-Cookie stripping onto the page.
func (m *Manager) installHijack(page *rod.Page, pageURL string) error {
	blocked := make(map[proto.NetworkResourceType]bool)
	for _, name := range m.cfg.BlockedResources {
		if t, ok := blockableTypes[strings.ToLower(name)]; ok {
			blocked[t] = true
		}
	}
	firstPartyHost := hostOf(pageURL)

	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if m.cfg.CookieControl.BlockConsentScripts && isConsentScript(h.Request.URL().Host) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		h.MustLoadResponse()

		if m.cfg.CookieControl.StripThirdPartySetCookie &&
			isThirdParty(h.Request.URL().Host, firstPartyHost) {
			payload := h.Response.Payload()
			payload.ResponseHeaders = stripSetCookie(payload.ResponseHeaders)
		}
	})
	if err != nil {
		return err
	}
	go router.Run()
	m.log.Debug("hijack router installed", zap.Int("blocked_types", len(blocked)))
	return nil
}

func isConsentScript(host string) bool {
	lower := strings.ToLower(host)
	for _, h := range consentScriptHosts {
		if lower == h || strings.HasSuffix(lower, "."+h) {
			return true
		}
	}
	return false
}

// isThirdParty compares registrable-ish suffixes rather than exact hosts so
// www.example.co.jp and example.co.jp stay first-party.
func isThirdParty(host, firstParty string) bool {
	if host == "" || firstParty == "" {
		return false
	}
	host = strings.ToLower(host)
	firstParty = strings.ToLower(firstParty)
	return host != firstParty &&
		!strings.HasSuffix(host, "."+firstParty) &&
		!strings.HasSuffix(firstParty, "."+host)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// stripSetCookie drops Set-Cookie entries from a fulfill payload's headers.
func stripSetCookie(headers []*proto.FetchHeaderEntry) []*proto.FetchHeaderEntry {
	out := headers[:0]
	for _, h := range headers {
		if strings.EqualFold(h.Name, "set-cookie") {
			continue
		}
		out = append(out, h)
	}
	return out
}

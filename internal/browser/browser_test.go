package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestResolveHeadless(t *testing.T) {
	assert.True(t, resolveHeadless("true", ":0"))
	assert.False(t, resolveHeadless("false", ""))
	assert.True(t, resolveHeadless("auto", ""))
	assert.False(t, resolveHeadless("auto", ":0"))
	assert.True(t, resolveHeadless("", ""))
}

func TestIsConsentScript(t *testing.T) {
	assert.True(t, isConsentScript("consent.cookiebot.com"))
	assert.True(t, isConsentScript("cdn.cookielaw.org"))
	assert.True(t, isConsentScript("sub.didomi.io"))
	assert.False(t, isConsentScript("example.co.jp"))
	assert.False(t, isConsentScript("cookiebot.com.evil.example"))
}

func TestIsThirdParty(t *testing.T) {
	assert.False(t, isThirdParty("www.example.co.jp", "example.co.jp"))
	assert.False(t, isThirdParty("example.co.jp", "www.example.co.jp"))
	assert.False(t, isThirdParty("example.co.jp", "example.co.jp"))
	assert.True(t, isThirdParty("tracker.example.net", "example.co.jp"))
	assert.False(t, isThirdParty("", "example.co.jp"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "www.example.co.jp", hostOf("https://WWW.Example.co.jp/contact?x=1"))
	assert.Equal(t, "", hostOf("://bad"))
}

func TestStripSetCookie(t *testing.T) {
	in := []*proto.FetchHeaderEntry{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
		{Name: "Cache-Control", Value: "no-store"},
	}
	out := stripSetCookie(in)
	assert.Len(t, out, 2)
	for _, h := range out {
		assert.NotEqual(t, "set-cookie", h.Name)
		assert.NotEqual(t, "Set-Cookie", h.Name)
	}
}

func TestRecorderBuckets(t *testing.T) {
	r := &Recorder{}
	r.record(200, "https://a.example/")
	r.record(302, "https://a.example/redirect")
	r.record(404, "https://a.example/missing")
	r.record(500, "https://a.example/boom")
	r.record(200, "https://a.example/thanks")

	h := r.Snapshot()
	assert.Equal(t, 1, h.Status3xx)
	assert.Equal(t, 1, h.Status4xx)
	assert.Equal(t, 1, h.Status5xx)
	assert.Equal(t, []string{"https://a.example/redirect"}, h.RedirectURLs)
	assert.Equal(t, 200, h.FinalStatus)
}

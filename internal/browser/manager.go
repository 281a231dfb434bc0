// Package browser owns the worker's Chrome instance: one process-attached
// browser, one long-lived incognito context, and the page hygiene between
// companies (cookie clearing, resource blocking, the consent blackhole).
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"formrunner/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Manager drives a single browser for one worker. The incognito context is
// long-lived; Recreate replaces it atomically when a page becomes unhealthy.
type Manager struct {
	cfg config.BrowserConfig
	log *zap.Logger

	mu        sync.Mutex
	browser   *rod.Browser
	incognito *rod.Browser
	cleanup   func()
}

func NewManager(cfg config.BrowserConfig, log *zap.Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// Start launches Chrome and opens the incognito context. Idempotent while
// the browser stays healthy.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, relaunching")
		m.closeLocked()
	}

	l := launcher.New().
		Headless(resolveHeadless(m.cfg.Headless, os.Getenv("DISPLAY"))).
		Set("lang", m.cfg.Locale).
		Set("disable-blink-features", "AutomationControlled")
	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(url).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	inc, err := b.Incognito()
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return fmt.Errorf("incognito context: %w", err)
	}

	m.browser = b
	m.incognito = inc
	m.cleanup = l.Cleanup
	m.log.Info("browser started", zap.Bool("headless", resolveHeadless(m.cfg.Headless, os.Getenv("DISPLAY"))))
	return nil
}

// Recreate tears down the incognito context and builds a fresh one. Used
// after a hard timeout or a crashed renderer.
func (m *Manager) Recreate(ctx context.Context) error {
	m.mu.Lock()
	m.closeLocked()
	m.mu.Unlock()
	return m.Start(ctx)
}

// OpenPage creates the per-company page: viewport, UA and locale overrides,
// stealth script, the hijack router, and a response history recorder.
func (m *Manager) OpenPage(ctx context.Context, url string, timeout time.Duration) (*rod.Page, *Recorder, error) {
	m.mu.Lock()
	inc := m.incognito
	m.mu.Unlock()
	if inc == nil {
		return nil, nil, fmt.Errorf("browser not started")
	}

	page, err := inc.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width: 1366, Height: 900, DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		m.log.Debug("viewport override failed", zap.Error(err))
	}
	_ = proto.EmulationSetTimezoneOverride{TimezoneID: m.cfg.Timezone}.Call(page)
	_ = proto.EmulationSetLocaleOverride{Locale: m.cfg.Locale}.Call(page)

	ua := m.cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	_ = proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: m.cfg.AcceptLanguage,
	}.Call(page)

	// Stealth must land before any page script runs, and only once per page.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		m.log.Debug("stealth injection failed", zap.Error(err))
	}
	if m.cfg.CookieControl.OverrideDocumentCookie {
		if _, err := page.EvalOnNewDocument(documentCookieOverrideJS); err != nil {
			m.log.Debug("document.cookie override failed", zap.Error(err))
		}
	}

	if err := m.installHijack(page, url); err != nil {
		_ = page.Close()
		return nil, nil, err
	}

	rec := newRecorder(ctx, page)

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		rec.Stop()
		_ = page.Close()
		return nil, nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		m.log.Debug("load wait expired, continuing", zap.String("url", url))
	}

	m.rejectBanners(ctx, page)
	return page, rec, nil
}

// ClearCookies wipes the incognito context between companies.
func (m *Manager) ClearCookies() error {
	m.mu.Lock()
	inc := m.incognito
	m.mu.Unlock()
	if inc == nil {
		return nil
	}
	return proto.StorageClearCookies{BrowserContextID: inc.BrowserContextID}.Call(inc)
}

// Shutdown closes the context, browser and launcher.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.incognito != nil {
		_ = m.incognito.Close()
		m.incognito = nil
	}
	if m.browser != nil {
		_ = m.browser.Close()
		m.browser = nil
	}
	if m.cleanup != nil {
		m.cleanup()
		m.cleanup = nil
	}
}

// resolveHeadless maps the three-valued config knob. "auto" is headless
// unless a display is attached.
func resolveHeadless(mode, display string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	default:
		return display == ""
	}
}

// rejectBanners clicks common consent-banner reject buttons within a short
// bounded window so a late banner cannot cover the form.
func (m *Manager) rejectBanners(ctx context.Context, page *rod.Page) {
	window := time.Duration(m.cfg.CookieControl.BannerRejectWindowMs) * time.Millisecond
	if window <= 0 {
		return
	}
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS:      bannerRejectJS,
			ByValue: true,
		})
		if err == nil && res.Value.Bool() {
			m.log.Debug("consent banner rejected")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
	}
}

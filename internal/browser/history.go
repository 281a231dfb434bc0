package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"formrunner/internal/judge"
)

const maxRedirectURLs = 20

// Recorder accumulates HTTP response statuses for one page so the judge can
// weigh redirects and server errors after submit.
type Recorder struct {
	mu      sync.Mutex
	history judge.ResponseHistory
	stop    context.CancelFunc
}

// newRecorder starts listening for document and XHR responses on the page.
func newRecorder(ctx context.Context, page *rod.Page) *Recorder {
	ctx, cancel := context.WithCancel(ctx)
	r := &Recorder{stop: cancel}

	go page.Context(ctx).EachEvent(func(ev *proto.NetworkResponseReceived) {
		if ev.Type != proto.NetworkResourceTypeDocument && ev.Type != proto.NetworkResourceTypeXHR {
			return
		}
		r.record(ev.Response.Status, ev.Response.URL)
	})()
	return r
}

func (r *Recorder) record(status int, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case status >= 500:
		r.history.Status5xx++
	case status >= 400:
		r.history.Status4xx++
	case status >= 300:
		r.history.Status3xx++
		if len(r.history.RedirectURLs) < maxRedirectURLs {
			r.history.RedirectURLs = append(r.history.RedirectURLs, url)
		}
	}
	r.history.FinalStatus = status
}

// Snapshot returns a copy of the accumulated history.
func (r *Recorder) Snapshot() judge.ResponseHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history
	h.RedirectURLs = append([]string(nil), r.history.RedirectURLs...)
	return h
}

// Stop detaches the event listener.
func (r *Recorder) Stop() {
	if r.stop != nil {
		r.stop()
	}
}

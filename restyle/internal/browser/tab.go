package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// OpenPage creates a stealth tab, applies resource blocking and navigates
// to pageURL. A load timeout is logged, not returned: dashboards often keep
// long-polling connections open.
func (m *Manager) OpenPage(ctx context.Context, pageURL string) (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(m.cfg.BlockResources) > 0 {
		blockResources(page, m.cfg.BlockResources)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return page, nil
}

// blockResources fails requests whose resource type is listed. Styles are
// never blocked: the reconciler only supplements the page's stylesheets.
func blockResources(page *rod.Page, types []string) {
	block := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		if rt, ok := resourceType(t); ok {
			block[rt] = true
		}
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func resourceType(name string) (proto.NetworkResourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "images", "image":
		return proto.NetworkResourceTypeImage, true
	case "fonts", "font":
		return proto.NetworkResourceTypeFont, true
	case "media":
		return proto.NetworkResourceTypeMedia, true
	}
	return "", false
}

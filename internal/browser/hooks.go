package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
)

// Hook runs on a fresh tab before navigation. A non-nil cleanup runs after
// the page has been read. An error fails the visit.
type Hook func(ctx context.Context, page *rod.Page, visit *fetch.Visit) (cleanup func(), err error)

// DefaultHooks returns the pre-navigation hooks in the order they must run.
func DefaultHooks() []Hook {
	return []Hook{CookieHook, BlockResourcesHook}
}

// CookieHook sets the visit cookies scoped to the request URL.
func CookieHook(ctx context.Context, page *rod.Page, visit *fetch.Visit) (func(), error) {
	if len(visit.Cookies) == 0 {
		return nil, nil
	}
	if err := page.SetCookies(cookieParams(visit.URL, visit.Cookies)); err != nil {
		return nil, fmt.Errorf("set cookies: %w", err)
	}
	return nil, nil
}

// BlockResourcesHook aborts every request whose path extension is in the
// visit's exclusion list: sub-resources, frames and redirected navigations.
func BlockResourcesHook(ctx context.Context, page *rod.Page, visit *fetch.Visit) (func(), error) {
	if len(visit.BlockedExtensions) == 0 {
		return nil, nil
	}

	exts := append([]string(nil), visit.BlockedExtensions...)
	router := page.HijackRequests()
	err := router.Add("*", "", func(hijack *rod.Hijack) {
		if fetch.BlockedExtension(hijack.Request.URL().String(), exts) {
			hijack.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		hijack.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("install request router: %w", err)
	}

	go router.Run()
	return func() { _ = router.Stop() }, nil
}

func cookieParams(requestURL string, cookies []fetch.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   requestURL,
		})
	}
	return params
}

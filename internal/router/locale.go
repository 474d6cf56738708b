package router

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/vyrodovalexey/avaroute/internal/config"
)

// foldCase applies Unicode case folding. A Caser is stateful, so one is made
// per call.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// resolveLocale picks a redirect target from the locale cookie, falling
// back to the first Accept-Language entry. Quality weights are ignored.
func resolveLocale(cfg *config.LocaleConfig, mc *MatchContext) (string, bool) {
	if cfg == nil || len(cfg.Redirect) == 0 {
		return "", false
	}

	if cfg.Cookie != "" {
		want := foldCase(cfg.Cookie)
		for name, value := range mc.Cookies() {
			if foldCase(name) != want {
				continue
			}
			if target, ok := lookupLocale(cfg.Redirect, value); ok {
				return target, true
			}
			break
		}
	}

	accept := mc.Header.Get("Accept-Language")
	if accept == "" {
		return "", false
	}
	first, _, _ := strings.Cut(accept, ",")
	first, _, _ = strings.Cut(first, ";")
	return lookupLocale(cfg.Redirect, strings.TrimSpace(first))
}

func lookupLocale(redirects map[string]string, locale string) (string, bool) {
	if locale == "" {
		return "", false
	}
	if target, ok := redirects[locale]; ok {
		return target, true
	}
	want := foldCase(locale)
	for k, target := range redirects {
		if foldCase(k) == want {
			return target, true
		}
	}
	return "", false
}

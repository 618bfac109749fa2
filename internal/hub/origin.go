package hub

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

type originPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
	sugar    *zap.SugaredLogger
}

func newOriginPolicy(origins []string, sugar *zap.SugaredLogger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}), sugar: sugar}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			sugar.Warnf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is the upgrader's CheckOrigin. Without configured origins only
// same-host requests and clients that send no Origin (non-browsers) pass.
func (p *originPolicy) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" || p.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if len(p.allowed) == 0 {
		parsed, _ := url.Parse(normalized)
		if strings.EqualFold(parsed.Host, r.Host) {
			return true
		}
	} else if _, exists := p.allowed[normalized]; exists {
		return true
	}

	p.sugar.Warnf("Blocked WebSocket connection from disallowed origin: %q", originHeader)
	return false
}

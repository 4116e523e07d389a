package whitelist

import (
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether poster images may be downloaded from a URL's host
type Checker struct {
	hosts  []string
	logger *zap.Logger
}

// NewChecker creates a new host whitelist checker. An empty list allows every host.
func NewChecker(hosts []string, logger *zap.Logger) *Checker {
	normalized := make([]string, 0, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			normalized = append(normalized, host)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized source host whitelist", zap.Strings("hosts", normalized))
	}

	return &Checker{
		hosts:  normalized,
		logger: logger,
	}
}

// IsAllowed checks whether rawURL is an http(s) URL on a whitelisted host.
// An entry matches the host itself and any of its subdomains.
func (c *Checker) IsAllowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if c == nil || len(c.hosts) == 0 {
		return true
	}

	host := strings.ToLower(u.Hostname())
	for _, allowed := range c.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}

	if c.logger != nil {
		c.logger.Debug("Source host is not whitelisted",
			zap.String("host", host),
			zap.String("url", rawURL))
	}
	return false
}

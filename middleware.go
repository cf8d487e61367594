package scrapy

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OffsiteMiddleWare drops requests for hosts outside the allowed domains.
// Subdomains of an allowed domain are allowed.
type OffsiteMiddleWare struct {
	allowedDomains []string
}

func NewOffsiteMiddleWare(allowedDomains ...string) *OffsiteMiddleWare {
	domains := make([]string, 0, len(allowedDomains))
	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	return &OffsiteMiddleWare{allowedDomains: domains}
}

func (m *OffsiteMiddleWare) Allowed(host string) bool {
	if len(m.allowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, domain := range m.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (m *OffsiteMiddleWare) ProcessRequest(r *Request) (*Request, *Response, error) {
	if !m.Allowed(r.HttpRequest.URL.Hostname()) {
		logrus.Debugf("Filtered offsite request to %s", r.HttpRequest.URL.Host)
		return nil, nil, IgnoreRequest
	}
	return nil, nil, nil
}

func (m *OffsiteMiddleWare) ProcessResponse(resp *Response) (*Request, *Response, error) {
	return nil, nil, nil
}

package usecase

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/diysmart/productinfo/internal/domain"
)

// Classification is what the URL classifier learns about an input URL
type Classification struct {
	Merchant      domain.Merchant
	CanonicalHost string
	// PreservedURL is the input, byte for byte
	PreservedURL string
	// ShortLink is set for redirecting hosts such as amzn.to
	ShortLink bool
	URL       *url.URL
}

// shortLinkHosts maps redirect services onto the merchant they resolve to
var shortLinkHosts = map[string]domain.Merchant{
	"amzn.to":     domain.MerchantAmazon,
	"amzn.com":    domain.MerchantAmazon,
	"a.co":        domain.MerchantAmazon,
	"bit.ly":      domain.MerchantOther,
	"t.co":        domain.MerchantOther,
	"tinyurl.com": domain.MerchantOther,
	"goo.gl":      domain.MerchantOther,
}

var merchantDomains = []struct {
	domain   string
	merchant domain.Merchant
}{
	{"homedepot.com", domain.MerchantHomeDepot},
	{"lowes.com", domain.MerchantLowes},
	{"walmart.com", domain.MerchantWalmart},
}

// ClassifyURL identifies the merchant behind raw. It never rewrites the URL.
func ClassifyURL(raw string) (*Classification, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty URL", domain.ErrMalformedURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing scheme or host in %q", domain.ErrMalformedURL, raw)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	canonical := strings.TrimPrefix(host, "www.")

	c := &Classification{
		Merchant:      domain.MerchantOther,
		CanonicalHost: canonical,
		PreservedURL:  raw,
		URL:           u,
	}

	if m, ok := shortLinkHosts[canonical]; ok {
		c.Merchant = m
		c.ShortLink = true
		return c, nil
	}
	if isAmazonHost(canonical) {
		c.Merchant = domain.MerchantAmazon
		return c, nil
	}
	for _, md := range merchantDomains {
		if canonical == md.domain || strings.HasSuffix(canonical, "."+md.domain) {
			c.Merchant = md.merchant
			return c, nil
		}
	}
	return c, nil
}

// isAmazonHost matches amazon.<tld> and its subdomains, e.g. smile.amazon.co.uk
func isAmazonHost(host string) bool {
	labels := strings.Split(host, ".")
	for i, l := range labels {
		if l == "amazon" && i < len(labels)-1 {
			return true
		}
	}
	return false
}

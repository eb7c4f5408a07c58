package storage

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// CookieTier keeps session facts as cookies scoped to the API origin. The
// underlying jar is shared with the HTTP client so the backend sees the
// same cookies a browser would send.
type CookieTier struct {
	jar    *cookiejar.Jar
	origin *url.URL
	secure bool
}

func NewCookieTier(baseURL string) (*CookieTier, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse cookie origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("cookie origin %q must be an absolute URL", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &CookieTier{
		jar:    jar,
		origin: &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/"},
		secure: parsed.Scheme == "https",
	}, nil
}

func (c *CookieTier) Jar() http.CookieJar {
	return c.jar
}

func (c *CookieTier) Get(name string) (string, bool, error) {
	for _, cookie := range c.jar.Cookies(c.origin) {
		if cookie.Name != name {
			continue
		}

		value, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			return "", false, fmt.Errorf("decode cookie %q: %w", name, err)
		}
		return value, true, nil
	}

	return "", false, nil
}

func (c *CookieTier) Set(name string, value string, expires time.Time) error {
	if name == "" {
		return ErrEmptyKey
	}

	cookie := &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires
	}

	c.jar.SetCookies(c.origin, []*http.Cookie{cookie})
	return nil
}

func (c *CookieTier) Delete(name string) error {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:   name,
		Path:   "/",
		MaxAge: -1,
	}})
	return nil
}

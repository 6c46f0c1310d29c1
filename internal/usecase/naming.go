package usecase

import (
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/semmidev/sitekeep/internal/domain"
)

const (
	DefaultNamePattern = "site-{YYYY}{MM}{DD}-{HH}{mm}{SS}"
	fallbackName       = "backup"
)

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	slugChars   = regexp.MustCompile(`[^a-z0-9]+`)
)

const randAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randToken is replaced in tests.
var randToken = func(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randAlphabet[rand.Intn(len(randAlphabet))]
	}
	return string(b)
}

// RenderName substitutes naming tokens and reduces the result to a
// filesystem-safe name. now should already be in the site timezone.
func RenderName(pattern string, site domain.Site, now time.Time) string {
	if pattern == "" {
		pattern = DefaultNamePattern
	}

	ver := site.AppVersion
	if ver == "" {
		ver = "0"
	}

	r := strings.NewReplacer(
		"{YYYY}", now.Format("2006"),
		"{YY}", now.Format("06"),
		"{MM}", now.Format("01"),
		"{DD}", now.Format("02"),
		"{HH}", now.Format("15"),
		"{mm}", now.Format("04"),
		"{SS}", now.Format("05"),
		"{site}", slugify(site.Name),
		"{ver}", ver,
		"{rand4}", randToken(4),
		"{rand6}", randToken(6),
	)

	return Sanitize(r.Replace(pattern))
}

// Sanitize maps a string onto [A-Za-z0-9._-], trims separators and falls
// back to "backup" when nothing is left.
func Sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-._")
	if s == "" {
		return fallbackName
	}
	return s
}

func slugify(name string) string {
	s := slugChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "site"
	}
	return s
}

package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/tendant/simple-social-auth/pkg/domain"
	"golang.org/x/text/language"
)

// Languages is the set of UI languages a user may pick.
type Languages struct {
	tags    []language.Tag
	matcher language.Matcher
}

// NewLanguages parses codes; the first one is the fallback.
func NewLanguages(codes []string) (*Languages, error) {
	var tags []language.Tag
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", code, err)
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		tags = []language.Tag{language.English}
	}
	return &Languages{tags: tags, matcher: language.NewMatcher(tags)}, nil
}

// Default returns the fallback language code.
func (l *Languages) Default() string {
	return l.tags[0].String()
}

// Codes lists the configured language codes.
func (l *Languages) Codes() []string {
	codes := make([]string, len(l.tags))
	for i, t := range l.tags {
		codes[i] = t.String()
	}
	return codes
}

// FromAcceptLanguage picks the best configured language for an
// Accept-Language header value.
func (l *Languages) FromAcceptLanguage(header string) string {
	desired, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(desired) == 0 {
		return l.Default()
	}
	_, idx, conf := l.matcher.Match(desired...)
	if conf == language.No {
		return l.Default()
	}
	return l.tags[idx].String()
}

// Lookup returns the canonical code when code names a configured language.
func (l *Languages) Lookup(code string) (string, bool) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return "", false
	}
	for _, t := range l.tags {
		if t == tag {
			return t.String(), true
		}
	}
	return "", false
}

// LanguageHook sets a new lazy user's language from the request.
func LanguageHook(l *Languages) LazyUserHook {
	return func(ctx context.Context, user *domain.User, opts LazyUserOptions) error {
		user.Language = l.FromAcceptLanguage(opts.AcceptLanguage)
		return nil
	}
}

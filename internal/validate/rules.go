package validate

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/petrijr/stepwise/pkg/api"
)

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Required fails on missing, blank or empty-list values.
func Required() api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		if !(api.Values{"v": v}).Has("v") {
			return api.CodeRequired
		}
		return ""
	}
}

// MinLen fails when the trimmed string has fewer than n runes.
func MinLen(n int) api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		if utf8.RuneCountInString(asString(v)) < n {
			return api.CodeTooShort
		}
		return ""
	}
}

// MaxLen fails when the trimmed string has more than n runes.
func MaxLen(n int) api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		if utf8.RuneCountInString(asString(v)) > n {
			return api.CodeTooLong
		}
		return ""
	}
}

// Pattern fails when the trimmed string does not match re.
func Pattern(re *regexp.Regexp) api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		if !re.MatchString(asString(v)) {
			return api.CodeInvalidFormat
		}
		return ""
	}
}

// OneOf fails when the trimmed string is not one of options.
func OneOf(options ...string) api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		s := asString(v)
		for _, o := range options {
			if s == o {
				return ""
			}
		}
		return api.CodeInvalidOption
	}
}

// RFC3339 fails when the value is not an RFC 3339 timestamp.
func RFC3339() api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		if _, err := time.Parse(time.RFC3339, asString(v)); err != nil {
			return api.CodeInvalidFormat
		}
		return ""
	}
}

// NonEmptyList fails when the value is not a list with at least one entry.
func NonEmptyList() api.FieldRule {
	return func(v any, _ api.Values) api.ErrorCode {
		if len((api.Values{"v": v}).Strings("v")) == 0 {
			return api.CodeEmptyList
		}
		return ""
	}
}

// When applies rule only if pred holds for the full value set.
func When(pred func(api.Values) bool, rule api.FieldRule) api.FieldRule {
	return func(v any, all api.Values) api.ErrorCode {
		if !pred(all) {
			return ""
		}
		return rule(v, all)
	}
}

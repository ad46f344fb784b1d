package validator

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

type Numeric interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

func MinLen(field, value string, n int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) >= n },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", n)},
	}
}

func MaxLen(field, value string, n int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= n },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", n)},
	}
}

// Email accepts a bare address with a dotted domain. Display names such as
// "Ayu <ayu@example.com>" are rejected.
func Email(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != strings.TrimSpace(value) {
				return false
			}
			at := strings.LastIndexByte(addr.Address, '@')
			domain := addr.Address[at+1:]
			return at > 0 && strings.Contains(domain, ".") &&
				!strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

func Positive[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool { return value > 0 },
		Error: ValidationError{Field: field, Message: "must be positive"},
	}
}

func Range[T Numeric](field string, value, lo, hi T) Rule {
	return Rule{
		Check: func() bool { return value >= lo && value <= hi },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be between %v and %v", lo, hi)},
	}
}

func OneOf[T comparable](field string, value T, allowed ...T) Rule {
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if a == value {
					return true
				}
			}
			return false
		},
		Error: ValidationError{Field: field, Message: "is not an allowed value"},
	}
}

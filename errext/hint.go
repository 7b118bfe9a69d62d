package errext

import "errors"

// HasHint is implemented by errors carrying advice for the user, such as
// the flag that would fix them.
type HasHint interface {
	error
	Hint() string
}

// WithHint attaches hint to err. A nil err stays nil. Hints already
// present further down the chain are kept, in parentheses after hint.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return hinted{error: err, hint: hint}
}

type hinted struct {
	error
	hint string
}

func (h hinted) Unwrap() error { return h.error }

// Hint implements HasHint.
func (h hinted) Hint() string {
	var inner HasHint
	if !errors.As(h.error, &inner) {
		return h.hint
	}
	return h.hint + " (" + inner.Hint() + ")"
}

var _ HasHint = hinted{}

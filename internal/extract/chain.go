package extract

// Strategy is one fallible extraction attempt.
type Strategy[T any] func() ([]T, error)

// FirstOf runs strategies in order and returns the first non-empty result
// that did not fail. A panicking strategy counts as a failure.
func FirstOf[T any](strategies ...Strategy[T]) []T {
	for _, s := range strategies {
		if s == nil {
			continue
		}
		if out, ok := try(s); ok && len(out) > 0 {
			return out
		}
	}
	return nil
}

// FirstString returns the first non-empty string produced by the strategies.
func FirstString(strategies ...func() (string, error)) string {
	for _, s := range strategies {
		if s == nil {
			continue
		}
		v, ok := tryString(s)
		if ok && v != "" {
			return v
		}
	}
	return ""
}

func try[T any](s Strategy[T]) (out []T, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()
	res, err := s()
	if err != nil {
		return nil, false
	}
	return res, true
}

func tryString(s func() (string, error)) (out string, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = "", false
		}
	}()
	res, err := s()
	if err != nil {
		return "", false
	}
	return res, true
}

package engine

import "fmt"

// Kind tags what a sort level is used for. It selects the default buffer
// profile.
type Kind int

const (
	// KindMain sorts the terms of a whole expression.
	KindMain Kind = iota
	// KindFunction sorts the arguments of a function. Many of these can be
	// open at once, so their buffers are small.
	KindFunction
	// KindSub is a nested sort inside a running one.
	KindSub
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindFunction:
		return "function"
	case KindSub:
		return "sub"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the names printed by String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "main", "":
		return KindMain, nil
	case "function", "fun":
		return KindFunction, nil
	case "sub":
		return KindSub, nil
	default:
		return 0, fmt.Errorf("%w: unknown sort kind %q", ErrInvalidConfig, s)
	}
}

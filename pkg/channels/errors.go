package channels

import "fmt"

type ErrorKind int

const (
	ErrKindNetwork ErrorKind = iota
	ErrKindUpstreamStatus
	ErrKindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNetwork:
		return "network"
	case ErrKindUpstreamStatus:
		return "upstream_status"
	default:
		return "validation"
	}
}

// APIError classifies a failed upstream interaction. The kind drives log
// output and operator instructions; webhook callers never see it.
type APIError struct {
	Kind ErrorKind
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

package preempt

import (
	"fmt"

	"github.com/me/uthread/pkg/model"
)

// NewSource builds the tick source named by kind. It returns a nil Source
// for model.TickSourceNone.
func NewSource(kind model.TickSource, hz int) (Source, error) {
	switch kind {
	case model.TickSourceNone:
		return nil, nil
	case model.TickSourceTicker, "":
		return NewTicker(hz)
	case model.TickSourceITimer:
		return NewITimer(hz)
	}
	return nil, fmt.Errorf("preempt: unknown tick source %q", kind)
}

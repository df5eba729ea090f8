package events

import (
	"errors"
	"fmt"
)

var ErrMissingEventName = errors.New("domain event without name")

// HandlerError envuelve el fallo de un handler concreto. El registro lo registra
// y lo reporta, pero no lo propaga a la cola.
type HandlerError struct {
	Handler string
	Event   string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed for event %s: %v", e.Handler, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

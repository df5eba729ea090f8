package utils

import (
	"context"
	"errors"
	"time"
)

const DefaultRetryDelay = 100 * time.Millisecond

// Retry ejecuta fn hasta attempts veces. Los errores que coinciden con
// alguno de permanent (errors.Is) se devuelven sin reintentar.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, permanent ...error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		for _, p := range permanent {
			if errors.Is(err, p) {
				return err
			}
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
			// espera antes del siguiente intento
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

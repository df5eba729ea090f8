package utils

// Ternary elige entre dos valores sin un if/else de cuatro líneas, p. ej. el
// estado "ok"/"degraded" del health check.
func Ternary[T any](cond bool, whenTrue, whenFalse T) T {
	if cond {
		return whenTrue
	}
	return whenFalse
}

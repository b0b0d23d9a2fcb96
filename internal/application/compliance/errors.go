package compliance

import (
	"errors"
	"fmt"
)

// ErrJobAlreadyRunning indica que otra instancia tiene el lock del job.
var ErrJobAlreadyRunning = errors.New("el job de reporting ya está en ejecución")

// ErrLeaseLost indica que el lock del job expiró o pasó a otra instancia durante la corrida.
var ErrLeaseLost = errors.New("se perdió el lock del job de reporting")

// ConfigError marca fallos de configuración del tenant o del sistema: son fatales,
// síncronos y no se reintentan.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuración de cumplimiento (%s): %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError indica si err (o alguno de sus envueltos) es un ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

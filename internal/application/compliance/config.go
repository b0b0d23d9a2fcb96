package compliance

import "time"

// Config parámetros del motor de cumplimiento.
type Config struct {
	ReportingWindow time.Duration // ventana legal de reporting B2C
	RequestDelay    time.Duration // pausa entre envíos del job
	JobInterval     time.Duration
	JobLockTTL      time.Duration
	SignMaxAttempts int           // intentos de firma ante conflicto de cadena
	SubmittedGrace  time.Duration // tras esto, un envío sin resultado persistido se reintenta
}

// DefaultConfig valores por defecto.
func DefaultConfig() Config {
	return Config{
		ReportingWindow: 24 * time.Hour,
		RequestDelay:    200 * time.Millisecond,
		JobInterval:     time.Hour,
		JobLockTTL:      30 * time.Minute,
		SignMaxAttempts: 3,
		SubmittedGrace:  15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReportingWindow <= 0 {
		c.ReportingWindow = d.ReportingWindow
	}
	if c.RequestDelay < 0 {
		c.RequestDelay = 0
	}
	if c.JobInterval <= 0 {
		c.JobInterval = d.JobInterval
	}
	if c.JobLockTTL <= 0 {
		c.JobLockTTL = d.JobLockTTL
	}
	if c.SignMaxAttempts <= 0 {
		c.SignMaxAttempts = d.SignMaxAttempts
	}
	if c.SubmittedGrace <= 0 {
		c.SubmittedGrace = d.SubmittedGrace
	}
	return c
}

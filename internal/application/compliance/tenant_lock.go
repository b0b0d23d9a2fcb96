package compliance

import (
	"context"
	"sync"
	"time"
)

// TenantLocks serializa la firma por tenant dentro del proceso. Entre procesos la
// serialización la da la actualización condicional de la cola en la base de datos.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

// NewTenantLocks crea el registro de locks.
func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: map[string]*tenantLock{}}
}

// Lock bloquea el tenant y devuelve la función de liberación.
func (l *TenantLocks) Lock(tenantID string) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.locks[tenantID]
	if !ok {
		tl = &tenantLock{}
		l.locks[tenantID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tenantID)
		}
		l.mu.Unlock()
	}
}

// LocalJobLocker implementa JobLocker dentro de un solo proceso.
type LocalJobLocker struct {
	mu sync.Mutex
}

// NewLocalJobLocker crea el lock local.
func NewLocalJobLocker() *LocalJobLocker { return &LocalJobLocker{} }

// TryLock implementa JobLocker.
func (l *LocalJobLocker) TryLock(_ context.Context, _ string, _ time.Duration) (JobLease, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return localLease{l}, true, nil
}

// localLease no expira: el lock vive mientras el proceso lo tenga.
type localLease struct{ l *LocalJobLocker }

func (localLease) Extend(context.Context, time.Duration) error { return nil }
func (le localLease) Release()                                 { le.l.mu.Unlock() }

var _ JobLocker = (*LocalJobLocker)(nil)

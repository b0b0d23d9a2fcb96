package compliance_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/internal/domain"
)

func TestTenantLocks_SerializaMismoTenant(t *testing.T) {
	locks := compliance.NewTenantLocks()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("t1")
			defer unlock()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestTenantLocks_TenantsDistintosNoSeBloquean(t *testing.T) {
	locks := compliance.NewTenantLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("el lock de otro tenant quedó bloqueado")
	}
}

func TestLocalJobLocker(t *testing.T) {
	l := compliance.NewLocalJobLocker()
	lease, ok, err := l.TryLock(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, lease.Extend(context.Background(), time.Minute))

	_, ok, err = l.TryLock(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	lease.Release()
	lease2, ok, err := l.TryLock(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	lease2.Release()
}

func TestConfigError(t *testing.T) {
	err := fmt.Errorf("firmar: %w", &compliance.ConfigError{Op: "llave privada", Err: domain.ErrMissingPrivateKey})
	assert.True(t, compliance.IsConfigError(err))
	assert.ErrorIs(t, err, domain.ErrMissingPrivateKey)
	assert.False(t, compliance.IsConfigError(errors.New("otro")))
}

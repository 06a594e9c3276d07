package convo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "a", Session{Step: StepAwaitingName}))
	sess, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StepAwaitingName, sess.Step)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, 0, store.Len())
}

func TestStepValid(t *testing.T) {
	for _, s := range Steps {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Step("").Valid())
	assert.False(t, Step("esperando_pago").Valid())
}

func TestKeyedMutexExclusivePerKey(t *testing.T) {
	km := newKeyedMutex()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same")
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestMoneyFormatting(t *testing.T) {
	assert.Equal(t, "$0", money(0))
	assert.Equal(t, "$800", money(800))
	assert.Equal(t, "$1.000", money(1000))
	assert.Equal(t, "$2.500", money(2500))
	assert.Equal(t, "$9.999", money(9999))
	assert.Equal(t, "$10.000", money(10000))
	assert.Equal(t, "$1.234.567", money(1234567))
	assert.Equal(t, "-$1.200", money(-1200))
}

func TestPaymentDetailsDefaults(t *testing.T) {
	tpl := NewTemplates(PaymentDetails{Bank: "Banco de Chile"})
	assert.Equal(t, "Banco de Chile", tpl.payment.Bank)
	assert.Equal(t, "Papanatas SPA", tpl.payment.BusinessName)
	assert.Contains(t, tpl.Greeting(), "*Papanatas SPA*")
}

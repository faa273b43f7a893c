package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_PriorityOrdering(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	var order []string
	var mu sync.Mutex
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, ec *Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	r.On("x", record("low"), 1)
	r.On("x", record("high"), 100)
	r.On("x", record("mid"), 50)

	r.Apply(context.Background(), "x", nil)

	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestRouter_RegistrationOrderTiebreak(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	var order []string
	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		order = append(order, "first")
		return nil
	}), 10)
	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		order = append(order, "second")
		return nil
	}), 10)

	r.Apply(context.Background(), "x", nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRouter_ParameterMutationVisibleDownstream(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		ec.Parameters["count"] = ec.Parameters["count"].(int) + 1
		return nil
	}), 100)
	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		ec.Parameters["count"] = ec.Parameters["count"].(int) + 1
		return nil
	}), 50)

	ec := r.Apply(context.Background(), "x", map[string]any{"count": 0})
	assert.Equal(t, 2, ec.Parameters["count"])
}

func TestRouter_HandlerErrorDoesNotAbortDispatch(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	ran := false
	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		return errors.New("boom")
	}), 100)
	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		ran = true
		return nil
	}), 50)

	ec := r.Apply(context.Background(), "x", nil)
	require.Error(t, ec.Exception)
	assert.True(t, ran)
	assert.Len(t, ec.Errors, 1)
}

func TestRouter_DuplicateSubscriptionInvokesTwice(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	count := 0
	h := HandlerFunc(func(ctx context.Context, ec *Context) error {
		count++
		return nil
	})
	tok1 := r.On("x", h, 10)
	r.On("x", h, 10)

	r.Apply(context.Background(), "x", nil)
	assert.Equal(t, 2, count)

	r.Off(tok1)
	r.Apply(context.Background(), "x", nil)
	assert.Equal(t, 3, count)
}

func TestRouter_DoIsFireAndForget(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	done := make(chan struct{})
	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		close(done)
		return nil
	}), 100)

	r.Do(context.Background(), "x", nil)
	r.Join(time.Second)

	select {
	case <-done:
	default:
		t.Fatal("handler did not run")
	}
}

func TestRouter_ApplySyncDeadlockGuard(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	var guardErr error
	r.On("outer", HandlerFunc(func(ctx context.Context, ec *Context) error {
		_, err := r.ApplySync(ctx, "inner", nil, time.Second)
		guardErr = err
		return nil
	}), 100)

	_, err := r.ApplySync(context.Background(), "outer", nil, time.Second)
	require.NoError(t, err)
	require.Error(t, guardErr)
	assert.Contains(t, guardErr.Error(), "bridge loop")
}

func TestRouter_ApplySyncFromPlainGoroutineSucceeds(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	r.On("x", HandlerFunc(func(ctx context.Context, ec *Context) error {
		ec.Output = "done"
		return nil
	}), 100)

	ec, err := r.ApplySync(context.Background(), "x", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", ec.Output)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package closepool_test

import (
	"errors"
	"testing"

	"github.com/rbmk-project/chainemu/closepool"
	"github.com/stretchr/testify/assert"
)

// recorder records the order in which closers run.
type recorder struct {
	order []string
}

func (r *recorder) closer(name string, err error) func() error {
	return func() error {
		r.order = append(r.order, name)
		return err
	}
}

func TestPool(t *testing.T) {
	t.Run("close order", func(t *testing.T) {
		rec := &recorder{}
		pool := &closepool.Pool{}
		pool.AddFunc(rec.closer("tap", nil))
		pool.AddFunc(rec.closer("bridge", nil))
		assert.Equal(t, 2, pool.Len())

		assert.NoError(t, pool.Close())
		assert.Equal(t, []string{"bridge", "tap"}, rec.order)
		assert.Equal(t, 0, pool.Len())
	})

	t.Run("error handling", func(t *testing.T) {
		rec := &recorder{}
		expectedErr1 := errors.New("close error #1")
		expectedErr2 := errors.New("close error #2")
		pool := &closepool.Pool{}
		pool.AddFunc(rec.closer("first", expectedErr1))
		pool.AddFunc(rec.closer("second", expectedErr2))

		err := pool.Close()
		assert.ErrorIs(t, err, expectedErr1)
		assert.ErrorIs(t, err, expectedErr2)
		assert.Equal(t, errors.Join(expectedErr2, expectedErr1).Error(), err.Error())
	})

	t.Run("close twice", func(t *testing.T) {
		rec := &recorder{}
		pool := &closepool.Pool{}
		pool.AddFunc(rec.closer("once", nil))
		assert.NoError(t, pool.Close())
		assert.NoError(t, pool.Close())
		assert.Equal(t, []string{"once"}, rec.order)
	})

	t.Run("add after close", func(t *testing.T) {
		rec := &recorder{}
		pool := &closepool.Pool{}
		assert.NoError(t, pool.Close())
		pool.AddFunc(rec.closer("late", nil))
		assert.Equal(t, []string{"late"}, rec.order)
		assert.Equal(t, 0, pool.Len())
	})

	t.Run("concurrent usage", func(t *testing.T) {
		pool := &closepool.Pool{}
		done := make(chan struct{})

		go func() {
			for i := 0; i < 100; i++ {
				pool.AddFunc(func() error { return nil })
			}
			close(done)
		}()

		for i := 0; i < 100; i++ {
			pool.AddFunc(func() error { return nil })
		}

		<-done
		assert.Equal(t, 200, pool.Len())
		assert.NoError(t, pool.Close())
	})
}

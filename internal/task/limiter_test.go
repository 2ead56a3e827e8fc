package task

import (
	"testing"

	"github.com/phrazzld/scribe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	t.Run("caps acquisitions", func(t *testing.T) {
		l := NewLimiter(2)

		s1, ok := l.TryAcquire()
		require.True(t, ok)
		_, ok = l.TryAcquire()
		require.True(t, ok)
		_, ok = l.TryAcquire()
		assert.False(t, ok)
		assert.Equal(t, 0, l.Available())

		s1.Release()
		assert.Equal(t, 1, l.Available())
		assert.Equal(t, 1, l.InFlight())
	})

	t.Run("release is idempotent", func(t *testing.T) {
		l := NewLimiter(2)
		s1, _ := l.TryAcquire()
		_, _ = l.TryAcquire()

		s1.Release()
		s1.Release()

		assert.Equal(t, 1, l.InFlight())
	})

	t.Run("lowering max keeps held slots", func(t *testing.T) {
		l := NewLimiter(3)
		a, _ := l.TryAcquire()
		b, _ := l.TryAcquire()

		require.NoError(t, l.SetMax(1))

		assert.Equal(t, 2, l.InFlight())
		assert.Equal(t, 0, l.Available())
		_, ok := l.TryAcquire()
		assert.False(t, ok)

		a.Release()
		_, ok = l.TryAcquire()
		assert.False(t, ok)
		b.Release()
		_, ok = l.TryAcquire()
		assert.True(t, ok)
	})

	t.Run("invalid values", func(t *testing.T) {
		assert.Equal(t, 1, NewLimiter(0).Max())
		err := NewLimiter(1).SetMax(0)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

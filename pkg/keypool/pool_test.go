package keypool_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// newPool builds a pool from name/active pairs, none of them current.
func newPool(pairs ...any) keypool.Pool {
	var p keypool.Pool
	for i := 0; i < len(pairs); i += 2 {
		p = append(p, keypool.KeyRecord{
			Name:   pairs[i].(string),
			Value:  "value-" + pairs[i].(string),
			Active: pairs[i+1].(bool),
		})
	}
	return p
}

func currentNames(p keypool.Pool) []string {
	var names []string
	for _, r := range p {
		if r.Current {
			names = append(names, r.Name)
		}
	}
	return names
}

func TestPool_Add(t *testing.T) {
	t.Run("Success - first key in empty pool becomes current", func(t *testing.T) {
		var p keypool.Pool

		require.NoError(t, p.Add(keypool.NewKeyRecord("k1", "secret-1", keypool.WithEmail("a@example.com"))))
		require.NoError(t, p.Add(keypool.NewKeyRecord("k2", "secret-2")))

		require.Len(t, p, 2)
		assert.True(t, p[0].Current)
		assert.True(t, p[0].Active)
		assert.Equal(t, "a@example.com", p[0].Email)
		assert.False(t, p[1].Current)
		assert.True(t, p[1].Active)
		assert.Nil(t, p[1].LastUsed)
	})

	t.Run("Failure - duplicate name leaves pool unchanged", func(t *testing.T) {
		p := newPool("k1", true)

		err := p.Add(keypool.NewKeyRecord("k1", "other"))

		assert.ErrorIs(t, err, keypool.ErrDuplicateName)
		assert.Len(t, p, 1)
		assert.Equal(t, "value-k1", p[0].Value)
	})
}

func TestPool_Remove(t *testing.T) {
	p := newPool("a", true, "b", true, "c", true)

	assert.True(t, p.Remove("b"))
	assert.False(t, p.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, []string{p[0].Name, p[1].Name})
}

func TestPool_GetActive(t *testing.T) {
	t.Run("Success - returns the flagged current record", func(t *testing.T) {
		p := newPool("a", true, "b", true)
		p[1].Current = true

		rec, ok := p.GetActive(testNow)

		require.True(t, ok)
		assert.Equal(t, "b", rec.Name)
		assert.Nil(t, p[1].LastUsed)
	})

	t.Run("Success - self-heals by adopting the first active record", func(t *testing.T) {
		p := newPool("a", false, "b", true, "c", true)

		rec, ok := p.GetActive(testNow)

		require.True(t, ok)
		assert.Equal(t, "b", rec.Name)
		assert.True(t, p[1].Current)
		assert.Equal(t, []string{"b"}, currentNames(p))
		require.NotNil(t, p[1].LastUsed)
		assert.Equal(t, testNow, *p[1].LastUsed)
	})

	t.Run("Success - stale current flag on an inactive record is cleared", func(t *testing.T) {
		p := newPool("a", false, "b", true)
		p[0].Current = true

		rec, ok := p.GetActive(testNow)

		require.True(t, ok)
		assert.Equal(t, "b", rec.Name)
		assert.Equal(t, []string{"b"}, currentNames(p))
	})

	t.Run("Failure - no active records", func(t *testing.T) {
		p := newPool("a", false, "b", false)

		_, ok := p.GetActive(testNow)

		assert.False(t, ok)
		assert.Empty(t, currentNames(p))
	})
}

func TestPool_Advance(t *testing.T) {
	t.Run("Success - skips inactive records in circular order", func(t *testing.T) {
		p := newPool("A", true, "B", false, "C", true)
		p[0].Current = true

		rec, ok := p.Advance("A", testNow)

		require.True(t, ok)
		assert.Equal(t, "C", rec.Name)
		assert.True(t, p[2].Current)
		assert.False(t, p[0].Current)
		require.NotNil(t, p[2].LastUsed)
	})

	t.Run("Success - wraps around the end of the pool", func(t *testing.T) {
		p := newPool("A", true, "B", false, "C", true)
		p[2].Current = true

		rec, ok := p.Advance("C", testNow)

		require.True(t, ok)
		assert.Equal(t, "A", rec.Name)
		assert.Equal(t, []string{"A"}, currentNames(p))
	})

	t.Run("Success - single active record is reselected", func(t *testing.T) {
		p := newPool("A", false, "B", true)

		rec, ok := p.Advance("B", testNow)

		require.True(t, ok)
		assert.Equal(t, "B", rec.Name)
	})

	t.Run("Success - unknown origin falls back to first active", func(t *testing.T) {
		p := newPool("A", false, "B", true, "C", true)
		p[2].Current = true

		rec, ok := p.Advance("missing", testNow)

		require.True(t, ok)
		assert.Equal(t, "B", rec.Name)
		assert.Equal(t, []string{"B"}, currentNames(p))
	})

	t.Run("Success - repairs multiple current flags", func(t *testing.T) {
		p := newPool("A", true, "B", true, "C", true)
		p[0].Current = true
		p[2].Current = true

		rec, ok := p.Advance("A", testNow)

		require.True(t, ok)
		assert.Equal(t, "B", rec.Name)
		assert.Equal(t, []string{"B"}, currentNames(p))
	})

	t.Run("Failure - all records inactive", func(t *testing.T) {
		p := newPool("A", false, "B", false)
		p[0].Current = true

		_, ok := p.Advance("A", testNow)

		assert.False(t, ok)
		assert.Empty(t, currentNames(p))
	})

	t.Run("Failure - empty pool", func(t *testing.T) {
		var p keypool.Pool

		_, ok := p.Advance("A", testNow)

		assert.False(t, ok)
	})
}

func TestPool_MarkExhausted(t *testing.T) {
	t.Run("Success - clears active and current and stamps time", func(t *testing.T) {
		p := newPool("k1", true, "k2", true)
		p[0].Current = true

		ok := p.MarkExhausted("k1", testNow)

		require.True(t, ok)
		assert.False(t, p[0].Active)
		assert.False(t, p[0].Current)
		assert.True(t, p[0].Exhausted)
		require.NotNil(t, p[0].LastMarkedExhausted)
		assert.Equal(t, testNow, *p[0].LastMarkedExhausted)
		assert.Empty(t, currentNames(p), "exhaustion does not pick a replacement")
	})

	t.Run("Failure - unknown name", func(t *testing.T) {
		p := newPool("k1", true)

		assert.False(t, p.MarkExhausted("nope", testNow))
		assert.True(t, p[0].Active)
	})
}

func TestPool_Activate(t *testing.T) {
	p := newPool("k1", true)
	p.MarkExhausted("k1", testNow)

	require.True(t, p.Activate("k1"))

	assert.True(t, p[0].Active)
	assert.False(t, p[0].Exhausted)
	assert.False(t, p[0].Current)
	assert.False(t, p.Activate("nope"))
}

func TestPool_ResetAll(t *testing.T) {
	t.Run("Success - is idempotent", func(t *testing.T) {
		p := newPool("a", false, "b", true, "c", false)
		p.MarkExhausted("a", testNow)
		p[1].Current = true

		p.ResetAll()
		once := append(keypool.Pool(nil), p...)
		p.ResetAll()

		assert.Equal(t, once, p)
		for _, r := range p {
			assert.True(t, r.Active)
			assert.False(t, r.Exhausted)
		}
		assert.Equal(t, []string{"a"}, currentNames(p))
	})

	t.Run("Success - empty pool is a no-op", func(t *testing.T) {
		var p keypool.Pool
		p.ResetAll()
		assert.Empty(t, p)
	})
}

func TestPool_SelectCurrent(t *testing.T) {
	p := newPool("a", true, "b", false)
	p[0].Current = true

	require.True(t, p.SelectCurrent("b", testNow))

	assert.Equal(t, []string{"b"}, currentNames(p))
	require.NotNil(t, p[1].LastUsed)
	assert.False(t, p.SelectCurrent("zzz", testNow))
	assert.Equal(t, []string{"b"}, currentNames(p))

	p.MarkExhausted("a", testNow)
	assert.False(t, p.SelectCurrent("a", testNow), "exhausted keys cannot be selected")
	assert.Equal(t, []string{"b"}, currentNames(p))
}

func TestPool_EnsureCurrent(t *testing.T) {
	t.Run("Success - adopts first active", func(t *testing.T) {
		p := newPool("a", false, "b", true)

		assert.True(t, p.EnsureCurrent(testNow))
		assert.Equal(t, []string{"b"}, currentNames(p))
	})

	t.Run("Success - already normal pool is untouched", func(t *testing.T) {
		p := newPool("a", true, "b", true)
		p[1].Current = true

		assert.False(t, p.EnsureCurrent(testNow))
		assert.Equal(t, []string{"b"}, currentNames(p))
	})

	t.Run("Success - extra current flags are dropped", func(t *testing.T) {
		p := newPool("a", false, "b", true, "c", true)
		p[0].Current = true
		p[1].Current = true
		p[2].Current = true

		assert.True(t, p.EnsureCurrent(testNow))
		assert.Equal(t, []string{"b"}, currentNames(p))
	})
}

func TestPool_Validate(t *testing.T) {
	p := newPool("a", true, "a", true)
	p[0].Current = true
	p[1].Current = true
	p = append(p, keypool.KeyRecord{Name: "x", Exhausted: true, Active: true})

	err := p.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, keypool.ErrDuplicateName)
	assert.Contains(t, err.Error(), "2 keys are marked current")
	assert.Contains(t, err.Error(), "exhausted key x")
	assert.NoError(t, newPool("a", true).Validate())
}

func TestPool_Stats(t *testing.T) {
	p := newPool("a", true, "b", true, "c", true)
	earlier := testNow.Add(-time.Hour)
	p[0].LastUsed = &earlier
	p.SelectCurrent("b", testNow)
	p.MarkExhausted("c", testNow)

	s := p.Stats()

	assert.Equal(t, keypool.Stats{Total: 3, Active: 2, Exhausted: 1, Unused: 1, LastUsed: "b"}, s)
}

// TestPool_EndToEnd walks the exhaust-then-advance flow operators use.
func TestPool_EndToEnd(t *testing.T) {
	p := keypool.Pool{
		{Name: "k1", Active: true, Current: true},
		{Name: "k2", Active: true},
	}

	require.True(t, p.MarkExhausted("k1", testNow))
	assert.False(t, p[0].Active)
	assert.False(t, p[0].Current)
	assert.True(t, p[0].Exhausted)

	next, ok := p.Advance("k1", testNow)
	require.True(t, ok)
	assert.Equal(t, "k2", next.Name)
	assert.True(t, p[1].Current)
}

// TestPool_InvariantsHoldUnderRandomOperations applies random engine calls and
// checks the single-current and exhaustion invariants after each one.
func TestPool_InvariantsHoldUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"k0", "k1", "k2", "k3", "k4", "missing"}

	for run := 0; run < 50; run++ {
		var p keypool.Pool
		for i := 0; i < 5; i++ {
			require.NoError(t, p.Add(keypool.NewKeyRecord(fmt.Sprintf("k%d", i), "v")))
		}

		for step := 0; step < 40; step++ {
			name := names[rng.Intn(len(names))]
			switch rng.Intn(7) {
			case 0:
				p.GetActive(testNow)
			case 1:
				p.Advance(name, testNow)
			case 2:
				p.MarkExhausted(name, testNow)
			case 3:
				p.Activate(name)
			case 4:
				p.ResetAll()
			case 5:
				p.SelectCurrent(name, testNow)
			case 6:
				p.EnsureCurrent(testNow)
			}

			assert.LessOrEqual(t, len(currentNames(p)), 1, "run %d step %d", run, step)
			for _, r := range p {
				if r.Exhausted {
					assert.False(t, r.Active, "run %d step %d: %s", run, step, r.Name)
					assert.False(t, r.Current, "run %d step %d: %s", run, step, r.Name)
				}
			}
		}
	}
}

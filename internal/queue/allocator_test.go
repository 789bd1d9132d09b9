package queue

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positionsByID(list []Group) map[string]int {
	out := make(map[string]int, len(list))
	for _, g := range list {
		out[g.ID] = g.Position
	}
	return out
}

func TestAppendAssignsTail(t *testing.T) {
	var list []Group
	list = Append(list, Group{ID: "a"})
	list = Append(list, Group{ID: "b"})
	list = Append(list, Group{ID: "c"})

	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, positionsByID(list))
	require.NoError(t, CheckPositions(list))
}

func TestRemoveCompactsLaterPositions(t *testing.T) {
	var list []Group
	for _, id := range []string{"a", "b", "c", "d"} {
		list = Append(list, Group{ID: id})
	}

	list, ok := Remove(list, "b")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"a": 1, "c": 2, "d": 3}, positionsByID(list))

	list, ok = Remove(list, "missing")
	assert.False(t, ok)
	assert.Len(t, list, 3)
	require.NoError(t, CheckPositions(list))
}

func TestDelayRotatesAndClearsHelper(t *testing.T) {
	var list []Group
	for _, id := range []string{"a", "b", "c", "d"} {
		list = Append(list, Group{ID: id, Helper: "staff"})
	}

	n, err := Delay(list, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]int{"b": 1, "c": 2, "a": 3, "d": 4}, positionsByID(list))
	assert.Empty(t, list[0].Helper)
	assert.Equal(t, "staff", list[1].Helper)
}

func TestDelayClampsToTail(t *testing.T) {
	var list []Group
	for _, id := range []string{"a", "b", "c"} {
		list = Append(list, Group{ID: id})
	}

	n, err := Delay(list, "b", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]int{"a": 1, "c": 2, "b": 3}, positionsByID(list))
}

func TestDelayAtTailOnlyClearsHelper(t *testing.T) {
	var list []Group
	list = Append(list, Group{ID: "a"})
	list = Append(list, Group{ID: "b", Helper: "staff"})

	n, err := Delay(list, "b", 3)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, positionsByID(list))
	assert.Empty(t, list[1].Helper)
}

func TestDelayErrors(t *testing.T) {
	list := Append(nil, Group{ID: "a"})

	_, err := Delay(list, "a", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Delay(list, "zzz", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckPositionsRejectsGapsAndDuplicates(t *testing.T) {
	assert.Error(t, CheckPositions([]Group{{ID: "a", Position: 1}, {ID: "b", Position: 3}}))
	assert.Error(t, CheckPositions([]Group{{ID: "a", Position: 1}, {ID: "b", Position: 1}}))
	assert.NoError(t, CheckPositions(nil))
}

// Случайные последовательности Append/Remove/Delay не должны ломать нумерацию 1..N.
func TestRandomOperationsKeepPositionsContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var list []Group
	next := 0

	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(list) == 0:
			next++
			list = Append(list, Group{ID: fmt.Sprintf("g%d", next)})
		case op == 1:
			id := list[rng.Intn(len(list))].ID
			list, _ = Remove(list, id)
		default:
			id := list[rng.Intn(len(list))].ID
			_, err := Delay(list, id, 1+rng.Intn(5))
			require.NoError(t, err)
		}
		require.NoError(t, CheckPositions(list), "step %d", step)
	}
}

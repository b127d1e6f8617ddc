package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembersUpsert(t *testing.T) {
	m := NewMembers(Member{ID: "a", Name: "Alice"}, 3)

	added, err := m.Upsert(Member{ID: "b", Name: "Bob"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = m.Upsert(Member{ID: "b", Name: "Bobby", JoinedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, added, "rejoin must not duplicate")
	assert.Equal(t, 2, m.Length())

	b, index, err := m.GetByID("b")
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, "Bobby", b.Name)
	assert.True(t, b.JoinedAt.IsZero(), "rename must keep the original join time")

	_, err = m.Upsert(Member{ID: "c", Name: "Carol"})
	require.NoError(t, err)
	assert.False(t, m.Accepts("d"))
	assert.True(t, m.Accepts("b"), "a full list still accepts a rename")
	_, err = m.Upsert(Member{ID: "d", Name: "Dan"})
	assert.ErrorIs(t, err, ErrMembersLimitReached)
}

func TestMembersRemoveKeepsOrder(t *testing.T) {
	m := NewMembers(Member{ID: "a"}, 0)
	for _, id := range []string{"b", "c", "d"} {
		_, err := m.Upsert(Member{ID: id})
		require.NoError(t, err)
	}

	_, err := m.RemoveByID("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, m.IDs())

	_, err = m.RemoveByID("b")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	head, ok := m.Head()
	require.True(t, ok)
	assert.Equal(t, "a", head.ID)

	list := m.AsList()
	list[0].Name = "mutated"
	head, _ = m.Head()
	assert.Empty(t, head.Name, "AsList must return a copy")
}

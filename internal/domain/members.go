package domain

import (
	"errors"
	"time"

	"golang.org/x/exp/slices"
)

var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrMembersLimitReached = errors.New("members limit reached")
)

type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Members keeps members in join order. The head of the list is the
// earliest-joined member still present.
type Members struct {
	list  []Member
	limit int
}

// NewMembers creates a list holding only the creator. A limit below 1 means unlimited.
func NewMembers(creator Member, limit int) *Members {
	return &Members{
		list:  []Member{creator},
		limit: limit,
	}
}

func (m *Members) Length() int {
	return len(m.list)
}

// AsList returns a copy safe to hand out after the room lock is released.
func (m *Members) AsList() []Member {
	return slices.Clone(m.list)
}

func (m *Members) IDs() []string {
	ids := make([]string, 0, len(m.list))
	for _, member := range m.list {
		ids = append(ids, member.ID)
	}

	return ids
}

func (m *Members) GetByID(id string) (Member, int, error) {
	index := slices.IndexFunc(m.list, func(member Member) bool { return member.ID == id })
	if index < 0 {
		return Member{}, 0, ErrMemberNotFound
	}

	return m.list[index], index, nil
}

func (m *Members) Head() (Member, bool) {
	if len(m.list) == 0 {
		return Member{}, false
	}

	return m.list[0], true
}

// Accepts reports whether Upsert would succeed for id.
func (m *Members) Accepts(id string) bool {
	if _, _, err := m.GetByID(id); err == nil {
		return true
	}

	return m.limit <= 0 || len(m.list) < m.limit
}

// Upsert appends a new member or renames an existing one in place. It reports
// whether the member was appended.
func (m *Members) Upsert(member Member) (bool, error) {
	if _, index, err := m.GetByID(member.ID); err == nil {
		m.list[index].Name = member.Name
		return false, nil
	}

	if !m.Accepts(member.ID) {
		return false, ErrMembersLimitReached
	}

	m.list = append(m.list, member)
	return true, nil
}

func (m *Members) RemoveByID(id string) (Member, error) {
	member, index, err := m.GetByID(id)
	if err != nil {
		return Member{}, err
	}

	m.list = slices.Delete(m.list, index, index+1)
	return member, nil
}

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"future-self-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(userID model.ID, title string, createdAt time.Time) *model.Memory {
	return &model.Memory{
		ID:           model.NewID(),
		UserID:       userID,
		Title:        title,
		Description:  "desc " + title,
		Significance: model.DefaultSignificance,
		Tags:         []string{"t"},
		CreatedAt:    createdAt,
	}
}

func TestMemoryRepository_IsolationAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMemoryRepository()
	alice, bob := model.NewID(), model.NewID()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newMemory(alice, fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Hour))))
	}
	bobMem := newMemory(bob, "b0", base)
	require.NoError(t, repo.Create(ctx, bobMem))

	list, err := repo.ListByUser(ctx, alice, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a2", "a1", "a0"}, []string{list[0].Title, list[1].Title, list[2].Title})

	paged, err := repo.ListByUser(ctx, alice, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "a1", paged[0].Title)

	empty, err := repo.ListByUser(ctx, alice, 10, 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = repo.FindByID(ctx, alice, bobMem.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, alice, bobMem.ID), ErrNotFound)

	foreign := *bobMem
	foreign.UserID = alice
	foreign.Title = "hijack"
	assert.ErrorIs(t, repo.Update(ctx, &foreign), ErrNotFound)

	got, err := repo.FindByID(ctx, bob, bobMem.ID)
	require.NoError(t, err)
	assert.Equal(t, "b0", got.Title)

	hits, err := repo.FindByIDs(ctx, alice, []model.ID{bobMem.ID, list[0].ID})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, list[0].ID, hits[0].ID)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMemoryRepository()
	user := model.NewID()
	m := newMemory(user, "orig", time.Now())
	require.NoError(t, repo.Create(ctx, m))

	got, err := repo.FindByID(ctx, user, m.ID)
	require.NoError(t, err)
	got.Tags[0] = "mutated"
	got.Title = "mutated"

	again, err := repo.FindByID(ctx, user, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "orig", again.Title)
	assert.Equal(t, "t", again.Tags[0])
}

func TestMemoryRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMemoryRepository()
	user := model.NewID()
	m := newMemory(user, "x", time.Now())
	require.NoError(t, repo.Create(ctx, m))

	m.Significance = 5
	require.NoError(t, repo.Update(ctx, m))
	got, err := repo.FindByID(ctx, user, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Significance)

	require.NoError(t, repo.Delete(ctx, user, m.ID))
	_, err = repo.FindByID(ctx, user, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_Uniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	name := "ana"
	u := &model.User{ID: model.NewID(), Email: "ana@example.com", Username: &name, Password: "h"}
	require.NoError(t, repo.Create(ctx, u))

	dupEmail := &model.User{ID: model.NewID(), Email: "ANA@example.com", Password: "h"}
	assert.ErrorIs(t, repo.Create(ctx, dupEmail), ErrDuplicate)

	other := "ana"
	dupName := &model.User{ID: model.NewID(), Email: "other@example.com", Username: &other, Password: "h"}
	assert.ErrorIs(t, repo.Create(ctx, dupName), ErrDuplicate)

	byName, err := repo.FindByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := repo.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, model.NewID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRepository_AppendAndIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryConversationRepository()
	alice, bob := model.NewID(), model.NewID()

	conv := &model.Conversation{
		ID:     model.NewID(),
		UserID: alice,
		Title:  "first",
		Messages: []model.Message{
			model.NewMessage(model.RoleUser, "hello"),
			model.NewMessage(model.RoleFutureSelf, "hi there"),
		},
	}
	require.NoError(t, repo.Create(ctx, conv))
	assert.Equal(t, 1, conv.Messages[0].Seq)
	assert.Equal(t, 2, conv.Messages[1].Seq)

	msgs := []model.Message{
		model.NewMessage(model.RoleUser, "again"),
		model.NewMessage(model.RoleFutureSelf, "reply"),
	}
	require.NoError(t, repo.AppendMessages(ctx, alice, conv.ID, msgs))
	assert.Equal(t, 3, msgs[0].Seq)
	assert.Equal(t, conv.ID, msgs[1].ConversationID)

	assert.ErrorIs(t, repo.AppendMessages(ctx, bob, conv.ID, []model.Message{model.NewMessage(model.RoleUser, "x")}), ErrNotFound)

	got, err := repo.FindByID(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "reply", got.Messages[3].Content)

	_, err = repo.FindByID(ctx, bob, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	bobList, err := repo.ListByUser(ctx, bob, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, bobList)

	assert.ErrorIs(t, repo.Delete(ctx, bob, conv.ID), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, alice, conv.ID))
	_, err = repo.FindByID(ctx, alice, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRepository_ListOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryConversationRepository()
	user := model.NewID()

	older := &model.Conversation{ID: model.NewID(), UserID: user, Title: "older"}
	newer := &model.Conversation{ID: model.NewID(), UserID: user, Title: "newer"}
	require.NoError(t, repo.Create(ctx, older))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.Create(ctx, newer))

	list, err := repo.ListByUser(ctx, user, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Title)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.AppendMessages(ctx, user, older.ID, []model.Message{model.NewMessage(model.RoleUser, "bump")}))
	list, err = repo.ListByUser(ctx, user, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "older", list[0].Title)
}

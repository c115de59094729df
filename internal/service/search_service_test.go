package service

import (
	"context"
	"errors"
	"testing"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	hits      []model.SearchHit
	gotUser   string
	gotVector []float32
	gotSize   int
	err       error
}

func (b *fakeBackend) SearchMemories(_ context.Context, userID, _ string, vector []float32, size int) ([]model.SearchHit, error) {
	b.gotUser, b.gotVector, b.gotSize = userID, vector, size
	return b.hits, b.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (e *fakeEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

func TestSearchService_HydratesInHitOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryMemoryRepository()
	user, other := model.NewID(), model.NewID()

	mine1 := &model.Memory{ID: model.NewID(), UserID: user, Title: "a", Description: "d", Significance: 3}
	mine2 := &model.Memory{ID: model.NewID(), UserID: user, Title: "b", Description: "d", Significance: 3}
	foreign := &model.Memory{ID: model.NewID(), UserID: other, Title: "c", Description: "d", Significance: 3}
	for _, m := range []*model.Memory{mine1, mine2, foreign} {
		require.NoError(t, repo.Create(ctx, m))
	}

	backend := &fakeBackend{hits: []model.SearchHit{
		{MemoryID: mine2.ID, Score: 2.5},
		{MemoryID: foreign.ID, Score: 2.0},
		{MemoryID: model.NewID(), Score: 1.5},
		{MemoryID: mine1.ID, Score: 1.0},
	}}
	svc := NewSearchService(backend, &fakeEmbedder{vector: []float32{0.1, 0.2}}, repo)

	results, err := svc.SearchMemories(ctx, user, " lisbon ", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, mine2.ID, results[0].Memory.ID)
	assert.Equal(t, 2.5, results[0].Score)
	assert.Equal(t, mine1.ID, results[1].Memory.ID)
	assert.Equal(t, user.String(), backend.gotUser)
	assert.Equal(t, []float32{0.1, 0.2}, backend.gotVector)
	assert.Equal(t, defaultSearchLimit, backend.gotSize)
}

func TestSearchService_EmbeddingFailureFallsBack(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewSearchService(backend, &fakeEmbedder{err: errors.New("quota")}, repository.NewMemoryMemoryRepository())
	results, err := svc.SearchMemories(context.Background(), model.NewID(), "q", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Nil(t, backend.gotVector)
	assert.Equal(t, 5, backend.gotSize)
}

func TestSearchService_Errors(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryMemoryRepository()

	_, err := NewSearchService(nil, nil, repo).SearchMemories(ctx, model.NewID(), "q", 10)
	assert.ErrorIs(t, err, ErrSearchUnavailable)

	svc := NewSearchService(&fakeBackend{}, nil, repo)
	_, err = svc.SearchMemories(ctx, model.NewID(), "  ", 10)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SearchMemories(ctx, model.NewID(), "q", 51)
	assert.ErrorIs(t, err, ErrValidation)

	boom := errors.New("es down")
	_, err = NewSearchService(&fakeBackend{err: boom}, nil, repo).SearchMemories(ctx, model.NewID(), "q", 10)
	assert.ErrorIs(t, err, boom)
}

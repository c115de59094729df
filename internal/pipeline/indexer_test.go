package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/storage"
	"future-self-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]model.MemoryDocument
	deleted []string
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]model.MemoryDocument)}
}

func (f *fakeIndex) IndexMemory(_ context.Context, doc model.MemoryDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs[doc.MemoryID] = doc
	return nil
}

func (f *fakeIndex) DeleteMemory(_ context.Context, memoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, memoryID)
	f.deleted = append(f.deleted, memoryID)
	return nil
}

func (f *fakeIndex) get(id string) (model.MemoryDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractText(_ context.Context, r io.Reader, fileName string) (string, error) {
	if strings.HasSuffix(fileName, ".bad") {
		return "", errors.New("unsupported")
	}
	b, err := io.ReadAll(r)
	return strings.ToUpper(string(b)), err
}

type fakeEmbedder struct{ input string }

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.input = text
	return []float32{1, 0}, nil
}

func seedMemory(t *testing.T, repo repository.MemoryRepository, objects *storage.MemoryStore) *model.Memory {
	t.Helper()
	ctx := context.Background()
	m := &model.Memory{
		ID:           model.NewID(),
		UserID:       model.NewID(),
		Title:        "Letter",
		Description:  "From grandma",
		Significance: 4,
		Tags:         []string{"family"},
	}
	for _, name := range []string{"letter.txt", "scan.bad"} {
		key := "attachments/" + m.ID.String() + "/" + name
		require.NoError(t, objects.Put(ctx, key, strings.NewReader("dear child"), 10, "text/plain"))
		m.Attachments = append(m.Attachments, model.Attachment{Key: key, FileName: name})
	}
	require.NoError(t, repo.Create(ctx, m))
	return m
}

func TestIndexer_Upsert(t *testing.T) {
	repo := repository.NewMemoryMemoryRepository()
	objects := storage.NewMemoryStore()
	index := newFakeIndex()
	embedder := &fakeEmbedder{}
	m := seedMemory(t, repo, objects)

	indexer := NewIndexer(repo, objects, index, fakeExtractor{}, embedder)
	require.NoError(t, indexer.Process(context.Background(), tasks.NewMemoryIndexTask(tasks.OpUpsert, m.ID.String(), m.UserID.String())))

	doc, ok := index.get(m.ID.String())
	require.True(t, ok)
	assert.Equal(t, m.UserID.String(), doc.UserID)
	assert.Equal(t, "Letter", doc.Title)
	assert.Equal(t, []string{"family"}, doc.Tags)
	assert.Equal(t, "DEAR CHILD", doc.AttachmentText)
	assert.Equal(t, []float32{1, 0}, doc.Vector)
	assert.Contains(t, embedder.input, "From grandma")
}

func TestIndexer_UpsertWithoutOptionalClients(t *testing.T) {
	repo := repository.NewMemoryMemoryRepository()
	objects := storage.NewMemoryStore()
	index := newFakeIndex()
	m := seedMemory(t, repo, objects)

	indexer := NewIndexer(repo, objects, index, nil, nil)
	require.NoError(t, indexer.Process(context.Background(), tasks.NewMemoryIndexTask(tasks.OpUpsert, m.ID.String(), m.UserID.String())))
	doc, ok := index.get(m.ID.String())
	require.True(t, ok)
	assert.Empty(t, doc.AttachmentText)
	assert.Nil(t, doc.Vector)
}

func TestIndexer_MissingMemoryRemovesDocument(t *testing.T) {
	index := newFakeIndex()
	indexer := NewIndexer(repository.NewMemoryMemoryRepository(), storage.NewMemoryStore(), index, nil, nil)

	id := model.NewID()
	require.NoError(t, indexer.Process(context.Background(), tasks.NewMemoryIndexTask(tasks.OpUpsert, id.String(), model.NewID().String())))
	assert.Equal(t, []string{id.String()}, index.deleted)
}

func TestIndexer_ForeignUserCannotIndex(t *testing.T) {
	repo := repository.NewMemoryMemoryRepository()
	objects := storage.NewMemoryStore()
	index := newFakeIndex()
	m := seedMemory(t, repo, objects)

	indexer := NewIndexer(repo, objects, index, nil, nil)
	require.NoError(t, indexer.Process(context.Background(), tasks.NewMemoryIndexTask(tasks.OpUpsert, m.ID.String(), model.NewID().String())))
	_, ok := index.get(m.ID.String())
	assert.False(t, ok)
}

func TestIndexer_Errors(t *testing.T) {
	repo := repository.NewMemoryMemoryRepository()
	objects := storage.NewMemoryStore()
	index := newFakeIndex()
	m := seedMemory(t, repo, objects)
	indexer := NewIndexer(repo, objects, index, nil, nil)
	ctx := context.Background()

	assert.Error(t, indexer.Process(ctx, tasks.NewMemoryIndexTask(tasks.OpUpsert, "nope", m.UserID.String())))
	assert.Error(t, indexer.Process(ctx, tasks.NewMemoryIndexTask("reindex", m.ID.String(), m.UserID.String())))

	index.err = errors.New("es down")
	assert.Error(t, indexer.Process(ctx, tasks.NewMemoryIndexTask(tasks.OpUpsert, m.ID.String(), m.UserID.String())))
}

func TestInlinePublisher(t *testing.T) {
	repo := repository.NewMemoryMemoryRepository()
	objects := storage.NewMemoryStore()
	index := newFakeIndex()
	m := seedMemory(t, repo, objects)

	pub := NewInlinePublisher(NewIndexer(repo, objects, index, nil, nil))
	require.NoError(t, pub.Publish(context.Background(), tasks.NewMemoryIndexTask(tasks.OpUpsert, m.ID.String(), m.UserID.String())))

	assert.Eventually(t, func() bool {
		_, ok := index.get(m.ID.String())
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "记忆", truncateRunes("记忆文本", 2))
}

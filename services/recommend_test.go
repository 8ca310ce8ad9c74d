package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scholarlink/apperr"
	"scholarlink/storage"
)

// stubStore beantwortet Queries anhand von Substring-Matches und
// protokolliert Exec-Aufrufe.
type stubStore struct {
	users  map[int64]map[string]any
	papers map[int64]map[string]any
	lists  []map[string]any

	execErr  error
	nextID   int64
	executed []string
}

func newStubStore() *stubStore {
	return &stubStore{
		users:  map[int64]map[string]any{},
		papers: map[int64]map[string]any{},
		nextID: 1,
	}
}

func (s *stubStore) addUser(id int64, username, interest string) {
	s.users[id] = map[string]any{
		"user_id": id, "username": username, "password": "x", "interest": interest,
	}
}

func (s *stubStore) addPaper(id int64, title, abstract, pdfURL string) {
	s.papers[id] = map[string]any{
		"paper_id": id, "title": title, "author": "A. Autor",
		"abstract": abstract, "pdf_url": pdfURL, "arxiv_id": "",
	}
}

func (s *stubStore) QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	id, _ := args[0].(int64)
	if strings.Contains(query, "FROM users") {
		return s.users[id], nil
	}
	if strings.Contains(query, "FROM papers") {
		return s.papers[id], nil
	}
	return nil, nil
}

func (s *stubStore) QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if strings.Contains(query, "FROM papers") {
		var rows []map[string]any
		for _, p := range s.papers {
			rows = append(rows, p)
		}
		return rows, nil
	}
	return s.lists, nil
}

func (s *stubStore) Exec(ctx context.Context, query string, args ...any) (storage.ExecResult, error) {
	s.executed = append(s.executed, query)
	if s.execErr != nil {
		return storage.ExecResult{}, s.execErr
	}
	id := s.nextID
	s.nextID++
	return storage.ExecResult{RowsAffected: 1, LastInsertID: id}, nil
}

type stubBlogger struct {
	blog string
	err  error
}

func (b *stubBlogger) GenerateFromPDFURL(ctx context.Context, pdfURL string) (string, error) {
	return b.blog, b.err
}

type stubEmbedder struct {
	byText map[string][]float32
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.byText[t]
	}
	return out, nil
}

func (e *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return e.byText[text], nil
}

func newReco(store Store, blogger BlogSource) *RecommendationService {
	return NewRecommendationService(store, blogger, testBlogConfig(), zap.NewNop())
}

func TestGenerateCreatesRecommendation(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")
	store.addPaper(3, "Titel", "Abstract", "https://arxiv.org/pdf/2401.00001")

	svc := newReco(store, &stubBlogger{blog: "# Artikel"})

	reco, err := svc.Generate(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reco.ID)
	assert.Equal(t, int64(7), reco.UserID)
	assert.Equal(t, int64(3), reco.PaperID)
	assert.Equal(t, "# Artikel", reco.Blog)
	require.Len(t, store.executed, 1)
	assert.Contains(t, store.executed[0], "INSERT INTO recommendations")
}

func TestGenerateUnknownUser(t *testing.T) {
	store := newStubStore()
	store.addPaper(3, "Titel", "Abstract", "https://example.org/p.pdf")

	svc := newReco(store, &stubBlogger{blog: "x"})

	_, err := svc.Generate(context.Background(), 99, 3)
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGenerateUnknownPaper(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")

	svc := newReco(store, &stubBlogger{blog: "x"})

	_, err := svc.Generate(context.Background(), 7, 404)
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGeneratePaperWithoutPDFURL(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")
	store.addPaper(3, "Titel", "Abstract", "")

	svc := newReco(store, &stubBlogger{blog: "x"})

	_, err := svc.Generate(context.Background(), 7, 3)
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, store.executed, "ohne pdf-url darf nichts eingefügt werden")
}

func TestGenerateBloggerErrorSkipsInsert(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")
	store.addPaper(3, "Titel", "Abstract", "https://example.org/p.pdf")

	boom := apperr.NewUpstream("pdf-download fehlgeschlagen", errors.New("503"))
	svc := newReco(store, &stubBlogger{err: boom})

	_, err := svc.Generate(context.Background(), 7, 3)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.executed)
}

func TestGenerateDuplicatePairIsConflict(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")
	store.addPaper(3, "Titel", "Abstract", "https://example.org/p.pdf")
	store.execErr = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '7-3'"}

	svc := newReco(store, &stubBlogger{blog: "x"})

	_, err := svc.Generate(context.Background(), 7, 3)
	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestListForUser(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")
	store.lists = []map[string]any{
		{"id": int64(2), "title": "Neu"},
		{"id": int64(1), "title": "Alt"},
	}

	svc := newReco(store, &stubBlogger{})

	rows, err := svc.ListForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Neu", rows[0]["title"])
}

func TestListForUserUnknownUser(t *testing.T) {
	svc := newReco(newStubStore(), &stubBlogger{})

	_, err := svc.ListForUser(context.Background(), 1)
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestListForUserEmptyIsNotNil(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "ml")

	svc := newReco(store, &stubBlogger{})

	rows, err := svc.ListForUser(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestMatchPapersRanksBySimilarity(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "deep learning")
	store.addPaper(1, "Netzwerk-Paper", "router", "u1")
	store.addPaper(2, "DL-Paper", "neural nets", "u2")

	emb := &stubEmbedder{byText: map[string][]float32{
		"deep learning":          {1, 0},
		"Netzwerk-Paper\nrouter": {0, 1},
		"DL-Paper\nneural nets":  {1, 0},
	}}

	svc := newReco(store, &stubBlogger{})
	svc.Embedder = emb

	matched, err := svc.MatchPapers(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "DL-Paper", matched[0].Paper.Title)
	assert.InDelta(t, 1.0, matched[0].Score, 1e-6)
	assert.InDelta(t, 0.0, matched[1].Score, 1e-6)
}

func TestMatchPapersLimit(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "x")
	byText := map[string][]float32{"x": {1, 0}}
	store.addPaper(1, "A", "a", "u")
	store.addPaper(2, "B", "b", "u")
	store.addPaper(3, "C", "c", "u")
	byText["A\na"] = []float32{1, 0}
	byText["B\nb"] = []float32{0, 1}
	byText["C\nc"] = []float32{1, 0}

	svc := newReco(store, &stubBlogger{})
	svc.Embedder = &stubEmbedder{byText: byText}

	matched, err := svc.MatchPapers(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Len(t, matched, 2)
}

func TestMatchPapersWithoutEmbedder(t *testing.T) {
	svc := newReco(newStubStore(), &stubBlogger{})

	_, err := svc.MatchPapers(context.Background(), 7, 10)
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestMatchPapersWithoutInterest(t *testing.T) {
	store := newStubStore()
	store.addUser(7, "alice", "")

	svc := newReco(store, &stubBlogger{})
	svc.Embedder = &stubEmbedder{}

	_, err := svc.MatchPapers(context.Background(), 7, 10)
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)
}

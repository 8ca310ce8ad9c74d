package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"scholarlink/apperr"
	"scholarlink/config"
	"scholarlink/models"
	"scholarlink/storage"
)

// matchCandidateLimit begrenzt, wie viele der jüngsten Paper beim
// Interessen-Matching gegen das Nutzerprofil gestellt werden.
const matchCandidateLimit = 200

// BlogSource erzeugt aus einer PDF-URL einen Markdown-Artikel.
type BlogSource interface {
	GenerateFromPDFURL(ctx context.Context, pdfURL string) (string, error)
}

// Embedder berechnet normalisierte Text-Embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// MatchedPaper ist ein Paper mit seinem Ähnlichkeits-Score zum
// Nutzerinteresse.
type MatchedPaper struct {
	Paper models.Paper `json:"paper"`
	Score float64      `json:"score"`
}

// RecommendationService erzeugt Blog-Empfehlungen für Nutzer und listet sie.
// Blogger ist Pflicht, Embedder und S3 sind optionale Erweiterungen.
type RecommendationService struct {
	Store    Store
	Blogger  BlogSource
	Embedder Embedder
	S3       *s3.Client
	Config   *config.Config
	Logger   *zap.Logger
}

func NewRecommendationService(store Store, blogger BlogSource, cfg *config.Config, logger *zap.Logger) *RecommendationService {
	return &RecommendationService{
		Store:   store,
		Blogger: blogger,
		Config:  cfg,
		Logger:  logger,
	}
}

// Generate erzeugt für ein (user, paper)-Paar einen Blogartikel und
// persistiert ihn. Ein zweiter Aufruf für dasselbe Paar schlägt mit
// einem Konfliktfehler fehl.
func (s *RecommendationService) Generate(ctx context.Context, userID, paperID int64) (*models.Recommendation, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if paper.PDFURL == "" {
		return nil, apperr.NewValidation(fmt.Sprintf("paper %d hat keine pdf-url", paperID))
	}

	blog, err := s.Blogger.GenerateFromPDFURL(ctx, paper.PDFURL)
	if err != nil {
		return nil, err
	}

	res, err := s.Store.Exec(ctx,
		"INSERT INTO recommendations (user_id, paper_id, blog) VALUES (?, ?, ?)",
		userID, paperID, blog)
	if err != nil {
		return nil, apperr.FromStorage("empfehlung speichern", err)
	}

	reco := &models.Recommendation{
		ID:        res.LastInsertID,
		UserID:    userID,
		PaperID:   paperID,
		Blog:      blog,
		CreatedAt: time.Now().UTC(),
	}

	s.archiveBlog(ctx, user.Username, paper, blog)

	s.Logger.Info("Empfehlung erzeugt",
		zap.Int64("user_id", userID),
		zap.Int64("paper_id", paperID),
		zap.Int64("recommendation_id", reco.ID))
	return reco, nil
}

// ListForUser liefert alle Empfehlungen eines Nutzers, jüngste zuerst,
// inklusive Papertitel.
func (s *RecommendationService) ListForUser(ctx context.Context, userID int64) ([]map[string]any, error) {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.Store.QueryAll(ctx,
		"SELECT r.id, r.user_id, r.paper_id, r.blog, r.created_at, p.title "+
			"FROM recommendations r JOIN papers p ON p.paper_id = r.paper_id "+
			"WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC",
		userID)
	if err != nil {
		return nil, apperr.NewStorage("empfehlungen laden", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// MatchPapers rankt die jüngsten Paper gegen das Interessenprofil des
// Nutzers. Ohne konfigurierten Embedder oder ohne hinterlegtes Interesse
// ist das ein Validierungsfehler.
func (s *RecommendationService) MatchPapers(ctx context.Context, userID int64, limit int) ([]MatchedPaper, error) {
	if s.Embedder == nil {
		return nil, apperr.NewValidation("embedding-dienst ist nicht konfiguriert")
	}
	if limit <= 0 {
		limit = 10
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Interest == "" {
		return nil, apperr.NewValidation(fmt.Sprintf("nutzer %d hat kein interesse hinterlegt", userID))
	}

	rows, err := s.Store.QueryAll(ctx,
		"SELECT paper_id, title, author, abstract, pdf_url, arxiv_id "+
			"FROM papers ORDER BY paper_id DESC LIMIT ?",
		matchCandidateLimit)
	if err != nil {
		return nil, apperr.NewStorage("paper laden", err)
	}
	if len(rows) == 0 {
		return []MatchedPaper{}, nil
	}

	interestVec, err := s.Embedder.EmbedOne(ctx, user.Interest)
	if err != nil {
		return nil, err
	}

	papers := make([]models.Paper, 0, len(rows))
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		p := paperFromRow(row)
		papers = append(papers, p)
		texts = append(texts, p.Title+"\n"+p.Abstract)
	}
	paperVecs, err := s.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	matched := make([]MatchedPaper, len(papers))
	for i := range papers {
		matched[i] = MatchedPaper{
			Paper: papers[i],
			Score: CosineSimilarity(interestVec, paperVecs[i]),
		}
	}
	sortMatchesDesc(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// archiveBlog legt den Artikel optional im S3-Archiv ab. Ein Fehler dabei
// macht die Empfehlung nicht kaputt, er wird nur geloggt.
func (s *RecommendationService) archiveBlog(ctx context.Context, username string, paper *models.Paper, blog string) {
	if s.S3 == nil || !s.Config.S3Configured() {
		return
	}
	key := fmt.Sprintf("blogs/%s/%d_%s.md", username, paper.PaperID, time.Now().UTC().Format("20060102"))
	link, err := storage.UploadBlog(ctx, s.S3, s.Config, key, []byte(blog))
	if err != nil {
		s.Logger.Warn("Blog-Archivierung fehlgeschlagen",
			zap.String("key", key), zap.Error(err))
		return
	}
	s.Logger.Info("Blog archiviert", zap.String("link", link))
}

func (s *RecommendationService) loadUser(ctx context.Context, userID int64) (*models.User, error) {
	row, err := s.Store.QueryOne(ctx,
		"SELECT user_id, username, password, interest FROM users WHERE user_id = ?", userID)
	if err != nil {
		return nil, apperr.NewStorage("nutzer laden", err)
	}
	if row == nil {
		return nil, apperr.NewNotFound(fmt.Sprintf("nutzer %d nicht gefunden", userID))
	}
	return &models.User{
		UserID:   asInt64(row["user_id"]),
		Username: asString(row["username"]),
		Password: asString(row["password"]),
		Interest: asString(row["interest"]),
	}, nil
}

func (s *RecommendationService) loadPaper(ctx context.Context, paperID int64) (*models.Paper, error) {
	row, err := s.Store.QueryOne(ctx,
		"SELECT paper_id, title, author, abstract, pdf_url, arxiv_id FROM papers WHERE paper_id = ?",
		paperID)
	if err != nil {
		return nil, apperr.NewStorage("paper laden", err)
	}
	if row == nil {
		return nil, apperr.NewNotFound(fmt.Sprintf("paper %d nicht gefunden", paperID))
	}
	p := paperFromRow(row)
	return &p, nil
}

func paperFromRow(row map[string]any) models.Paper {
	return models.Paper{
		PaperID:  asInt64(row["paper_id"]),
		Title:    asString(row["title"]),
		Author:   asString(row["author"]),
		Abstract: asString(row["abstract"]),
		PDFURL:   asString(row["pdf_url"]),
		ArxivID:  asString(row["arxiv_id"]),
	}
}

// sortMatchesDesc sortiert stabil nach Score absteigend.
func sortMatchesDesc(matches []MatchedPaper) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// asString und asInt64 glätten die Typenvielfalt der Gateway-Zeilen.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// Package services enthält die Orchestrierung: Ingestion-Pipeline,
// Blog-Generator, Embeddings und Empfehlungen.
package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"scholarlink/providers"
	"scholarlink/providers/arxiv"
	"scholarlink/storage"
)

// sampleLimit begrenzt die Stichprobe gespeicherter Paper in der Zusammenfassung.
const sampleLimit = 10

// Store ist der minimale Ausschnitt des Storage-Gateways, den die Pipeline
// braucht. *storage.DB erfüllt das Interface.
type Store interface {
	QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error)
	QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, query string, args ...any) (storage.ExecResult, error)
}

// SavedPaper ist ein Eintrag der Stichprobe gespeicherter Paper.
type SavedPaper struct {
	PaperID int64  `json:"paper_id"`
	Title   string `json:"title"`
}

// IngestSummary fasst einen Pipeline-Lauf zusammen. Es gilt:
// FetchedCount = SavedCount + FailedCount + übersprungene Titel-Duplikate.
type IngestSummary struct {
	FetchedCount int          `json:"fetched_count"`
	SavedCount   int          `json:"saved_count"`
	FailedCount  int          `json:"failed_count"`
	Papers       []SavedPaper `json:"papers"`
}

// IngestService orchestriert fetch → dedupe → persist.
type IngestService struct {
	Store   Store
	Catalog providers.Provider
	Logger  *zap.Logger
}

// NewIngestService erstellt eine neue Instanz der Ingestion-Pipeline.
func NewIngestService(store Store, catalog providers.Provider, logger *zap.Logger) *IngestService {
	return &IngestService{Store: store, Catalog: catalog, Logger: logger}
}

// Ingest holt das Standard-Zeitfenster aus dem Katalog und speichert jeden
// Record unabhängig: Dedupliziert wird über exakte Titelgleichheit, der
// Fehler eines einzelnen Records bricht den Batch nie ab. Ein leeres Fenster
// ist ein Erfolg mit Null-Zählern.
func (s *IngestService) Ingest(ctx context.Context, maxResults int) (*IngestSummary, error) {
	start, end := arxiv.DefaultWindow()
	log := s.Logger.With(zap.String("provider", s.Catalog.Name()))

	result, err := s.Catalog.Fetch(ctx, start, end, maxResults)
	if err != nil {
		return nil, err
	}

	summary := &IngestSummary{
		FetchedCount: len(result.Records),
		Papers:       []SavedPaper{},
	}
	if len(result.Records) == 0 {
		log.Info("Keine neuen Paper im Zeitfenster.")
		return summary, nil
	}

	log.Info("Paper abgerufen, starte Speicherung",
		zap.Int("fetched", summary.FetchedCount),
		zap.Int("parse_failures", result.ParseFailures))

	for _, record := range result.Records {
		existing, err := s.Store.QueryOne(ctx,
			"SELECT paper_id FROM papers WHERE title = ?", record.Title)
		if err != nil {
			summary.FailedCount++
			log.Error("Duplikatsprüfung fehlgeschlagen",
				zap.String("title", record.Title), zap.Error(err))
			continue
		}
		if existing != nil {
			log.Debug("Paper bereits vorhanden, wird übersprungen",
				zap.String("title", record.Title))
			continue
		}

		authors := strings.Join(record.Authors, ", ")
		res, err := s.Store.Exec(ctx,
			"INSERT INTO papers (title, author, abstract, pdf_url, arxiv_id) VALUES (?, ?, ?, ?, ?)",
			record.Title, authors, record.Abstract, record.PDFURL, record.ArxivID)
		if err != nil {
			summary.FailedCount++
			log.Error("Paper speichern fehlgeschlagen",
				zap.String("title", record.Title), zap.Error(err))
			continue
		}

		summary.SavedCount++
		if len(summary.Papers) < sampleLimit {
			summary.Papers = append(summary.Papers, SavedPaper{
				PaperID: res.LastInsertID,
				Title:   record.Title,
			})
		}
	}

	log.Info("Speicherung abgeschlossen",
		zap.Int("fetched", summary.FetchedCount),
		zap.Int("saved", summary.SavedCount),
		zap.Int("failed", summary.FailedCount))
	return summary, nil
}

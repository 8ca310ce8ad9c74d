package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"scholarlink/apperr"
	"scholarlink/config"
	"scholarlink/models"
	"scholarlink/providers"
)

// paceEvery: nach so vielen erfolgreich geparsten Records wird pausiert,
// um das Rate-Limit der arXiv-API einzuhalten.
const paceEvery = 10

// timestampLayout ist das von der arXiv-API erwartete Format für
// submittedDate-Grenzen.
const timestampLayout = "20060102150405"

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Client ist der arXiv-Katalog-Client. Der Dedupe-Pool lebt so lange wie
// die Client-Instanz: ein zweiter Fetch mit überlappendem Fenster liefert
// nur noch ungesehene Records.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	pool map[string]struct{}
}

// NewClient erstellt eine neue Instanz des arXiv-Clients.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config: cfg,
		Logger: logger,
		pool:   make(map[string]struct{}),
	}
}

// Name gibt den Namen des Providers zurück.
func (c *Client) Name() string {
	return "arxiv"
}

// DefaultWindow liefert das Standard-Zeitfenster [jetzt−2 Tage, jetzt−1 Tag]
// in UTC. Der Versatz von einem Tag vermeidet unvollständig indizierte
// Einträge des aktuellen Tages.
func DefaultWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-48 * time.Hour), now.Add(-24 * time.Hour)
}

// Fetch holt alle Einträge im Zeitfenster, neueste zuerst. Einzelne nicht
// parsebare Einträge werden gezählt und übersprungen, Duplikate (arXiv-ID
// ohne Versionssuffix, über die Lebensdauer des Clients) verworfen.
func (c *Client) Fetch(ctx context.Context, start, end time.Time, maxResults int) (*providers.FetchResult, error) {
	log := c.Logger.With(
		zap.Time("window_start", start),
		zap.Time("window_end", end),
		zap.Int("max_results", maxResults),
	)
	log.Info("Starte arXiv-Abruf.")

	query := fmt.Sprintf("%s AND submittedDate:[%s TO %s]",
		c.Config.ArxivQuery,
		start.UTC().Format(timestampLayout),
		end.UTC().Format(timestampLayout))

	result := &providers.FetchResult{}
	parsedSinceLastPause := 0

	for offset := 0; ; {
		pageSize := c.Config.ArxivPageSize
		if maxResults > 0 && maxResults-len(result.Records) < pageSize {
			pageSize = maxResults - len(result.Records)
		}
		if pageSize <= 0 {
			break
		}

		feed, err := c.fetchPage(ctx, query, offset, pageSize)
		if err != nil {
			return nil, err
		}
		if len(feed.Entries) == 0 {
			break
		}

		for _, entry := range feed.Entries {
			record, err := parseEntry(&entry)
			if err != nil {
				result.ParseFailures++
				log.Warn("Eintrag nicht parsebar, wird übersprungen",
					zap.String("entry_id", entry.ID), zap.Error(err))
				continue
			}

			if _, seen := c.pool[record.ArxivID]; seen {
				log.Debug("Eintrag bereits bekannt, wird übersprungen",
					zap.String("arxiv_id", record.ArxivID))
				continue
			}
			c.pool[record.ArxivID] = struct{}{}
			result.Records = append(result.Records, record)

			parsedSinceLastPause++
			if parsedSinceLastPause == paceEvery {
				parsedSinceLastPause = 0
				if c.Config.ArxivPaceDelay > 0 {
					log.Debug("Rate-Limit-Pause",
						zap.Duration("delay", c.Config.ArxivPaceDelay),
						zap.Int("records_so_far", len(result.Records)))
					time.Sleep(c.Config.ArxivPaceDelay)
				}
			}

			if maxResults > 0 && len(result.Records) >= maxResults {
				break
			}
		}

		if maxResults > 0 && len(result.Records) >= maxResults {
			break
		}
		if len(feed.Entries) < pageSize {
			break
		}
		offset += len(feed.Entries)
	}

	log.Info("arXiv-Abruf abgeschlossen",
		zap.Int("records", len(result.Records)),
		zap.Int("parse_failures", result.ParseFailures))
	return result, nil
}

// fetchPage holt eine Seite des Atom-Feeds.
func (c *Client) fetchPage(ctx context.Context, query string, offset, pageSize int) (*atomFeed, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", fmt.Sprintf("%d", offset))
	params.Set("max_results", fmt.Sprintf("%d", pageSize))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	requestURL := c.Config.ArxivBaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, apperr.NewUpstream("arXiv nicht erreichbar", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.Logger.Error("arXiv-API hat nicht-200-Status zurückgegeben",
			zap.Int("status", resp.StatusCode), zap.String("body", string(body)))
		return nil, apperr.NewUpstream(
			fmt.Sprintf("arXiv-Abfrage fehlgeschlagen: status %d", resp.StatusCode), nil)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, apperr.NewUpstream("arXiv-Feed nicht parsebar", err)
	}
	return &feed, nil
}

// parseEntry wandelt einen Atom-Eintrag in einen FetchedRecord um.
func parseEntry(entry *atomEntry) (*models.FetchedRecord, error) {
	arxivID := stripVersion(entry.ID)
	if arxivID == "" {
		return nil, fmt.Errorf("eintrag ohne id")
	}
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil, fmt.Errorf("eintrag %s ohne titel", arxivID)
	}

	published, err := time.Parse(time.RFC3339, entry.Published)
	if err != nil {
		return nil, fmt.Errorf("published-datum von %s: %w", arxivID, err)
	}
	updated, err := time.Parse(time.RFC3339, entry.Updated)
	if err != nil {
		return nil, fmt.Errorf("updated-datum von %s: %w", arxivID, err)
	}

	record := &models.FetchedRecord{
		ArxivID:         arxivID,
		Title:           title,
		Abstract:        strings.TrimSpace(entry.Summary),
		Published:       published,
		Updated:         updated,
		EntryURL:        entry.ID,
		PrimaryCategory: entry.PrimaryCategory.Term,
		Comment:         strings.TrimSpace(entry.Comment),
		JournalRef:      strings.TrimSpace(entry.JournalRef),
	}
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			record.Authors = append(record.Authors, name)
		}
	}
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			record.Categories = append(record.Categories, cat.Term)
		}
	}
	record.PDFURL = pdfLink(entry)

	return record, nil
}

// pdfLink wählt den PDF-Link aus den Atom-Links; Fallback ist die
// abgeleitete /pdf/-URL des Eintrags.
func pdfLink(entry *atomEntry) string {
	for _, l := range entry.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			return l.Href
		}
	}
	if strings.Contains(entry.ID, "/abs/") {
		return strings.Replace(entry.ID, "/abs/", "/pdf/", 1)
	}
	return ""
}

// stripVersion extrahiert die arXiv-ID aus der Entry-URL und entfernt das
// Versionssuffix ("2408.00001v2" → "2408.00001").
func stripVersion(entryID string) string {
	id := entryID
	if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
		id = id[idx+len("/abs/"):]
	}
	if idx := strings.LastIndex(id, "v"); idx > 0 {
		suffix := id[idx+1:]
		if suffix != "" && isDigits(suffix) {
			id = id[:idx]
		}
	}
	return strings.TrimSpace(id)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

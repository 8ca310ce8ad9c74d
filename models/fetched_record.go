package models

import "time"

// FetchedRecord ist die normalisierte, transiente Form eines arXiv-Eintrags,
// wie der Katalog-Client sie liefert. In die papers-Tabelle übernommen werden
// nur Titel, Autorenliste, Abstract, PDF-URL und die arXiv-ID; der Rest wird
// an der Storage-Grenze verworfen.
type FetchedRecord struct {
	ArxivID         string    `json:"arxiv_id"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	Categories      []string  `json:"categories"`
	PrimaryCategory string    `json:"primary_category"`
	Published       time.Time `json:"published_date"`
	Updated         time.Time `json:"updated_date"`
	Abstract        string    `json:"abstract"`
	PDFURL          string    `json:"pdf_url"`
	EntryURL        string    `json:"entry_url"`
	Comment         string    `json:"comment,omitempty"`
	JournalRef      string    `json:"journal_ref,omitempty"`
}

package models

// Paper repräsentiert eine gespeicherte Publikation aus dem arXiv-Katalog.
// Dedupliziert wird ausschließlich über den Titel; die arXiv-ID wird nur
// informativ mitgeführt (separat indiziert, nie als Dedupe-Schlüssel).
type Paper struct {
	PaperID  int64  `json:"paper_id"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Abstract string `json:"abstract,omitempty"`
	PDFURL   string `json:"pdf_url,omitempty"`
	ArxivID  string `json:"arxiv_id,omitempty"`
}

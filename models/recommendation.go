package models

import "time"

// Recommendation verknüpft genau einen User mit genau einem Paper und trägt
// den generierten Blog-Text. Pro (user, paper)-Paar existiert höchstens eine
// Zeile (Unique-Key); beim Löschen eines Elternteils kaskadiert die Löschung.
type Recommendation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	PaperID   int64     `json:"paper_id"`
	Blog      string    `json:"blog,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

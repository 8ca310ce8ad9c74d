package providers

import (
	"context"
	"time"

	"scholarlink/models"
)

// FetchResult ist das Ergebnis eines Katalog-Abrufs: alle erfolgreich
// geparsten Records plus die Anzahl der Einträge, die einzeln am Parsen
// gescheitert sind (diese brechen den Batch nie ab).
type FetchResult struct {
	Records       []*models.FetchedRecord
	ParseFailures int
}

// Provider ist das Interface, das jeder Katalog-Client (z.B. arXiv)
// implementieren muss.
type Provider interface {
	// Fetch holt alle Records im Zeitfenster [start, end], neueste zuerst.
	// maxResults <= 0 bedeutet: alles, was der Katalog im Fenster liefert.
	Fetch(ctx context.Context, start, end time.Time, maxResults int) (*FetchResult, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "arxiv").
	Name() string
}

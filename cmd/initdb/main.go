package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"scholarlink/config"
	"scholarlink/storage"
)

func main() {
	log.Println("Initialisiere Datenbank...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Datenbank anlegen, falls sie fehlt
	if err := storage.EnsureDatabase(ctx, cfg); err != nil {
		log.Fatalf("Fehler beim Anlegen der Datenbank: %v", err)
	}
	log.Printf("Datenbank '%s' vorhanden.", cfg.DBName)

	// 2. Tabellen anlegen
	db, err := storage.Open(cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("Fehler beim Verbinden: %v", err)
	}
	defer db.Close()

	if !db.Ping(ctx) {
		log.Fatalf("Datenbank '%s' ist nicht erreichbar.", cfg.DBName)
	}
	if err := db.CreateTables(ctx); err != nil {
		log.Fatalf("Fehler beim Anlegen der Tabellen: %v", err)
	}

	log.Println("Datenbank-Initialisierung erfolgreich abgeschlossen.")
}

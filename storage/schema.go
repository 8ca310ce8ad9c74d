package storage

import (
	"context"
	"database/sql"
	"fmt"

	"scholarlink/config"
)

// Tabellen-DDL. Die Eindeutigkeit von Papern wird bewusst NICHT über das
// Schema erzwungen (Titel-Dedupe ist Sache der Pipeline); arxiv_id ist nur
// ein separat indiziertes Zusatzfeld für einen späteren strikteren Abgleich.
var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS papers (
		paper_id INT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		author VARCHAR(255),
		abstract TEXT,
		pdf_url VARCHAR(512),
		arxiv_id VARCHAR(64) DEFAULT NULL,
		KEY idx_papers_arxiv_id (arxiv_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS users (
		user_id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		password VARCHAR(255) NOT NULL,
		interest VARCHAR(255)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS recommendations (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT NOT NULL,
		paper_id INT NOT NULL,
		blog TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_reco_user FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
		CONSTRAINT fk_reco_paper FOREIGN KEY (paper_id) REFERENCES papers(paper_id) ON DELETE CASCADE,
		UNIQUE KEY uniq_user_paper (user_id, paper_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureDatabase legt die Datenbank an, falls sie fehlt. Verbindet sich ohne
// Datenbankname, da die Zieldatenbank noch nicht existieren muss.
func EnsureDatabase(ctx context.Context, cfg *config.Config) error {
	server, err := sql.Open("mysql", cfg.ServerDSN())
	if err != nil {
		return fmt.Errorf("mysql-server verbinden: %w", err)
	}
	defer server.Close()

	stmt := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		cfg.DBName)
	if _, err := server.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("datenbank %s anlegen: %w", cfg.DBName, err)
	}
	return nil
}

// CreateTables legt alle Tabellen an, falls sie fehlen.
func (db *DB) CreateTables(ctx context.Context) error {
	for _, stmt := range tableStatements {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("tabelle anlegen: %w", err)
		}
	}
	return nil
}

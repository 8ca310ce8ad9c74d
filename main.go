package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"scholarlink/apperr"
	"scholarlink/config"
	"scholarlink/models"
	"scholarlink/providers/arxiv"
	"scholarlink/services"
	"scholarlink/storage"
)

var (
	papersIngestedCounter prometheus.Counter
	blogsGeneratedCounter prometheus.Counter
)

func init() {
	papersIngestedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scholarlink_papers_ingested_total",
			Help: "Anzahl der neu gespeicherten Paper.",
		})
	blogsGeneratedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scholarlink_blogs_generated_total",
			Help: "Anzahl der erfolgreich generierten Blogartikel.",
		})
	prometheus.MustRegister(papersIngestedCounter, blogsGeneratedCounter)
}

// apiResponse ist der einheitliche Antwortumschlag aller Endpunkte.
// Status ist "success" oder "error"; der numerische Code steht nur in der
// HTTP-Statuszeile.
type apiResponse struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func respond(c *gin.Context, code int, message string, data any) {
	status := "success"
	if code >= http.StatusBadRequest {
		status = "error"
	}
	c.JSON(code, apiResponse{
		Message:   message,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
}

// respondErr bildet Fehlertypen auf HTTP-Status ab und loggt serverseitige.
func respondErr(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request fehlgeschlagen",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	respond(c, status, err.Error(), nil)
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database
	db, err := storage.Open(cfg, logging)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if !db.Ping(context.Background()) {
		logging.Fatal("Database is not reachable", zap.String("dsn_host", cfg.DBHost))
	}
	logging.Info("Successfully connected to database.")

	// Setup Catalog + Services
	catalog := arxiv.NewClient(cfg, logging)
	ingestService := services.NewIngestService(db, catalog, logging)

	var blogger services.BlogSource
	if cfg.OpenAIAPIKey != "" {
		b, err := services.NewBlogGenerator(cfg, logging)
		if err != nil {
			logging.Fatal("Blog generator creation failed", zap.Error(err))
		}
		blogger = b
	} else {
		logging.Warn("OPENAI_API_KEY nicht gesetzt, Blog-Generierung ist deaktiviert.")
	}

	recoService := services.NewRecommendationService(db, blogger, cfg, logging)
	if cfg.OpenAIAPIKey != "" {
		emb, err := services.NewEmbeddingService(cfg, logging)
		if err != nil {
			logging.Fatal("Embedding service creation failed", zap.Error(err))
		}
		recoService.Embedder = emb
	}
	if cfg.S3Configured() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		recoService.S3 = s3Client
		logging.Info("Blog-Archiv aktiviert", zap.String("bucket", cfg.S3Bucket))
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", func(c *gin.Context) {
		respond(c, http.StatusOK, "Willkommen bei ScholarLink AI", gin.H{"service": "scholarlink"})
	})
	router.GET("/health", func(c *gin.Context) {
		if !db.Ping(c.Request.Context()) {
			respond(c, http.StatusServiceUnavailable, "Datenbank nicht erreichbar", nil)
			return
		}
		respond(c, http.StatusOK, "ok", gin.H{"database": "up"})
	})

	// Setup Routes
	setupPaperRoutes(router, db, ingestService, logging)
	setupUserRoutes(router, db, logging)
	setupRecommendationRoutes(router, recoService, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupPaperRoutes(router *gin.Engine, db *storage.DB, ingest *services.IngestService, log *zap.Logger) {
	rg := router.Group("/api/papers")

	// Synchroner Abruf des Katalogfensters; der Body ist optional.
	rg.POST("/fetch", func(c *gin.Context) {
		var req struct {
			MaxResults int `json:"max_results"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondErr(c, log, apperr.NewValidation("ungültiger request-body"))
				return
			}
		}
		if req.MaxResults < 0 {
			respondErr(c, log, apperr.NewValidation("max_results darf nicht negativ sein"))
			return
		}

		summary, err := ingest.Ingest(c.Request.Context(), req.MaxResults)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		papersIngestedCounter.Add(float64(summary.SavedCount))
		respond(c, http.StatusOK, "Abruf abgeschlossen", summary)
	})

	rg.GET("/list", func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

		countRow, err := db.QueryOne(c.Request.Context(), "SELECT COUNT(*) AS total FROM papers")
		if err != nil {
			respondErr(c, log, apperr.NewStorage("paper zählen", err))
			return
		}
		pagination := models.NewPagination(page, pageSize, toInt64(countRow["total"]))

		rows, err := db.QueryAll(c.Request.Context(),
			"SELECT paper_id, title, author, abstract, pdf_url, arxiv_id "+
				"FROM papers ORDER BY paper_id DESC LIMIT ? OFFSET ?",
			pagination.PageSize, pagination.Offset())
		if err != nil {
			respondErr(c, log, apperr.NewStorage("paper laden", err))
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		respond(c, http.StatusOK, "ok", gin.H{"papers": rows, "pagination": pagination})
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		row, err := db.QueryOne(c.Request.Context(),
			"SELECT paper_id, title, author, abstract, pdf_url, arxiv_id FROM papers WHERE paper_id = ?", id)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("paper laden", err))
			return
		}
		if row == nil {
			respondErr(c, log, apperr.NewNotFound("paper nicht gefunden"))
			return
		}
		respond(c, http.StatusOK, "ok", row)
	})
}

func setupUserRoutes(router *gin.Engine, db *storage.DB, log *zap.Logger) {
	rg := router.Group("/api/users")

	rg.POST("/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Interest string `json:"interest"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, log, apperr.NewValidation("ungültiger request-body"))
			return
		}
		if req.Username == "" || req.Password == "" {
			respondErr(c, log, apperr.NewValidation("username und password sind pflichtfelder"))
			return
		}

		// Früher Exit bei bekanntem Namen; der Unique-Index bleibt die
		// verlässliche Absicherung gegen Races.
		existing, err := db.QueryOne(c.Request.Context(),
			"SELECT user_id FROM users WHERE username = ?", req.Username)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("nutzer prüfen", err))
			return
		}
		if existing != nil {
			respondErr(c, log, apperr.NewConflict("username ist bereits vergeben"))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("passwort hashen", err))
			return
		}

		res, err := db.Exec(c.Request.Context(),
			"INSERT INTO users (username, password, interest) VALUES (?, ?, ?)",
			req.Username, string(hash), req.Interest)
		if err != nil {
			respondErr(c, log, apperr.FromStorage("nutzer anlegen", err))
			return
		}

		respond(c, http.StatusCreated, "Nutzer registriert", models.User{
			UserID:   res.LastInsertID,
			Username: req.Username,
			Interest: req.Interest,
		})
	})

	rg.GET("/list", func(c *gin.Context) {
		rows, err := db.QueryAll(c.Request.Context(),
			"SELECT user_id, username, interest FROM users ORDER BY user_id")
		if err != nil {
			respondErr(c, log, apperr.NewStorage("nutzer laden", err))
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		respond(c, http.StatusOK, "ok", rows)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		row, err := db.QueryOne(c.Request.Context(),
			"SELECT user_id, username, interest FROM users WHERE user_id = ?", id)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("nutzer laden", err))
			return
		}
		if row == nil {
			respondErr(c, log, apperr.NewNotFound("nutzer nicht gefunden"))
			return
		}
		respond(c, http.StatusOK, "ok", row)
	})

	// Löscht den Nutzer; Empfehlungen hängen per FK-Kaskade dran.
	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		res, err := db.Exec(c.Request.Context(), "DELETE FROM users WHERE user_id = ?", id)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("nutzer löschen", err))
			return
		}
		if res.RowsAffected == 0 {
			respondErr(c, log, apperr.NewNotFound("nutzer nicht gefunden"))
			return
		}
		respond(c, http.StatusOK, "Nutzer gelöscht", gin.H{"user_id": id})
	})

	rg.PUT("/:id/interest", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		var req struct {
			Interest string `json:"interest"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, log, apperr.NewValidation("ungültiger request-body"))
			return
		}

		existing, err := db.QueryOne(c.Request.Context(),
			"SELECT user_id FROM users WHERE user_id = ?", id)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("nutzer prüfen", err))
			return
		}
		if existing == nil {
			respondErr(c, log, apperr.NewNotFound("nutzer nicht gefunden"))
			return
		}

		if _, err := db.Exec(c.Request.Context(),
			"UPDATE users SET interest = ? WHERE user_id = ?", req.Interest, id); err != nil {
			respondErr(c, log, apperr.NewStorage("interesse aktualisieren", err))
			return
		}
		respond(c, http.StatusOK, "Interesse aktualisiert", gin.H{"user_id": id, "interest": req.Interest})
	})

	rg.GET("/:id/interest", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		row, err := db.QueryOne(c.Request.Context(),
			"SELECT user_id, interest FROM users WHERE user_id = ?", id)
		if err != nil {
			respondErr(c, log, apperr.NewStorage("nutzer laden", err))
			return
		}
		if row == nil {
			respondErr(c, log, apperr.NewNotFound("nutzer nicht gefunden"))
			return
		}
		respond(c, http.StatusOK, "ok", row)
	})
}

func setupRecommendationRoutes(router *gin.Engine, reco *services.RecommendationService, log *zap.Logger) {
	rg := router.Group("/api/recommendations")

	rg.POST("/generate", func(c *gin.Context) {
		var req struct {
			UserID  int64 `json:"user_id"`
			PaperID int64 `json:"paper_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, log, apperr.NewValidation("ungültiger request-body"))
			return
		}
		if req.UserID <= 0 || req.PaperID <= 0 {
			respondErr(c, log, apperr.NewValidation("user_id und paper_id sind pflichtfelder"))
			return
		}
		if reco.Blogger == nil {
			respondErr(c, log, apperr.NewValidation("blog-generierung ist nicht konfiguriert"))
			return
		}

		result, err := reco.Generate(c.Request.Context(), req.UserID, req.PaperID)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		blogsGeneratedCounter.Inc()
		respond(c, http.StatusCreated, "Empfehlung erzeugt", result)
	})

	rg.GET("/user/:id", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		rows, err := reco.ListForUser(c.Request.Context(), id)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		respond(c, http.StatusOK, "ok", rows)
	})

	// Interessen-Matching über Embeddings; aktiv nur mit API-Key.
	rg.GET("/match/:id", func(c *gin.Context) {
		id, ok := paramID(c, log)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		matched, err := reco.MatchPapers(c.Request.Context(), id, limit)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		respond(c, http.StatusOK, "ok", matched)
	})
}

// paramID liest den :id-Pfadparameter; bei ungültigem Wert ist die Antwort
// bereits geschrieben.
func paramID(c *gin.Context, log *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondErr(c, log, apperr.NewValidation("ungültige id"))
		return 0, false
	}
	return id, true
}

// toInt64 glättet die Typen, die der Treiber für Aggregatspalten liefert.
func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)
		return n
	default:
		return 0
	}
}

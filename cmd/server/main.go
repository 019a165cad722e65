package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"study-ai/internal/api"
	"study-ai/internal/config"
	"study-ai/internal/db"
	"study-ai/internal/services"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	aiService := services.NewAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint)
	pdfService := services.NewPDFService(cfg.PDFPageLimit)
	setService := services.NewStudySetService(conn)
	userService := services.NewUserService(conn, cfg.JWTSecret)
	reviewService := services.NewReviewService(conn)

	server := api.NewServer(aiService, pdfService, setService, userService, reviewService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

package main

import (
	"log/slog"
	"os"

	"inkwell-backend/internal/config"
	"inkwell-backend/internal/controllers"
	"inkwell-backend/internal/feed"
	"inkwell-backend/internal/mail"
	"inkwell-backend/internal/repository"
	"inkwell-backend/internal/routes"
	"inkwell-backend/internal/session"
	"inkwell-backend/internal/storage"
	"inkwell-backend/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	if err := repository.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	storage.InitMinio(cfg)

	emailSender := mail.NewGmailSender(cfg.SMTPName, cfg.SMTPEmail, cfg.SMTPPassword)
	verifier := session.NewGoogleVerifier(cfg.GoogleClientId)
	sessions := session.NewManager(repository.DB, cfg, emailSender, verifier)
	composer := feed.NewComposer(repository.DB, cfg)

	app := fiber.New(fiber.Config{
		BodyLimit:    500 * 1024 * 1024,
		ErrorHandler: controllers.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))

	routes.Setup(app, cfg, repository.DB, composer, sessions, emailSender)

	utils.StartCleanupTask(repository.DB)

	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

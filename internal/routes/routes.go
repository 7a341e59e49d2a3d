package routes

import (
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/controllers"
	"inkwell-backend/internal/feed"
	"inkwell-backend/internal/mail"
	"inkwell-backend/internal/middleware"
	"inkwell-backend/internal/session"

	"github.com/gofiber/fiber/v3"
	"gorm.io/gorm"
)

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, composer *feed.Composer, sessions *session.Manager, sender mail.EmailSender) {
	auth := controllers.NewAuthController(sessions, cfg, db)
	posts := controllers.NewPostController(db, cfg, composer)
	social := controllers.NewSocialController(db)
	admin := controllers.NewAdminController(db, composer, sender)

	api := app.Group("/api")

	api.Post("/register", auth.Register)
	api.Post("/login", auth.Login)
	api.Post("/verifyOtp", auth.VerifyOtp)
	api.Post("/googleLogin", auth.GoogleLogin)
	api.Post("/refresh", auth.Refresh)
	api.Post("/logout", auth.Logout)
	api.Post("/forgotPassword", auth.ForgotPassword)
	api.Post("/resetPassword", auth.ResetPassword)

	public := api.Group("", middleware.OptionalAuth(cfg))
	public.Get("/posts", posts.GetFeed)
	public.Get("/posts/:id", posts.GetPost)
	public.Get("/posts/:id/comments", social.GetComments)
	public.Get("/users/:id", auth.GetUser)
	public.Get("/users/:id/posts", posts.GetUserPosts)

	protected := api.Group("", middleware.RequireAuth(cfg))
	protected.Get("/user", auth.Me)
	protected.Put("/editProfile", auth.EditProfile)
	protected.Post("/posts", posts.CreatePost)
	protected.Put("/posts/:id", posts.EditPost)
	protected.Delete("/posts/:id", posts.DeletePost)
	protected.Get("/favorites", posts.GetFavorites)
	protected.Get("/history", posts.GetHistory)
	protected.Post("/follow/:id", social.ToggleFollow)
	protected.Post("/like", social.ToggleLike)
	protected.Post("/favorite/:id", social.ToggleFavorite)
	protected.Post("/comments", social.CreateComment)
	protected.Delete("/comments/:id", social.DeleteComment)
	protected.Post("/reports", social.CreateReport)
	protected.Post("/uploadFile", controllers.UploadFileHandler)
	protected.Delete("/deleteFile", controllers.DeleteFileHandler)

	adm := api.Group("/admin", middleware.RequireAuth(cfg), middleware.RequireAdmin(db))
	adm.Get("/reported", admin.GetReportedPosts)
	adm.Get("/posts/:id/reports", admin.GetPostReports)
	adm.Put("/reports/:id/resolve", admin.ResolveReport)
	adm.Delete("/posts/:id", admin.DeletePost)
}

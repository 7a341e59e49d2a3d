package controllers

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/feed"
	"inkwell-backend/internal/mail"
	"inkwell-backend/internal/models"

	"github.com/gofiber/fiber/v3"
	"gorm.io/gorm"
)

type AdminController struct {
	db   *gorm.DB
	feed *feed.Composer
	mail mail.EmailSender
}

func NewAdminController(db *gorm.DB, composer *feed.Composer, sender mail.EmailSender) *AdminController {
	return &AdminController{db: db, feed: composer, mail: sender}
}

// GetReportedPosts lists posts with at least one unresolved report, most
// reported first.
func (ctl *AdminController) GetReportedPosts(c fiber.Ctx) error {
	page, err := ctl.feed.Compose(feed.Reported(), queryPagination(c), 0)
	if err != nil {
		return err
	}

	return c.JSON(DataResponse[*feed.Page]{
		Success: true,
		Data:    page,
	})
}

// GetPostReports lists the individual reports filed against one post.
func (ctl *AdminController) GetPostReports(c fiber.Ctx) error {
	postId, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var reports []models.Report
	if err := ctl.db.Where("post_id = ?", postId).Order("created_at DESC").
		Find(&reports).Error; err != nil {
		return apperr.NewDependency("Failed to fetch reports", err)
	}

	return c.JSON(DataResponse[[]models.Report]{
		Success: true,
		Data:    reports,
	})
}

func (ctl *AdminController) ResolveReport(c fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var report models.Report
	if err := ctl.db.First(&report, id).Error; err != nil {
		return apperr.NewNotFound("Report not found")
	}

	report.Resolved = true
	if err := ctl.db.Save(&report).Error; err != nil {
		return apperr.NewDependency("Failed to resolve report", err)
	}

	return c.JSON(MessageResponse{Success: true, Message: "Report resolved"})
}

// DeletePost removes a reported post with its dependent rows and notifies
// the owner with the moderation reason. The notification is best effort: the
// deletion has already committed when the email goes out.
func (ctl *AdminController) DeletePost(c fiber.Ctx) error {
	postId, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var data AdminDeletePostRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.Reason == "" {
		return apperr.NewValidation("A reason is required")
	}

	var post models.Post
	if err := ctl.db.First(&post, postId).Error; err != nil {
		return apperr.NewNotFound("Post not found")
	}

	var owner models.User
	if err := ctl.db.First(&owner, post.OwnerId).Error; err != nil {
		return apperr.NewDependency("Failed to fetch post owner", err)
	}

	if err := DeletePostCascade(ctl.db, post.Id); err != nil {
		return err
	}

	content := fmt.Sprintf(`<p>Hello %s,</p>
<p>Your post "%s" was removed by a moderator.</p>
<p>Reason: %s</p>`, owner.Username, post.Title, data.Reason)

	if err := ctl.mail.SendEmail("Your post was removed", content, []string{owner.Email}); err != nil {
		slog.Error("moderation email dispatch failed", "post", post.Id, "owner", owner.Id, "error", err)
		return apperr.NewDependency("Post deleted but owner notification failed", err)
	}

	return c.JSON(MessageResponse{Success: true, Message: "Post removed"})
}

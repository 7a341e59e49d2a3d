package controllers

import (
	"encoding/json"
	"strconv"
	"strings"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/feed"
	"inkwell-backend/internal/middleware"
	"inkwell-backend/internal/models"

	"github.com/gofiber/fiber/v3"
	"gorm.io/gorm"
)

type PostController struct {
	db   *gorm.DB
	cfg  *config.Config
	feed *feed.Composer
}

func NewPostController(db *gorm.DB, cfg *config.Config, composer *feed.Composer) *PostController {
	return &PostController{db: db, cfg: cfg, feed: composer}
}

func (ctl *PostController) CreatePost(c fiber.Ctx) error {
	var data CreatePostRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}

	if data.Title == "" {
		return apperr.NewValidation("Title is required")
	}
	if !ctl.cfg.HasCategory(data.Category) {
		return apperr.NewValidation("Unknown category: " + data.Category)
	}
	blocks, err := buildBlocks(data.Blocks)
	if err != nil {
		return err
	}

	post := models.Post{
		OwnerId:  middleware.UserId(c),
		Title:    data.Title,
		Category: strings.ToLower(data.Category),
		Tags:     data.Tags,
		Blocks:   blocks,
	}

	if err := ctl.db.Create(&post).Error; err != nil {
		return apperr.NewDependency("Failed to create post", err)
	}

	return c.Status(fiber.StatusCreated).JSON(DataResponse[models.Post]{
		Success: true,
		Data:    post,
		Message: "Post created successfully",
	})
}

func (ctl *PostController) EditPost(c fiber.Ctx) error {
	post, err := ctl.ownedPost(c)
	if err != nil {
		return err
	}

	var data EditPostRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}

	if data.Title != "" {
		post.Title = data.Title
	}
	if data.Category != "" {
		if !ctl.cfg.HasCategory(data.Category) {
			return apperr.NewValidation("Unknown category: " + data.Category)
		}
		post.Category = strings.ToLower(data.Category)
	}
	if data.Tags != nil {
		post.Tags = data.Tags
	}
	if data.Blocks != nil {
		blocks, err := buildBlocks(data.Blocks)
		if err != nil {
			return err
		}
		post.Blocks = blocks
	}

	if err := ctl.db.Save(post).Error; err != nil {
		return apperr.NewDependency("Failed to update post", err)
	}

	return c.JSON(DataResponse[*models.Post]{
		Success: true,
		Data:    post,
		Message: "Post updated successfully",
	})
}

func (ctl *PostController) DeletePost(c fiber.Ctx) error {
	post, err := ctl.ownedPost(c)
	if err != nil {
		return err
	}

	if err := DeletePostCascade(ctl.db, post.Id); err != nil {
		return err
	}

	return c.JSON(MessageResponse{
		Success: true,
		Message: "Post successfully deleted",
	})
}

// GetPost returns the full post with viewer flags. Viewing increments the
// view counter and records the post in the viewer's history.
func (ctl *PostController) GetPost(c fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}

	detail, err := ctl.feed.Detail(id, middleware.UserId(c))
	if err != nil {
		return err
	}

	return c.JSON(DataResponse[*feed.PostDetail]{
		Success: true,
		Data:    detail,
	})
}

// GetFeed serves the public listing. Supported query parameters: page, limit,
// category, search.
func (ctl *PostController) GetFeed(c fiber.Ctx) error {
	filter := feed.AllPosts()
	category := c.Query("category")
	search := c.Query("search")
	switch {
	case search != "" && category != "":
		filter = feed.SearchTitleAndCategory(search, category)
	case search != "":
		filter = feed.SearchTitle(search)
	case category != "":
		filter = feed.CategoryOf(category)
	}

	return ctl.composeFeed(c, filter)
}

// GetUserPosts lists the posts of one author.
func (ctl *PostController) GetUserPosts(c fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var owner models.User
	if err := ctl.db.First(&owner, id).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	return ctl.composeFeed(c, feed.OwnedBy(id))
}

func (ctl *PostController) GetFavorites(c fiber.Ctx) error {
	return ctl.composeFeed(c, feed.FavoritesOf(middleware.UserId(c)))
}

func (ctl *PostController) GetHistory(c fiber.Ctx) error {
	return ctl.composeFeed(c, feed.HistoryOf(middleware.UserId(c)))
}

func (ctl *PostController) composeFeed(c fiber.Ctx, filter feed.Filter) error {
	page, err := ctl.feed.Compose(filter, queryPagination(c), middleware.UserId(c))
	if err != nil {
		return err
	}

	return c.JSON(DataResponse[*feed.Page]{
		Success: true,
		Data:    page,
	})
}

func (ctl *PostController) ownedPost(c fiber.Ctx) (*models.Post, error) {
	id, err := paramId(c, "id")
	if err != nil {
		return nil, err
	}

	var post models.Post
	if result := ctl.db.First(&post, id); result.Error != nil {
		return nil, apperr.NewNotFound("Post not found")
	}

	if post.OwnerId != middleware.UserId(c) {
		return nil, apperr.NewForbidden("You are not the owner of this post")
	}
	return &post, nil
}

// DeletePostCascade removes a post together with its likes, comment tree and
// reports in one transaction. Comment likes are collected first so likes on
// replies disappear as well.
func DeletePostCascade(db *gorm.DB, postId uint) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		var commentIds []uint
		if err := tx.Model(&models.Comment{}).
			Where("target_type = ? AND target_id = ?", models.TargetPost, postId).
			Pluck("id", &commentIds).Error; err != nil {
			return err
		}

		var replyIds []uint
		if len(commentIds) > 0 {
			if err := tx.Model(&models.Comment{}).
				Where("target_type = ? AND target_id IN ?", models.TargetComment, commentIds).
				Pluck("id", &replyIds).Error; err != nil {
				return err
			}
		}
		commentIds = append(commentIds, replyIds...)

		if len(commentIds) > 0 {
			if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetComment, commentIds).
				Delete(&models.Like{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", commentIds).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("target_type = ? AND target_id = ?", models.TargetPost, postId).
			Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postId).Delete(&models.Report{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, postId).Error
	})
	if err != nil {
		return apperr.NewDependency("Failed to delete post", err)
	}
	return nil
}

func buildBlocks(reqs []BlockRequest) ([]models.Block, error) {
	if len(reqs) == 0 {
		return nil, apperr.NewValidation("At least one content block is required")
	}
	if reqs[0].Type != models.BlockImage || reqs[0].ImageURL == "" {
		return nil, apperr.NewValidation("The first block must be an image")
	}

	blocks := make([]models.Block, 0, len(reqs))
	for _, req := range reqs {
		switch req.Type {
		case models.BlockText:
			if req.HTML == "" {
				return nil, apperr.NewValidation("Text block requires html content")
			}
		case models.BlockImage:
			if req.ImageURL == "" {
				return nil, apperr.NewValidation("Image block requires an image url")
			}
		case models.BlockCode:
			if req.Code == "" {
				return nil, apperr.NewValidation("Code block requires code content")
			}
		default:
			return nil, apperr.NewValidation("Unknown block type: " + req.Type)
		}
		blocks = append(blocks, models.Block{
			Type:     req.Type,
			HTML:     req.HTML,
			ImageURL: req.ImageURL,
			Code:     req.Code,
			Language: req.Language,
		})
	}
	return blocks, nil
}

func paramId(c fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.NewValidation("Invalid " + name)
	}
	return uint(id), nil
}

func queryPagination(c fiber.Ctx) feed.Pagination {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	return feed.Pagination{Page: page, Limit: limit}
}

package controllers

import (
	"encoding/json"
	"strconv"
	"time"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/middleware"
	"inkwell-backend/internal/models"

	"github.com/gofiber/fiber/v3"
	"gorm.io/gorm"
)

type SocialController struct {
	db *gorm.DB
}

func NewSocialController(db *gorm.DB) *SocialController {
	return &SocialController{db: db}
}

// ToggleFollow flips the follow edge towards the target user. Presence of
// the row means "following"; calling twice returns to the original state.
func (ctl *SocialController) ToggleFollow(c fiber.Ctx) error {
	targetId, err := paramId(c, "id")
	if err != nil {
		return err
	}
	userId := middleware.UserId(c)

	if targetId == userId {
		return apperr.NewValidation("You cannot follow yourself")
	}

	var target models.User
	if err := ctl.db.First(&target, targetId).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	var existing models.Follow
	err = ctl.db.Where("followed_by_id = ? AND followed_to_id = ?", userId, targetId).
		First(&existing).Error
	if err == nil {
		if err := ctl.db.Delete(&existing).Error; err != nil {
			return apperr.NewDependency("Failed to unfollow", err)
		}
		return c.JSON(MessageResponse{Success: true, Message: "Unfollowed"})
	}

	follow := models.Follow{FollowedById: userId, FollowedToId: targetId}
	if err := ctl.db.Create(&follow).Error; err != nil {
		// Unique index on the pair catches the concurrent duplicate.
		return apperr.NewConflict("Already following")
	}
	return c.JSON(MessageResponse{Success: true, Message: "Followed"})
}

// ToggleLike flips a like on a post or a comment (exactly one of the two).
func (ctl *SocialController) ToggleLike(c fiber.Ctx) error {
	var data LikeRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}

	target, err := ctl.resolveTarget(data.PostId, data.CommentId)
	if err != nil {
		return err
	}
	userId := middleware.UserId(c)

	var existing models.Like
	err = ctl.db.Where("user_id = ? AND target_type = ? AND target_id = ?",
		userId, target.Type, target.Id).First(&existing).Error
	if err == nil {
		if err := ctl.db.Delete(&existing).Error; err != nil {
			return apperr.NewDependency("Failed to remove like", err)
		}
		return c.JSON(MessageResponse{Success: true, Message: "Like removed"})
	}

	like := models.Like{UserId: userId, TargetType: target.Type, TargetId: target.Id}
	if err := ctl.db.Create(&like).Error; err != nil {
		return apperr.NewConflict("Already liked")
	}
	return c.JSON(MessageResponse{Success: true, Message: "Like added"})
}

// ToggleFavorite flips the post's membership in the viewer's favorites set.
// Insertion order is preserved for the favorites listing.
func (ctl *SocialController) ToggleFavorite(c fiber.Ctx) error {
	postId, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var post models.Post
	if err := ctl.db.First(&post, postId).Error; err != nil {
		return apperr.NewNotFound("Post not found")
	}

	var user models.User
	if err := ctl.db.First(&user, middleware.UserId(c)).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	removed := false
	favorites := user.Favorites[:0:0]
	for _, id := range user.Favorites {
		if id == postId {
			removed = true
			continue
		}
		favorites = append(favorites, id)
	}
	message := "Removed from favorites"
	if !removed {
		favorites = append(favorites, postId)
		message = "Added to favorites"
	}
	user.Favorites = favorites

	if err := ctl.db.Save(&user).Error; err != nil {
		return apperr.NewDependency("Failed to update favorites", err)
	}
	return c.JSON(MessageResponse{Success: true, Message: message})
}

func (ctl *SocialController) CreateComment(c fiber.Ctx) error {
	var data CreateCommentRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.Content == "" {
		return apperr.NewValidation("Content is required")
	}

	target, err := ctl.resolveTarget(data.PostId, data.ParentId)
	if err != nil {
		return err
	}

	// Replies stay one level deep: the parent must itself be anchored at
	// a post.
	if target.Type == models.TargetComment {
		var parent models.Comment
		if err := ctl.db.First(&parent, target.Id).Error; err != nil {
			return apperr.NewNotFound("Comment not found")
		}
		if parent.TargetType != models.TargetPost {
			return apperr.NewValidation("Replies to replies are not allowed")
		}
	}

	comment := models.Comment{
		UserId:     middleware.UserId(c),
		TargetType: target.Type,
		TargetId:   target.Id,
		Content:    data.Content,
	}
	if err := ctl.db.Create(&comment).Error; err != nil {
		return apperr.NewDependency("Failed to create comment", err)
	}

	return c.Status(fiber.StatusCreated).JSON(DataResponse[models.Comment]{
		Success: true,
		Data:    comment,
	})
}

type CommentView struct {
	Id           uint      `json:"id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	LikeCount    int64     `json:"likeCount"`
	RepliesCount int64     `json:"repliesCount"`
	IsLiked      bool      `json:"isLiked"`
	User         struct {
		Id        uint   `json:"id"`
		Username  string `json:"username"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"user"`
}

// GetComments lists the top-level comments of a post, each with its like and
// reply counts. Pass ?parentId= to list the replies of one comment instead.
func (ctl *SocialController) GetComments(c fiber.Ctx) error {
	postId, err := paramId(c, "id")
	if err != nil {
		return err
	}

	targetType := models.TargetPost
	targetId := postId
	if parent, err := strconv.ParseUint(c.Query("parentId", "0"), 10, 32); err == nil && parent != 0 {
		// The parent must be a top-level comment of this post.
		var parentComment models.Comment
		if err := ctl.db.First(&parentComment, uint(parent)).Error; err != nil {
			return apperr.NewNotFound("Comment not found")
		}
		if parentComment.TargetType != models.TargetPost || parentComment.TargetId != postId {
			return apperr.NewNotFound("Comment not found")
		}
		targetType = models.TargetComment
		targetId = uint(parent)
	} else {
		var post models.Post
		if err := ctl.db.First(&post, postId).Error; err != nil {
			return apperr.NewNotFound("Post not found")
		}
	}

	var comments []models.Comment
	if err := ctl.db.Where("target_type = ? AND target_id = ?", targetType, targetId).
		Order("created_at ASC").Find(&comments).Error; err != nil {
		return apperr.NewDependency("Failed to fetch comments", err)
	}

	views, err := ctl.commentViews(comments, middleware.UserId(c))
	if err != nil {
		return err
	}

	return c.JSON(DataResponse[[]CommentView]{
		Success: true,
		Data:    views,
	})
}

func (ctl *SocialController) DeleteComment(c fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var comment models.Comment
	if err := ctl.db.First(&comment, id).Error; err != nil {
		return apperr.NewNotFound("Comment not found")
	}
	if comment.UserId != middleware.UserId(c) {
		return apperr.NewForbidden("You are not the owner of this comment")
	}

	err = ctl.db.Transaction(func(tx *gorm.DB) error {
		var replyIds []uint
		if err := tx.Model(&models.Comment{}).
			Where("target_type = ? AND target_id = ?", models.TargetComment, comment.Id).
			Pluck("id", &replyIds).Error; err != nil {
			return err
		}
		ids := append(replyIds, comment.Id)
		if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetComment, ids).
			Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Comment{}).Error
	})
	if err != nil {
		return apperr.NewDependency("Failed to delete comment", err)
	}

	return c.JSON(MessageResponse{Success: true, Message: "Comment deleted"})
}

// CreateReport files a report against a post. Reports are only ever removed
// by the cascade when their post is deleted.
func (ctl *SocialController) CreateReport(c fiber.Ctx) error {
	var data CreateReportRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.PostId == 0 || data.Title == "" || data.Content == "" {
		return apperr.NewValidation("Post id, title and content are required")
	}

	var post models.Post
	if err := ctl.db.First(&post, data.PostId).Error; err != nil {
		return apperr.NewNotFound("Post not found")
	}

	report := models.Report{
		UserId:  middleware.UserId(c),
		PostId:  data.PostId,
		Title:   data.Title,
		Content: data.Content,
	}
	if err := ctl.db.Create(&report).Error; err != nil {
		return apperr.NewDependency("Failed to create report", err)
	}

	return c.Status(fiber.StatusCreated).JSON(DataResponse[models.Report]{
		Success: true,
		Data:    report,
	})
}

func (ctl *SocialController) resolveTarget(postId, commentId *uint) (models.Target, error) {
	switch {
	case postId != nil && commentId != nil:
		return models.Target{}, apperr.NewValidation("Specify a post or a comment, not both")
	case postId != nil:
		var post models.Post
		if err := ctl.db.First(&post, *postId).Error; err != nil {
			return models.Target{}, apperr.NewNotFound("Post not found")
		}
		return models.PostTarget(*postId), nil
	case commentId != nil:
		var comment models.Comment
		if err := ctl.db.First(&comment, *commentId).Error; err != nil {
			return models.Target{}, apperr.NewNotFound("Comment not found")
		}
		return models.CommentTarget(*commentId), nil
	default:
		return models.Target{}, apperr.NewValidation("A post or comment id is required")
	}
}

func (ctl *SocialController) commentViews(comments []models.Comment, viewerId uint) ([]CommentView, error) {
	views := make([]CommentView, 0, len(comments))
	if len(comments) == 0 {
		return views, nil
	}

	ids := make([]uint, 0, len(comments))
	userIds := make([]uint, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.Id)
		userIds = append(userIds, comment.UserId)
	}

	var users []models.User
	if err := ctl.db.Where("id IN ?", userIds).Find(&users).Error; err != nil {
		return nil, apperr.NewDependency("Failed to fetch comment authors", err)
	}
	authors := make(map[uint]models.User, len(users))
	for _, user := range users {
		authors[user.Id] = user
	}

	type countRow struct {
		TargetId uint
		Total    int64
	}
	likeCounts := make(map[uint]int64, len(ids))
	var likeRows []countRow
	err := ctl.db.Model(&models.Like{}).
		Select("target_id, COUNT(*) AS total").
		Where("target_type = ? AND target_id IN ?", models.TargetComment, ids).
		Group("target_id").Find(&likeRows).Error
	if err != nil {
		return nil, apperr.NewDependency("Failed to count likes", err)
	}
	for _, row := range likeRows {
		likeCounts[row.TargetId] = row.Total
	}

	replyCounts := make(map[uint]int64, len(ids))
	var replyRows []countRow
	err = ctl.db.Model(&models.Comment{}).
		Select("target_id, COUNT(*) AS total").
		Where("target_type = ? AND target_id IN ?", models.TargetComment, ids).
		Group("target_id").Find(&replyRows).Error
	if err != nil {
		return nil, apperr.NewDependency("Failed to count replies", err)
	}
	for _, row := range replyRows {
		replyCounts[row.TargetId] = row.Total
	}

	liked := make(map[uint]bool)
	if viewerId != 0 {
		var likes []models.Like
		err := ctl.db.Where("user_id = ? AND target_type = ? AND target_id IN ?",
			viewerId, models.TargetComment, ids).Find(&likes).Error
		if err != nil {
			return nil, apperr.NewDependency("Failed to resolve likes", err)
		}
		for _, like := range likes {
			liked[like.TargetId] = true
		}
	}

	for _, comment := range comments {
		view := CommentView{
			Id:           comment.Id,
			Content:      comment.Content,
			CreatedAt:    comment.CreatedAt,
			LikeCount:    likeCounts[comment.Id],
			RepliesCount: replyCounts[comment.Id],
			IsLiked:      liked[comment.Id],
		}
		if author, ok := authors[comment.UserId]; ok {
			view.User.Id = author.Id
			view.User.Username = author.Username
			view.User.AvatarURL = author.AvatarURL
		}
		views = append(views, view)
	}
	return views, nil
}

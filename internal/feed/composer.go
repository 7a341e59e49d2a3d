// Package feed builds annotated post listings: every summary carries the
// author, follower/like/comment counts and, when a viewer is known, the
// viewer-specific flags. Counts are computed in the listing query itself so a
// page is always internally consistent.
package feed

import (
	"errors"
	"strings"
	"time"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/models"

	"gorm.io/gorm"
)

type FilterKind int

const (
	All FilterKind = iota
	ByCategory
	BySearchTitle
	BySearchTitleAndCategory
	ByOwner
	ByFavoritesOf
	ByHistoryOf
	ReportedOnly
)

type Filter struct {
	Kind     FilterKind
	Category string
	Query    string
	UserId   uint
}

func AllPosts() Filter                { return Filter{Kind: All} }
func CategoryOf(category string) Filter {
	return Filter{Kind: ByCategory, Category: category}
}
func SearchTitle(query string) Filter { return Filter{Kind: BySearchTitle, Query: query} }
func SearchTitleAndCategory(query, category string) Filter {
	return Filter{Kind: BySearchTitleAndCategory, Query: query, Category: category}
}
func OwnedBy(userId uint) Filter     { return Filter{Kind: ByOwner, UserId: userId} }
func FavoritesOf(userId uint) Filter { return Filter{Kind: ByFavoritesOf, UserId: userId} }
func HistoryOf(userId uint) Filter   { return Filter{Kind: ByHistoryOf, UserId: userId} }
func Reported() Filter               { return Filter{Kind: ReportedOnly} }

type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) normalized() Pagination {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	return p
}

type AuthorSummary struct {
	Id        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// PostSummary is the feed projection of a post: thumbnail instead of the
// block list. Full content is only returned by the detail fetch.
type PostSummary struct {
	Id             uint          `json:"id"`
	Title          string        `json:"title"`
	Thumbnail      string        `json:"thumbnail"`
	Category       string        `json:"category"`
	Tags           []string      `json:"tags"`
	ViewsCount     uint          `json:"viewsCount"`
	CreatedAt      time.Time     `json:"createdAt"`
	Author         AuthorSummary `json:"author"`
	FollowersCount int64         `json:"followersCount"`
	LikeCount      int64         `json:"likeCount"`
	CommentCount   int64         `json:"commentCount"`
	ReportCount    int64         `json:"reportCount,omitempty"`
	IsLiked        bool          `json:"isLiked"`
}

type PostDetail struct {
	PostSummary
	Blocks     []models.Block `json:"blocks"`
	IsFavorite bool           `json:"isFavorite"`
	IsFollowed bool           `json:"isFollowed"`
}

type Page struct {
	Items      []PostSummary `json:"items"`
	TotalItems int64         `json:"totalItems"`
	TotalPages int           `json:"totalPages"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
}

type Composer struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewComposer(db *gorm.DB, cfg *config.Config) *Composer {
	return &Composer{db: db, cfg: cfg}
}

// summaryRow is the scan target of the listing query: the post row plus
// counts from correlated subqueries and the joined author columns.
type summaryRow struct {
	models.Post
	AuthorUsername  string
	AuthorAvatarURL string
	FollowersCount  int64
	LikeCount       int64
	CommentCount    int64
	ReportCount     int64
}

const summaryColumns = `posts.*,
	users.username AS author_username,
	users.avatar_url AS author_avatar_url,
	(SELECT COUNT(*) FROM follows WHERE follows.followed_to_id = posts.owner_id) AS followers_count,
	(SELECT COUNT(*) FROM likes WHERE likes.target_type = 'post' AND likes.target_id = posts.id) AS like_count,
	(SELECT COUNT(*) FROM comments WHERE comments.target_type = 'post' AND comments.target_id = posts.id) AS comment_count`

const unresolvedReports = `(SELECT COUNT(*) FROM reports WHERE reports.post_id = posts.id AND reports.resolved = false)`

// Compose resolves the filter, annotates every candidate post, orders and
// paginates. A viewerId of zero means anonymous: viewer flags stay false.
// The page either succeeds as a whole or the call fails.
func (c *Composer) Compose(f Filter, pg Pagination, viewerId uint) (*Page, error) {
	if err := c.validate(f); err != nil {
		return nil, err
	}
	pg = pg.normalized()

	if f.Kind == ByFavoritesOf || f.Kind == ByHistoryOf {
		return c.composeFromList(f, pg, viewerId)
	}

	var total int64
	if err := c.baseQuery(f).Count(&total).Error; err != nil {
		return nil, apperr.NewDependency("Failed to count posts", err)
	}

	order := "posts.created_at DESC"
	columns := summaryColumns
	if f.Kind == ReportedOnly {
		columns += ",\n\t" + unresolvedReports + " AS report_count"
		order = "report_count DESC"
	}

	var rows []summaryRow
	err := c.baseQuery(f).
		Select(columns).
		Joins("JOIN users ON users.id = posts.owner_id").
		Order(order).
		Offset((pg.Page - 1) * pg.Limit).
		Limit(pg.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.NewDependency("Failed to fetch posts", err)
	}

	items, err := c.project(rows, viewerId)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:      items,
		TotalItems: total,
		TotalPages: totalPages(total, pg.Limit),
		Page:       pg.Page,
		Limit:      pg.Limit,
	}, nil
}

func (c *Composer) validate(f Filter) error {
	switch f.Kind {
	case ByCategory, BySearchTitleAndCategory:
		if !c.cfg.HasCategory(f.Category) {
			return apperr.NewValidation("Unknown category: " + f.Category)
		}
	}
	switch f.Kind {
	case BySearchTitle, BySearchTitleAndCategory:
		if strings.TrimSpace(f.Query) == "" {
			return apperr.NewValidation("Search text is required")
		}
	case ByOwner, ByFavoritesOf, ByHistoryOf:
		if f.UserId == 0 {
			return apperr.NewValidation("User id is required")
		}
	}
	return nil
}

func (c *Composer) baseQuery(f Filter) *gorm.DB {
	q := c.db.Model(&models.Post{})
	switch f.Kind {
	case ByCategory:
		q = q.Where("posts.category = ?", strings.ToLower(f.Category))
	case BySearchTitle:
		q = q.Where("LOWER(posts.title) LIKE ?", "%"+strings.ToLower(f.Query)+"%")
	case BySearchTitleAndCategory:
		q = q.Where("LOWER(posts.title) LIKE ?", "%"+strings.ToLower(f.Query)+"%").
			Where("posts.category = ?", strings.ToLower(f.Category))
	case ByOwner:
		q = q.Where("posts.owner_id = ?", f.UserId)
	case ReportedOnly:
		q = q.Where(unresolvedReports + " > 0")
	}
	return q
}

// composeFromList serves the favorites and history filters. The user's list
// dictates the order (favorites: insertion order, history: most recently
// viewed first), so ordering and pagination happen after the fetch.
func (c *Composer) composeFromList(f Filter, pg Pagination, viewerId uint) (*Page, error) {
	var user models.User
	if err := c.db.First(&user, f.UserId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFound("User not found")
		}
		return nil, apperr.NewDependency("Failed to fetch user", err)
	}

	var ids []uint
	if f.Kind == ByFavoritesOf {
		ids = user.Favorites
	} else {
		// History appends on first view, so recency order is the reverse.
		for i := len(user.History) - 1; i >= 0; i-- {
			ids = append(ids, user.History[i])
		}
	}

	if len(ids) == 0 {
		return &Page{Items: []PostSummary{}, Page: pg.Page, Limit: pg.Limit}, nil
	}

	var rows []summaryRow
	err := c.db.Model(&models.Post{}).
		Select(summaryColumns).
		Joins("JOIN users ON users.id = posts.owner_id").
		Where("posts.id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.NewDependency("Failed to fetch posts", err)
	}

	byId := make(map[uint]summaryRow, len(rows))
	for _, row := range rows {
		byId[row.Post.Id] = row
	}

	// Ids referencing deleted posts drop out here.
	ordered := make([]summaryRow, 0, len(rows))
	for _, id := range ids {
		if row, ok := byId[id]; ok {
			ordered = append(ordered, row)
		}
	}

	total := int64(len(ordered))
	start := (pg.Page - 1) * pg.Limit
	if start > len(ordered) {
		start = len(ordered)
	}
	end := start + pg.Limit
	if end > len(ordered) {
		end = len(ordered)
	}

	items, err := c.project(ordered[start:end], viewerId)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:      items,
		TotalItems: total,
		TotalPages: totalPages(total, pg.Limit),
		Page:       pg.Page,
		Limit:      pg.Limit,
	}, nil
}

// project turns rows into summaries and batch-resolves the viewer's liked
// set with a single query for the whole page.
func (c *Composer) project(rows []summaryRow, viewerId uint) ([]PostSummary, error) {
	liked := map[uint]bool{}
	if viewerId != 0 && len(rows) > 0 {
		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.Post.Id)
		}
		var likes []models.Like
		err := c.db.Where("user_id = ? AND target_type = ? AND target_id IN ?",
			viewerId, models.TargetPost, ids).Find(&likes).Error
		if err != nil {
			return nil, apperr.NewDependency("Failed to resolve likes", err)
		}
		for _, like := range likes {
			liked[like.TargetId] = true
		}
	}

	items := make([]PostSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, c.summarize(row, liked[row.Post.Id]))
	}
	return items, nil
}

func (c *Composer) summarize(row summaryRow, isLiked bool) PostSummary {
	thumbnail := ""
	if len(row.Post.Blocks) > 0 {
		thumbnail = row.Post.Blocks[0].ImageURL
	}
	return PostSummary{
		Id:         row.Post.Id,
		Title:      row.Post.Title,
		Thumbnail:  thumbnail,
		Category:   row.Post.Category,
		Tags:       row.Post.Tags,
		ViewsCount: row.Post.ViewsCount,
		CreatedAt:  row.Post.CreatedAt,
		Author: AuthorSummary{
			Id:        row.Post.OwnerId,
			Username:  row.AuthorUsername,
			AvatarURL: row.AuthorAvatarURL,
		},
		FollowersCount: row.FollowersCount,
		LikeCount:      row.LikeCount,
		CommentCount:   row.CommentCount,
		ReportCount:    row.ReportCount,
		IsLiked:        isLiked,
	}
}

// Detail fetches one post with its full block list and viewer flags. As side
// effects it increments the view counter and, for a known viewer, inserts the
// post into the viewer's history. Re-viewing a post already in history is a
// no-op: the entry keeps its original position.
func (c *Composer) Detail(postId uint, viewerId uint) (*PostDetail, error) {
	var row summaryRow
	err := c.db.Model(&models.Post{}).
		Select(summaryColumns).
		Joins("JOIN users ON users.id = posts.owner_id").
		Where("posts.id = ?", postId).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFound("Post not found")
		}
		return nil, apperr.NewDependency("Failed to fetch post", err)
	}

	if err := c.db.Model(&models.Post{}).Where("id = ?", postId).
		UpdateColumn("views_count", gorm.Expr("views_count + 1")).Error; err != nil {
		return nil, apperr.NewDependency("Failed to update view count", err)
	}

	detail := &PostDetail{
		PostSummary: c.summarize(row, false),
		Blocks:      row.Post.Blocks,
	}

	if viewerId == 0 {
		return detail, nil
	}

	var viewer models.User
	if err := c.db.First(&viewer, viewerId).Error; err != nil {
		return nil, apperr.NewDependency("Failed to fetch viewer", err)
	}

	var like models.Like
	if err := c.db.Where("user_id = ? AND target_type = ? AND target_id = ?",
		viewerId, models.TargetPost, postId).First(&like).Error; err == nil {
		detail.IsLiked = true
	}

	for _, id := range viewer.Favorites {
		if id == postId {
			detail.IsFavorite = true
			break
		}
	}

	var follow models.Follow
	if err := c.db.Where("followed_by_id = ? AND followed_to_id = ?",
		viewerId, row.Post.OwnerId).First(&follow).Error; err == nil {
		detail.IsFollowed = true
	}

	inHistory := false
	for _, id := range viewer.History {
		if id == postId {
			inHistory = true
			break
		}
	}
	if !inHistory {
		viewer.History = append(viewer.History, postId)
		if err := c.db.Save(&viewer).Error; err != nil {
			return nil, apperr.NewDependency("Failed to update history", err)
		}
	}

	return detail, nil
}

func totalPages(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

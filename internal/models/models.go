package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

const (
	BlockText  = "text"
	BlockImage = "image"
	BlockCode  = "code"
)

// Block is one segment of a post body. Type selects which of the remaining
// fields is meaningful. The first block of every post is an image block and
// doubles as the feed thumbnail.
type Block struct {
	Type     string `json:"type"`
	HTML     string `json:"html,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

type User struct {
	Id         uint                        `json:"id"`
	Username   string                      `gorm:"size:64;uniqueIndex" json:"username"`
	Email      string                      `gorm:"size:255;uniqueIndex" json:"email"`
	Password   []byte                      `json:"-"`
	Bio        string                      `json:"bio"`
	AvatarURL  string                      `json:"avatarUrl"`
	Interests  datatypes.JSONSlice[string] `json:"interests"`
	Role       string                      `gorm:"size:20;default:reader" json:"role"`
	IsVerified bool                        `json:"isVerified"`

	OtpCode      string     `gorm:"size:16" json:"-"`
	OtpExpiresAt *time.Time `json:"-"`
	OtpAttempts  int        `json:"-"`

	RefreshTokenHash string     `gorm:"size:64" json:"-"`
	ResetTokenHash   []byte     `json:"-"`
	ResetExpiresAt   *time.Time `json:"-"`

	// History keeps viewed post ids in view order (oldest first, no
	// duplicates). Favorites keeps favorited post ids in insertion order.
	History   datatypes.JSONSlice[uint] `json:"-"`
	Favorites datatypes.JSONSlice[uint] `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

type Post struct {
	Id         uint                        `json:"id"`
	OwnerId    uint                        `gorm:"index" json:"ownerId"`
	Title      string                      `gorm:"size:255" json:"title"`
	Blocks     datatypes.JSONSlice[Block]  `json:"blocks"`
	Category   string                      `gorm:"size:64;index" json:"category"`
	Tags       datatypes.JSONSlice[string] `json:"tags"`
	ViewsCount uint                        `json:"viewsCount"`
	CreatedAt  time.Time                   `json:"createdAt"`

	Owner User `gorm:"foreignKey:OwnerId" json:"-"`
}

// Follow is a directed edge: FollowedById follows FollowedToId. Presence of
// the row means "following"; the unique index is the safety net under
// concurrent duplicate toggles.
type Follow struct {
	Id           uint      `json:"id"`
	FollowedById uint      `gorm:"uniqueIndex:idx_follow_pair" json:"followedById"`
	FollowedToId uint      `gorm:"uniqueIndex:idx_follow_pair" json:"followedToId"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	TargetPost    = "post"
	TargetComment = "comment"
)

// Target names exactly one likeable/commentable entity.
type Target struct {
	Type string
	Id   uint
}

func PostTarget(id uint) Target    { return Target{Type: TargetPost, Id: id} }
func CommentTarget(id uint) Target { return Target{Type: TargetComment, Id: id} }

type Like struct {
	Id         uint      `json:"id"`
	UserId     uint      `gorm:"uniqueIndex:idx_like_target" json:"userId"`
	TargetType string    `gorm:"size:16;uniqueIndex:idx_like_target" json:"targetType"`
	TargetId   uint      `gorm:"uniqueIndex:idx_like_target" json:"targetId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Comment targets either a post (top level) or a top-level comment (reply).
// Replies to replies are rejected at the service layer.
type Comment struct {
	Id         uint      `json:"id"`
	UserId     uint      `gorm:"index" json:"userId"`
	TargetType string    `gorm:"size:16;index:idx_comment_target" json:"targetType"`
	TargetId   uint      `gorm:"index:idx_comment_target" json:"targetId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`

	User User `gorm:"foreignKey:UserId" json:"-"`
}

type Report struct {
	Id        uint      `json:"id"`
	UserId    uint      `gorm:"index" json:"userId"`
	PostId    uint      `gorm:"index" json:"postId"`
	Title     string    `gorm:"size:255" json:"title"`
	Content   string    `json:"content"`
	Resolved  bool      `gorm:"default:false" json:"resolved"`
	CreatedAt time.Time `json:"createdAt"`
}

package controllers

type DataResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

type FileResponse struct {
	Filename string `json:"filename"`
	Url      string `json:"url"`
}

type LoginRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Password string `json:"password" example:"secret123"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" example:"user@example.com"`
	Code  string `json:"code" example:"482913"`
}

type EmailRequest struct {
	Email string `json:"email" example:"user@example.com"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email" example:"user@example.com"`
	Token           string `json:"token"`
	Password        string `json:"password" example:"secret123"`
	ConfirmPassword string `json:"confirmPassword" example:"secret123"`
}

type GoogleLoginRequest struct {
	IdToken string `json:"idToken"`
}

type EditProfileRequest struct {
	Bio       *string  `json:"bio"`
	AvatarURL *string  `json:"avatarUrl"`
	Interests []string `json:"interests"`
}

type BlockRequest struct {
	Type     string `json:"type" example:"text"`
	HTML     string `json:"html"`
	ImageURL string `json:"imageUrl"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

type CreatePostRequest struct {
	Title    string         `json:"title" example:"Today's news"`
	Category string         `json:"category" example:"technology"`
	Tags     []string       `json:"tags"`
	Blocks   []BlockRequest `json:"blocks"`
}

type EditPostRequest struct {
	Title    string         `json:"title"`
	Category string         `json:"category"`
	Tags     []string       `json:"tags"`
	Blocks   []BlockRequest `json:"blocks"`
}

type AdminDeletePostRequest struct {
	Reason string `json:"reason" example:"Spam content"`
}

type CreateCommentRequest struct {
	PostId   *uint  `json:"postId"`
	ParentId *uint  `json:"parentId"`
	Content  string `json:"content"`
}

type LikeRequest struct {
	PostId    *uint `json:"postId"`
	CommentId *uint `json:"commentId"`
}

type CreateReportRequest struct {
	PostId  uint   `json:"postId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

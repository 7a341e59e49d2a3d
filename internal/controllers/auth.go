package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/middleware"
	"inkwell-backend/internal/models"
	"inkwell-backend/internal/session"
	"inkwell-backend/internal/storage"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const refreshCookieName = "refreshToken"

type AuthController struct {
	sessions *session.Manager
	cfg      *config.Config
	db       *gorm.DB
}

func NewAuthController(sessions *session.Manager, cfg *config.Config, db *gorm.DB) *AuthController {
	return &AuthController{sessions: sessions, cfg: cfg, db: db}
}

// Register accepts a multipart form: username, email, password, bio,
// interests (comma separated) and the avatar file. The avatar only reaches
// storage once the rest of the registration has been accepted.
func (ctl *AuthController) Register(c fiber.Ctx) error {
	user, err := ctl.sessions.Register(session.RegisterParams{
		Username:  c.FormValue("username"),
		Email:     c.FormValue("email"),
		Password:  c.FormValue("password"),
		Bio:       c.FormValue("bio"),
		Interests: splitTrimmed(c.FormValue("interests")),
		UploadAvatar: func() (string, error) {
			return ctl.uploadAvatar(c)
		},
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(DataResponse[*models.User]{
		Success: true,
		Data:    user,
		Message: "Verification code sent",
	})
}

func (ctl *AuthController) Login(c fiber.Ctx) error {
	var data LoginRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.Email == "" || data.Password == "" {
		return apperr.NewValidation("Email and password are required")
	}

	user, err := ctl.sessions.Login(data.Email, data.Password)
	if err != nil {
		return err
	}

	return c.JSON(DataResponse[*models.User]{
		Success: true,
		Data:    user,
		Message: "Verification code sent",
	})
}

func (ctl *AuthController) VerifyOtp(c fiber.Ctx) error {
	var data VerifyOtpRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.Email == "" || data.Code == "" {
		return apperr.NewValidation("Email and code are required")
	}

	creds, err := ctl.sessions.VerifyOtp(data.Email, data.Code)
	if err != nil {
		return err
	}

	return ctl.respondWithCredentials(c, creds)
}

func (ctl *AuthController) GoogleLogin(c fiber.Ctx) error {
	var data GoogleLoginRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.IdToken == "" {
		return apperr.NewValidation("Id token is required")
	}

	creds, err := ctl.sessions.FederatedLogin(data.IdToken)
	if err != nil {
		return err
	}

	return ctl.respondWithCredentials(c, creds)
}

func (ctl *AuthController) Refresh(c fiber.Ctx) error {
	creds, err := ctl.sessions.Renew(c.Cookies(refreshCookieName))
	if err != nil {
		return err
	}

	return ctl.respondWithCredentials(c, creds)
}

func (ctl *AuthController) Logout(c fiber.Ctx) error {
	if err := ctl.sessions.Logout(c.Cookies(refreshCookieName)); err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   ctl.cfg.Production,
		Path:     "/",
	})

	return c.JSON(MessageResponse{
		Success: true,
		Message: "Logged out",
	})
}

func (ctl *AuthController) ForgotPassword(c fiber.Ctx) error {
	var data EmailRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.Email == "" {
		return apperr.NewValidation("Email is required")
	}

	if err := ctl.sessions.ForgotPassword(data.Email); err != nil {
		return err
	}

	return c.JSON(MessageResponse{
		Success: true,
		Message: "Reset link sent",
	})
}

func (ctl *AuthController) ResetPassword(c fiber.Ctx) error {
	var data ResetPasswordRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}
	if data.Email == "" || data.Token == "" {
		return apperr.NewValidation("Email and token are required")
	}

	if err := ctl.sessions.ResetPassword(data.Email, data.Token, data.Password, data.ConfirmPassword); err != nil {
		return err
	}

	return c.JSON(MessageResponse{
		Success: true,
		Message: "Password updated",
	})
}

// GetUser serves a public author profile: the sanitized user row, the
// follower count and, for a known viewer, whether they follow the author.
func (ctl *AuthController) GetUser(c fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}

	var user models.User
	if err := ctl.db.First(&user, id).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	var followers int64
	if err := ctl.db.Model(&models.Follow{}).Where("followed_to_id = ?", id).
		Count(&followers).Error; err != nil {
		return apperr.NewDependency("Failed to count followers", err)
	}

	isFollowed := false
	if viewerId := middleware.UserId(c); viewerId != 0 {
		var follow models.Follow
		if err := ctl.db.Where("followed_by_id = ? AND followed_to_id = ?",
			viewerId, id).First(&follow).Error; err == nil {
			isFollowed = true
		}
	}

	return c.JSON(DataResponse[fiber.Map]{
		Success: true,
		Data: fiber.Map{
			"user":           user,
			"followersCount": followers,
			"isFollowed":     isFollowed,
		},
	})
}

func (ctl *AuthController) Me(c fiber.Ctx) error {
	var user models.User
	if err := ctl.db.First(&user, middleware.UserId(c)).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	return c.JSON(DataResponse[*models.User]{
		Success: true,
		Data:    &user,
	})
}

func (ctl *AuthController) EditProfile(c fiber.Ctx) error {
	var data EditProfileRequest
	if err := json.Unmarshal(c.Body(), &data); err != nil {
		return apperr.NewValidation("Invalid request body")
	}

	var user models.User
	if err := ctl.db.First(&user, middleware.UserId(c)).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	if data.Bio != nil {
		user.Bio = *data.Bio
	}
	if data.AvatarURL != nil && *data.AvatarURL != "" {
		user.AvatarURL = *data.AvatarURL
	}
	if data.Interests != nil {
		if len(data.Interests) < ctl.cfg.MinInterests {
			return apperr.NewValidation(fmt.Sprintf("At least %d interests are required", ctl.cfg.MinInterests))
		}
		interests := make([]string, 0, len(data.Interests))
		for _, interest := range data.Interests {
			interest = strings.ToLower(strings.TrimSpace(interest))
			if !ctl.cfg.HasCategory(interest) {
				return apperr.NewValidation("Unknown interest: " + interest)
			}
			interests = append(interests, interest)
		}
		user.Interests = interests
	}

	if err := ctl.db.Save(&user).Error; err != nil {
		return apperr.NewDependency("Failed to update profile", err)
	}

	return c.JSON(DataResponse[*models.User]{
		Success: true,
		Data:    &user,
	})
}

func (ctl *AuthController) respondWithCredentials(c fiber.Ctx, creds *session.Credentials) error {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    creds.RefreshToken,
		MaxAge:   int(ctl.cfg.RefreshTokenTTL.Seconds()),
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   ctl.cfg.Production,
		Path:     "/",
	})

	return c.JSON(DataResponse[fiber.Map]{
		Success: true,
		Data: fiber.Map{
			"token": creds.AccessToken,
			"user":  creds.User,
		},
	})
}

func (ctl *AuthController) uploadAvatar(c fiber.Ctx) (string, error) {
	file, err := c.FormFile("avatar")
	if err != nil {
		return "", apperr.NewValidation("Avatar image is required")
	}

	src, err := file.Open()
	if err != nil {
		return "", apperr.NewDependency("Failed to open uploaded file", err)
	}
	defer src.Close()

	buffer := make([]byte, 512)
	n, _ := src.Read(buffer)
	if _, err := src.Seek(0, 0); err != nil {
		return "", apperr.NewDependency("Failed to rewind uploaded file", err)
	}
	mimeType := http.DetectContentType(buffer[:n])
	if !strings.HasPrefix(mimeType, "image/") {
		return "", apperr.NewValidation("Avatar must be an image")
	}

	filename := "avatars/" + uuid.New().String() + filepath.Ext(file.Filename)
	return storage.UploadFile(c.Context(), filename, src, file.Size, mimeType)
}

func splitTrimmed(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

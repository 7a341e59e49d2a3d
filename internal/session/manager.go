// Package session owns the credential lifecycle: registration, password
// login with an emailed one-time code, access/refresh token issuance with
// rotation, password reset and federated login.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/mail"
	"inkwell-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 14

// IdentityClaims is what a federated identity provider asserts about a user.
type IdentityClaims struct {
	Email   string
	Name    string
	Picture string
}

// IDTokenVerifier verifies a provider-issued identity token.
type IDTokenVerifier interface {
	Verify(idToken string) (*IdentityClaims, error)
}

type Manager struct {
	db       *gorm.DB
	cfg      *config.Config
	mail     mail.EmailSender
	verifier IDTokenVerifier
}

func NewManager(db *gorm.DB, cfg *config.Config, sender mail.EmailSender, verifier IDTokenVerifier) *Manager {
	return &Manager{db: db, cfg: cfg, mail: sender, verifier: verifier}
}

type RegisterParams struct {
	Username  string
	Email     string
	Password  string
	Bio       string
	Interests []string

	// UploadAvatar stores the avatar and returns its durable URL. It runs
	// only after every other check has passed, so a rejected registration
	// never leaves an orphaned object behind.
	UploadAvatar func() (string, error)
}

// Credentials is the result of a completed authentication step. The caller
// puts AccessToken in the response body and RefreshToken in the cookie.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// Register creates an unverified user and dispatches the first OTP. The user
// row is committed before the email goes out; a failed send surfaces as a
// Dependency error without rolling the row back.
func (m *Manager) Register(p RegisterParams) (*models.User, error) {
	username := strings.TrimSpace(p.Username)
	emailAddr := strings.ToLower(strings.TrimSpace(p.Email))

	if username == "" || emailAddr == "" || p.Password == "" {
		return nil, apperr.NewValidation("Username, email and password are required")
	}
	if len(p.Password) < 8 {
		return nil, apperr.NewValidation("Password must be at least 8 characters")
	}
	if p.UploadAvatar == nil {
		return nil, apperr.NewValidation("Avatar image is required")
	}
	if len(p.Interests) < m.cfg.MinInterests {
		return nil, apperr.NewValidation(fmt.Sprintf("At least %d interests are required", m.cfg.MinInterests))
	}
	interests := make([]string, 0, len(p.Interests))
	for _, interest := range p.Interests {
		interest = strings.ToLower(strings.TrimSpace(interest))
		if !m.cfg.HasCategory(interest) {
			return nil, apperr.NewValidation("Unknown interest: " + interest)
		}
		interests = append(interests, interest)
	}

	var existing models.User
	if err := m.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil, apperr.NewConflict("Username already taken")
	}
	if err := m.db.Where("email = ?", emailAddr).First(&existing).Error; err == nil {
		return nil, apperr.NewConflict("Email already registered")
	}

	avatarURL, err := p.UploadAvatar()
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcryptCost)
	if err != nil {
		return nil, apperr.NewDependency("Could not hash password", err)
	}

	user := models.User{
		Username:  username,
		Email:     emailAddr,
		Password:  hash,
		Bio:       p.Bio,
		AvatarURL: avatarURL,
		Interests: interests,
		Role:      models.RoleReader,
	}

	if err := m.db.Create(&user).Error; err != nil {
		return nil, apperr.NewDependency("Failed to create user", err)
	}

	if err := m.issueOtp(&user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Login checks the password and dispatches a fresh OTP. Tokens are not issued
// until the code is verified.
func (m *Manager) Login(emailAddr, password string) (*models.User, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	var user models.User
	if err := m.db.Where("email = ?", emailAddr).First(&user).Error; err != nil {
		return nil, apperr.NewNotFound("User not found")
	}

	if len(user.Password) == 0 {
		return nil, apperr.NewUnauthorized("This account uses federated login")
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		return nil, apperr.NewUnauthorized("Incorrect password")
	}

	if err := m.issueOtp(&user); err != nil {
		return nil, err
	}

	return &user, nil
}

// VerifyOtp consumes the pending code. Three misses lock the code out until a
// new one is generated; an expired code is cleared on sight. Success marks
// the email verified and issues the token pair.
func (m *Manager) VerifyOtp(emailAddr, code string) (*Credentials, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	var user models.User
	if err := m.db.Where("email = ?", emailAddr).First(&user).Error; err != nil {
		return nil, apperr.NewNotFound("User not found")
	}

	if user.OtpCode == "" || user.OtpExpiresAt == nil {
		return nil, apperr.NewUnauthorized("No verification code pending")
	}
	if user.OtpAttempts <= 0 {
		return nil, apperr.NewUnauthorized("Too many attempts, request a new code")
	}
	if time.Now().After(*user.OtpExpiresAt) {
		m.clearOtp(&user)
		if err := m.db.Save(&user).Error; err != nil {
			return nil, apperr.NewDependency("Failed to update user", err)
		}
		return nil, apperr.NewUnauthorized("Verification code expired")
	}
	if user.OtpCode != code {
		user.OtpAttempts--
		if err := m.db.Save(&user).Error; err != nil {
			return nil, apperr.NewDependency("Failed to update user", err)
		}
		return nil, apperr.NewUnauthorized("Incorrect verification code")
	}

	user.IsVerified = true
	m.clearOtp(&user)

	return m.issueCredentials(&user)
}

// Renew rotates both credentials. The presented refresh token must pass the
// signature and expiry check and match the hash stored on the user row, so a
// rotated-out token is rejected even before its own expiry.
func (m *Manager) Renew(refreshToken string) (*Credentials, error) {
	if refreshToken == "" {
		return nil, apperr.NewUnauthorized("Refresh token missing")
	}

	userId, err := m.parseToken(refreshToken)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := m.db.First(&user, userId).Error; err != nil {
		return nil, apperr.NewUnauthorized("Unauthenticated")
	}

	if user.RefreshTokenHash == "" || hashToken(refreshToken) != user.RefreshTokenHash {
		return nil, apperr.NewUnauthorized("Refresh token revoked")
	}

	return m.issueCredentials(&user)
}

// Logout clears the stored refresh hash. Only the currently stored refresh
// token may end the session; access tokens already issued stay valid until
// their own expiry.
func (m *Manager) Logout(refreshToken string) error {
	if refreshToken == "" {
		return apperr.NewUnauthorized("Refresh token missing")
	}

	userId, err := m.parseToken(refreshToken)
	if err != nil {
		return err
	}

	var user models.User
	if err := m.db.First(&user, userId).Error; err != nil {
		return apperr.NewUnauthorized("Unauthenticated")
	}

	if user.RefreshTokenHash == "" || hashToken(refreshToken) != user.RefreshTokenHash {
		return apperr.NewUnauthorized("Refresh token revoked")
	}

	user.RefreshTokenHash = ""
	if err := m.db.Save(&user).Error; err != nil {
		return apperr.NewDependency("Failed to update user", err)
	}
	return nil
}

// ForgotPassword stores a salted hash of a single-use token and emails the
// raw value as a reset link. The raw token is never persisted.
func (m *Manager) ForgotPassword(emailAddr string) error {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	var user models.User
	if err := m.db.Where("email = ?", emailAddr).First(&user).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	token := uuid.New().String()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return apperr.NewDependency("Could not hash reset token", err)
	}

	expires := time.Now().Add(m.cfg.ResetTokenTTL)
	user.ResetTokenHash = hash
	user.ResetExpiresAt = &expires
	if err := m.db.Save(&user).Error; err != nil {
		return apperr.NewDependency("Failed to update user", err)
	}

	link := fmt.Sprintf("%s/reset-password?email=%s&token=%s", m.cfg.FrontendURL, user.Email, token)
	content := fmt.Sprintf(`<p>Hello %s,</p>
<p>You requested a password reset. The link below is valid for %s:</p>
<p><a href="%s">Reset your password</a></p>
<p>If you did not request this, you can ignore this email.</p>`,
		user.Username, m.cfg.ResetTokenTTL, link)

	if err := m.mail.SendEmail("Reset your password", content, []string{user.Email}); err != nil {
		slog.Error("reset email dispatch failed", "user", user.Id, "error", err)
		return apperr.NewDependency("Failed to send reset email", err)
	}
	return nil
}

// ResetPassword consumes the reset token and replaces the password hash.
func (m *Manager) ResetPassword(emailAddr, token, newPassword, confirmPassword string) error {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	if newPassword == "" || newPassword != confirmPassword {
		return apperr.NewValidation("Passwords do not match")
	}
	if len(newPassword) < 8 {
		return apperr.NewValidation("Password must be at least 8 characters")
	}

	var user models.User
	if err := m.db.Where("email = ?", emailAddr).First(&user).Error; err != nil {
		return apperr.NewNotFound("User not found")
	}

	if len(user.ResetTokenHash) == 0 || user.ResetExpiresAt == nil {
		return apperr.NewUnauthorized("No reset token pending")
	}
	if time.Now().After(*user.ResetExpiresAt) {
		user.ResetTokenHash = nil
		user.ResetExpiresAt = nil
		if err := m.db.Save(&user).Error; err != nil {
			return apperr.NewDependency("Failed to update user", err)
		}
		return apperr.NewUnauthorized("Reset token expired")
	}
	if err := bcrypt.CompareHashAndPassword(user.ResetTokenHash, []byte(token)); err != nil {
		return apperr.NewUnauthorized("Invalid reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return apperr.NewDependency("Could not hash password", err)
	}

	user.Password = hash
	user.ResetTokenHash = nil
	user.ResetExpiresAt = nil
	if err := m.db.Save(&user).Error; err != nil {
		return apperr.NewDependency("Failed to update user", err)
	}
	return nil
}

// FederatedLogin verifies a provider identity token and finds or creates the
// user keyed by the asserted email. New users arrive pre-verified with no
// password and no interests; the OTP step is skipped entirely.
func (m *Manager) FederatedLogin(idToken string) (*Credentials, error) {
	claims, err := m.verifier.Verify(idToken)
	if err != nil {
		return nil, apperr.NewUnauthorized("Identity token verification failed")
	}

	emailAddr := strings.ToLower(strings.TrimSpace(claims.Email))
	if emailAddr == "" {
		return nil, apperr.NewUnauthorized("Identity token carries no email")
	}

	var user models.User
	err = m.db.Where("email = ?", emailAddr).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Username:   m.availableUsername(claims),
			Email:      emailAddr,
			AvatarURL:  claims.Picture,
			Role:       models.RoleReader,
			IsVerified: true,
		}
		if err := m.db.Create(&user).Error; err != nil {
			return nil, apperr.NewDependency("Failed to create user", err)
		}
	} else if err != nil {
		return nil, apperr.NewDependency("Failed to look up user", err)
	}

	return m.issueCredentials(&user)
}

func (m *Manager) availableUsername(claims *IdentityClaims) string {
	base := strings.TrimSpace(claims.Name)
	if base == "" {
		base = strings.Split(claims.Email, "@")[0]
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", ""))

	candidate := base
	for i := 0; ; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		var existing models.User
		if err := m.db.Where("username = ?", candidate).First(&existing).Error; err != nil {
			return candidate
		}
	}
}

// issueOtp generates a fresh numeric code with a full attempt budget, commits
// it and dispatches it by email.
func (m *Manager) issueOtp(user *models.User) error {
	code, err := generateOtp()
	if err != nil {
		return apperr.NewDependency("Could not generate verification code", err)
	}

	expires := time.Now().Add(m.cfg.OtpTTL)
	user.OtpCode = code
	user.OtpExpiresAt = &expires
	user.OtpAttempts = m.cfg.OtpAttempts

	if err := m.db.Save(user).Error; err != nil {
		return apperr.NewDependency("Failed to store verification code", err)
	}

	content := fmt.Sprintf(`<p>Hello %s,</p>
<p>Your verification code is:</p>
<h2>%s</h2>
<p>The code is valid for %s.</p>`, user.Username, code, m.cfg.OtpTTL)

	if err := m.mail.SendEmail("Your verification code", content, []string{user.Email}); err != nil {
		slog.Error("otp email dispatch failed", "user", user.Id, "error", err)
		return apperr.NewDependency("Failed to send verification email", err)
	}
	return nil
}

func (m *Manager) clearOtp(user *models.User) {
	user.OtpCode = ""
	user.OtpExpiresAt = nil
	user.OtpAttempts = 0
}

// issueCredentials signs a fresh token pair and persists the rotated refresh
// hash together with any pending field changes on the user.
func (m *Manager) issueCredentials(user *models.User) (*Credentials, error) {
	now := time.Now()
	issuer := strconv.Itoa(int(user.Id))

	accessClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"exp": now.Add(m.cfg.AccessTokenTTL).Unix(),
	})
	accessToken, err := accessClaims.SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		return nil, apperr.NewDependency("Could not sign access token", err)
	}

	// jti makes every rotation produce a distinct token even within the
	// same second.
	refreshClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"jti": uuid.New().String(),
		"exp": now.Add(m.cfg.RefreshTokenTTL).Unix(),
	})
	refreshToken, err := refreshClaims.SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		return nil, apperr.NewDependency("Could not sign refresh token", err)
	}

	user.RefreshTokenHash = hashToken(refreshToken)
	if err := m.db.Save(user).Error; err != nil {
		return nil, apperr.NewDependency("Failed to update user", err)
	}

	return &Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (m *Manager) parseToken(tokenString string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, apperr.NewUnauthorized("Unauthenticated")
	}

	strId, ok := token.Claims.(jwt.MapClaims)["iss"].(string)
	if !ok {
		return 0, apperr.NewUnauthorized("Invalid token")
	}
	id, err := strconv.ParseUint(strId, 10, 32)
	if err != nil {
		return 0, apperr.NewUnauthorized("Invalid issuer id")
	}
	return uint(id), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

func generateOtp() (string, error) {
	var code strings.Builder
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code.WriteString(n.String())
	}
	return code.String(), nil
}

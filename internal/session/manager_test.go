package session

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"
	"time"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/models"
	"inkwell-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sentEmail struct {
	subject string
	content string
	to      []string
}

type fakeSender struct {
	emails []sentEmail
	fail   bool
}

func (f *fakeSender) SendEmail(subject, content string, to []string) error {
	if f.fail {
		return fmt.Errorf("smtp unavailable")
	}
	f.emails = append(f.emails, sentEmail{subject: subject, content: content, to: to})
	return nil
}

type fakeVerifier struct {
	claims *IdentityClaims
	err    error
}

func (f *fakeVerifier) Verify(string) (*IdentityClaims, error) {
	return f.claims, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-secret-key",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 360 * time.Hour,
		OtpTTL:          10 * time.Minute,
		OtpAttempts:     3,
		ResetTokenTTL:   time.Hour,
		MinInterests:    3,
		Categories:      []string{"technology", "science", "travel", "food"},
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	return db
}

func setupManager(t *testing.T) (*Manager, *gorm.DB, *fakeSender) {
	t.Helper()
	db := setupTestDB(t)
	sender := &fakeSender{}
	m := NewManager(db, testConfig(), sender, &fakeVerifier{})
	return m, db, sender
}

// seedUser creates a verified user with a cheap hash so tests stay fast.
func seedUser(t *testing.T, db *gorm.DB, username, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Username:   username,
		Email:      email,
		Password:   hash,
		Interests:  []string{"technology", "science", "travel"},
		Role:       models.RoleReader,
		IsVerified: true,
		AvatarURL:  "http://assets/avatar.png",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func validParams() RegisterParams {
	return RegisterParams{
		Username:  "johndoe",
		Email:     "John@Example.com",
		Password:  "secret123",
		Interests: []string{"technology", "science", "travel"},
		UploadAvatar: func() (string, error) {
			return "http://assets/avatar.png", nil
		},
	}
}

func TestRegisterValidation(t *testing.T) {
	m, _, _ := setupManager(t)

	tests := []struct {
		name    string
		mutate  func(*RegisterParams)
		message string
	}{
		{
			name:    "missing username",
			mutate:  func(p *RegisterParams) { p.Username = "" },
			message: "Username, email and password are required",
		},
		{
			name:    "short password",
			mutate:  func(p *RegisterParams) { p.Password = "short" },
			message: "Password must be at least 8 characters",
		},
		{
			name:    "missing avatar",
			mutate:  func(p *RegisterParams) { p.UploadAvatar = nil },
			message: "Avatar image is required",
		},
		{
			name:    "two interests",
			mutate:  func(p *RegisterParams) { p.Interests = []string{"technology", "science"} },
			message: "At least 3 interests are required",
		},
		{
			name:    "unknown interest",
			mutate:  func(p *RegisterParams) { p.Interests = []string{"technology", "science", "astrology"} },
			message: "Unknown interest: astrology",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := m.Register(p)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.Validation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRegisterSuccess(t *testing.T) {
	m, db, sender := setupManager(t)

	user, err := m.Register(validParams())
	require.NoError(t, err)

	assert.Equal(t, "johndoe", user.Username)
	assert.Equal(t, "john@example.com", user.Email)
	assert.False(t, user.IsVerified)
	assert.NotEqual(t, []byte("secret123"), user.Password)

	var stored models.User
	require.NoError(t, db.First(&stored, user.Id).Error)
	assert.Len(t, stored.OtpCode, 6)
	assert.Equal(t, 3, stored.OtpAttempts)
	require.NotNil(t, stored.OtpExpiresAt)
	assert.True(t, stored.OtpExpiresAt.After(time.Now()))

	require.Len(t, sender.emails, 1)
	assert.Equal(t, []string{"john@example.com"}, sender.emails[0].to)
	assert.Contains(t, sender.emails[0].content, stored.OtpCode)
}

func TestRegisterUploadsAvatarLast(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "taken", "taken@example.com", "secret123")

	uploads := 0
	countingUpload := func() (string, error) {
		uploads++
		return "http://assets/avatar.png", nil
	}

	// Neither a validation failure nor a uniqueness conflict touches storage.
	p := validParams()
	p.Interests = []string{"technology"}
	p.UploadAvatar = countingUpload
	_, err := m.Register(p)
	require.Error(t, err)
	assert.Equal(t, 0, uploads)

	p = validParams()
	p.Username = "taken"
	p.UploadAvatar = countingUpload
	_, err = m.Register(p)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.Equal(t, 0, uploads)

	// A failed upload leaves no user row behind.
	p = validParams()
	p.UploadAvatar = func() (string, error) {
		return "", apperr.NewDependency("File upload error", fmt.Errorf("bucket unavailable"))
	}
	_, err = m.Register(p)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Dependency))
	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "john@example.com").Count(&count).Error)
	assert.EqualValues(t, 0, count)

	// Success uploads exactly once and stores the returned URL.
	p = validParams()
	p.UploadAvatar = countingUpload
	user, err := m.Register(p)
	require.NoError(t, err)
	assert.Equal(t, 1, uploads)
	assert.Equal(t, "http://assets/avatar.png", user.AvatarURL)
}

func TestRegisterDuplicate(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	_, err := m.Register(validParams())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	p := validParams()
	p.Username = "other"
	_, err = m.Register(p)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestRegisterMailFailureKeepsUser(t *testing.T) {
	m, db, sender := setupManager(t)
	sender.fail = true

	_, err := m.Register(validParams())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Dependency))

	// The write committed before the send; the row is still there with a
	// pending code.
	var stored models.User
	require.NoError(t, db.Where("email = ?", "john@example.com").First(&stored).Error)
	assert.NotEmpty(t, stored.OtpCode)
}

func TestLogin(t *testing.T) {
	m, db, sender := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	_, err := m.Login("missing@example.com", "secret123")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = m.Login("john@example.com", "wrongpass")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	user, err := m.Login("John@Example.com ", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, user.OtpCode)
	assert.Equal(t, 3, user.OtpAttempts)
	require.Len(t, sender.emails, 1)
}

func TestVerifyOtpSuccess(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	user, err := m.Login("john@example.com", "secret123")
	require.NoError(t, err)

	creds, err := m.VerifyOtp("john@example.com", user.OtpCode)
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)
	assert.NotEmpty(t, creds.RefreshToken)

	var stored models.User
	require.NoError(t, db.First(&stored, user.Id).Error)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.OtpCode)
	assert.Nil(t, stored.OtpExpiresAt)

	sum := sha256.Sum256([]byte(creds.RefreshToken))
	assert.Equal(t, fmt.Sprintf("%x", sum), stored.RefreshTokenHash)
}

func TestVerifyOtpLockout(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	user, err := m.Login("john@example.com", "secret123")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = m.VerifyOtp("john@example.com", "000000")
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
	}

	// Budget exhausted: even the correct code is refused now.
	_, err = m.VerifyOtp("john@example.com", user.OtpCode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many attempts")

	// A fresh login issues a new code with a fresh budget.
	user, err = m.Login("john@example.com", "secret123")
	require.NoError(t, err)
	_, err = m.VerifyOtp("john@example.com", user.OtpCode)
	require.NoError(t, err)
}

func TestVerifyOtpExpired(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	user, err := m.Login("john@example.com", "secret123")
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.Id).
		Update("otp_expires_at", past).Error)

	_, err = m.VerifyOtp("john@example.com", user.OtpCode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")

	var stored models.User
	require.NoError(t, db.First(&stored, user.Id).Error)
	assert.Empty(t, stored.OtpCode)
}

func TestVerifyOtpNonePending(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	_, err := m.VerifyOtp("john@example.com", "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No verification code pending")
}

func TestRenewRotation(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	user, err := m.Login("john@example.com", "secret123")
	require.NoError(t, err)
	first, err := m.VerifyOtp("john@example.com", user.OtpCode)
	require.NoError(t, err)

	second, err := m.Renew(first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is dead even though its own expiry is far off.
	_, err = m.Renew(first.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	_, err = m.Renew(second.RefreshToken)
	require.NoError(t, err)
}

func TestRenewRejectsGarbage(t *testing.T) {
	m, _, _ := setupManager(t)

	_, err := m.Renew("")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	_, err = m.Renew("not-a-token")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
}

func TestLogout(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	user, err := m.Login("john@example.com", "secret123")
	require.NoError(t, err)
	creds, err := m.VerifyOtp("john@example.com", user.OtpCode)
	require.NoError(t, err)

	require.NoError(t, m.Logout(creds.RefreshToken))

	var stored models.User
	require.NoError(t, db.First(&stored, user.Id).Error)
	assert.Empty(t, stored.RefreshTokenHash)

	_, err = m.Renew(creds.RefreshToken)
	require.Error(t, err)
}

func TestLogoutRequiresCurrentRefreshToken(t *testing.T) {
	m, db, _ := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "secret123")

	user, err := m.Login("john@example.com", "secret123")
	require.NoError(t, err)
	first, err := m.VerifyOtp("john@example.com", user.OtpCode)
	require.NoError(t, err)
	second, err := m.Renew(first.RefreshToken)
	require.NoError(t, err)

	// Neither the rotated-out refresh token nor an access token ends the
	// session, even though both carry a valid signature.
	err = m.Logout(first.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	err = m.Logout(second.AccessToken)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	var stored models.User
	require.NoError(t, db.First(&stored, user.Id).Error)
	assert.NotEmpty(t, stored.RefreshTokenHash)

	require.NoError(t, m.Logout(second.RefreshToken))
}

func TestResetPasswordFlow(t *testing.T) {
	m, db, sender := setupManager(t)
	seedUser(t, db, "johndoe", "john@example.com", "oldsecret1")

	require.NoError(t, m.ForgotPassword("john@example.com"))
	require.Len(t, sender.emails, 1)

	// The raw token only exists inside the emailed link.
	content := sender.emails[0].content
	idx := strings.Index(content, "token=")
	require.GreaterOrEqual(t, idx, 0)
	token := content[idx+len("token="):]
	token = token[:strings.IndexAny(token, `"&`)]

	err := m.ResetPassword("john@example.com", token, "newsecret1", "different")
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	err = m.ResetPassword("john@example.com", "wrong-token", "newsecret1", "newsecret1")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	require.NoError(t, m.ResetPassword("john@example.com", token, "newsecret1", "newsecret1"))

	// Token is single use.
	err = m.ResetPassword("john@example.com", token, "another123", "another123")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	_, err = m.Login("john@example.com", "oldsecret1")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
	_, err = m.Login("john@example.com", "newsecret1")
	require.NoError(t, err)
}

func TestResetPasswordExpired(t *testing.T) {
	m, db, sender := setupManager(t)
	user := seedUser(t, db, "johndoe", "john@example.com", "oldsecret1")

	require.NoError(t, m.ForgotPassword("john@example.com"))
	require.Len(t, sender.emails, 1)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.Id).
		Update("reset_expires_at", past).Error)

	err := m.ResetPassword("john@example.com", "whatever", "newsecret1", "newsecret1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestFederatedLogin(t *testing.T) {
	db := setupTestDB(t)
	sender := &fakeSender{}
	verifier := &fakeVerifier{claims: &IdentityClaims{
		Email:   "Jane@Example.com",
		Name:    "Jane Doe",
		Picture: "http://assets/jane.png",
	}}
	m := NewManager(db, testConfig(), sender, verifier)

	creds, err := m.FederatedLogin("provider-token")
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)

	// New users arrive pre-verified, with no password and no pending OTP.
	var stored models.User
	require.NoError(t, db.Where("email = ?", "jane@example.com").First(&stored).Error)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.Password)
	assert.Empty(t, stored.OtpCode)
	assert.Equal(t, "janedoe", stored.Username)
	assert.Empty(t, sender.emails)

	// Second login reuses the same user.
	_, err = m.FederatedLogin("provider-token")
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Password login is not available for federated accounts.
	_, err = m.Login("jane@example.com", "anything")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
}

func TestFederatedLoginUsernameCollision(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "janedoe", "taken@example.com", "secret123")
	verifier := &fakeVerifier{claims: &IdentityClaims{
		Email: "jane@example.com",
		Name:  "Jane Doe",
	}}
	m := NewManager(db, testConfig(), &fakeSender{}, verifier)

	_, err := m.FederatedLogin("provider-token")
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.Where("email = ?", "jane@example.com").First(&stored).Error)
	assert.Equal(t, "janedoe1", stored.Username)
}

func TestFederatedLoginBadToken(t *testing.T) {
	db := setupTestDB(t)
	verifier := &fakeVerifier{err: fmt.Errorf("signature verification failed")}
	m := NewManager(db, testConfig(), &fakeSender{}, verifier)

	_, err := m.FederatedLogin("bad-token")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
}

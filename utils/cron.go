package utils

import (
	"log/slog"
	"time"

	"inkwell-backend/internal/models"

	"gorm.io/gorm"
)

// StartCleanupTask periodically reaps expired verification state: stale OTP
// codes, stale reset tokens and accounts that never completed verification.
func StartCleanupTask(db *gorm.DB) {
	go func() {
		for {
			time.Sleep(12 * time.Hour)
			slog.Info("running cleanup of stale verification state")

			now := time.Now()

			otpResult := db.Model(&models.User{}).
				Where("otp_expires_at IS NOT NULL AND otp_expires_at < ?", now).
				Updates(map[string]interface{}{
					"otp_code":       "",
					"otp_expires_at": nil,
					"otp_attempts":   0,
				})
			slog.Info("cleared expired verification codes", "count", otpResult.RowsAffected)

			resetResult := db.Model(&models.User{}).
				Where("reset_expires_at IS NOT NULL AND reset_expires_at < ?", now).
				Updates(map[string]interface{}{
					"reset_token_hash": nil,
					"reset_expires_at": nil,
				})
			slog.Info("cleared expired reset tokens", "count", resetResult.RowsAffected)

			userResult := db.
				Where("is_verified = ? AND created_at < ?", false, now.Add(-24*time.Hour)).
				Delete(&models.User{})
			slog.Info("removed unverified accounts", "count", userResult.RowsAffected)
		}
	}()
}

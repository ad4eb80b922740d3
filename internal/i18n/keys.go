// internal/i18n/keys.go
package i18n

const (
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAccessDenied           = "auth.access_denied"

	KeyValidationInvalid = "validation.invalid"

	KeyApplicationSubmitted     = "application.submitted"
	KeyApplicationNotFound      = "application.not_found"
	KeyApplicationStatusUpdated = "application.status_updated"

	KeyUserCreated       = "user.created"
	KeyUserNotFound      = "user.not_found"
	KeyUserStatusUpdated = "user.status_updated"

	KeyFileUploadFailed = "file.upload_failed"
)

// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess      = "success"
	KeyError        = "error"
	KeyAccessDenied = "access_denied"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserNotFound       = "auth.user_not_found"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthRegisterSuccess    = "auth.register_success"

	// User Management
	KeyUserProfileUpdated = "user.profile_updated"
	KeyUserNotFound       = "user.not_found"
	KeyUserSuspended      = "user.suspended"

	// Listings (Lapak)
	KeyListingCreated  = "listing.created"
	KeyListingUpdated  = "listing.updated"
	KeyListingDeleted  = "listing.deleted"
	KeyListingNotFound = "listing.not_found"

	// Group buys (Borongan)
	KeyGroupBuyCreated   = "groupbuy.created"
	KeyGroupBuyCancelled = "groupbuy.cancelled"
	KeyGroupBuyNotFound  = "groupbuy.not_found"
	KeyGroupBuyJoined    = "groupbuy.joined"
	KeyGroupBuyLeft      = "groupbuy.left"
	KeyGroupBuyClosed    = "groupbuy.closed"
	KeyGroupBuyFull      = "groupbuy.full"

	// Commitments
	KeyCommitmentNotFound = "commitment.not_found"

	// Validation
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationRequired = "validation.required"
)

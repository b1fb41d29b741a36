// Package common contains constants and sentinel errors shared by the client
// and the reference server.
package common

const (
	// AuthorizationHeader carries "Token <key>" on every authenticated request.
	AuthorizationHeader = "Authorization"
	// TokenScheme is the authorization scheme used by the REST API.
	TokenScheme = "Token"
	// InvalidTokenDetail is the error detail the server returns with 401 when
	// the presented token is expired, revoked or malformed. Clients treat it
	// as a forced logout.
	InvalidTokenDetail = "Invalid token."
	// AuthMetadataKey is the gRPC metadata key carrying the same credential
	// towards the re-encryption gateway.
	AuthMetadataKey = "authorization"
)

// FormatToken renders a credential as an Authorization header value.
func FormatToken(token string) string {
	return TokenScheme + " " + token
}

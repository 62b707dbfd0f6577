package types

// TokenProvider is the inferred issuer family of a refresh endpoint.
type TokenProvider string

const (
	ProviderGoogle   TokenProvider = "google"
	ProviderFirebase TokenProvider = "firebase"
	ProviderGeneric  TokenProvider = "generic"
)

// TokenInfo is what a token response yielded, regardless of casing
// convention (access_token vs accessToken).
type TokenInfo struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
}

// RefreshDetection is the verdict on one captured request.
type RefreshDetection struct {
	IsRefresh      bool       `json:"isRefresh"`
	IsInitialGrant bool       `json:"isInitialGrant"`
	TokenInfo      *TokenInfo `json:"tokenInfo,omitempty"`
}

// RefreshConfig is everything needed to re-execute a captured token
// refresh: the stripped-down request plus expiry bookkeeping. Headers
// are filtered to auth-relevant names at extraction time.
type RefreshConfig struct {
	URL              string            `json:"url"`
	Method           string            `json:"method"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             any               `json:"body,omitempty"`
	BodyRaw          string            `json:"bodyRaw,omitempty"`
	Provider         TokenProvider     `json:"provider"`
	ClientID         string            `json:"clientId,omitempty"`
	ClientSecret     string            `json:"clientSecret,omitempty"`
	Scope            string            `json:"scope,omitempty"`
	RefreshToken     string            `json:"refreshToken,omitempty"`
	ExpiresInSeconds int64             `json:"expiresInSeconds,omitempty"`
	ExpiresAt        *Timestamp        `json:"expiresAt,omitempty"`
	Degraded         bool              `json:"degraded,omitempty"`
}

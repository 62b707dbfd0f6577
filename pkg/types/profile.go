package types

// ProfileHeader is one header recorded in a domain profile: its dominant
// value and how often it appeared.
type ProfileHeader struct {
	Value     string  `json:"value"`
	Frequency float64 `json:"frequency"`
	Category  string  `json:"category,omitempty"`
}

// HeaderProfile summarizes the headers that should travel with every
// request to one domain at replay time, excluding secrets.
type HeaderProfile struct {
	Domain            string                              `json:"domain"`
	CommonHeaders     map[string]ProfileHeader            `json:"commonHeaders"`
	EndpointOverrides map[string]map[string]ProfileHeader `json:"endpointOverrides,omitempty"`
	RequestCount      int                                 `json:"requestCount"`
	CapturedAt        Timestamp                           `json:"capturedAt"`
}

// HeaderProfileFile is the on-disk collection, one profile per domain.
type HeaderProfileFile struct {
	Profiles map[string]*HeaderProfile `json:"profiles"`
}

// AuthState is the accumulated authentication material of a capture
// session, persisted as auth.json in the skill directory.
type AuthState struct {
	BaseURL        string            `json:"baseUrl,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	CookieJar      Cookies           `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"localStorage,omitempty"`
	SessionStorage map[string]string `json:"sessionStorage,omitempty"`
	MetaTokens     map[string]string `json:"metaTokens,omitempty"`
	CSRF           *CSRFProvenance   `json:"csrfProvenance,omitempty"`
	LastBrowseAt   Timestamp         `json:"lastOpenClawBrowseAt,omitempty"`
	RefreshConfig  *RefreshConfig    `json:"refreshConfig,omitempty"`
}

// HasUsableAuth reports whether any auth material is present at all.
func (a *AuthState) HasUsableAuth() bool {
	if a == nil {
		return false
	}
	return len(a.Headers) > 0 || len(a.CookieJar) > 0
}

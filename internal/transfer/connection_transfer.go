package transfer

type AuthorizationResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type OAuth1Request struct {
	RedirectURI string `json:"redirect_uri"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

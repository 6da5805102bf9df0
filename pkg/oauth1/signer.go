// Package oauth1 builds HMAC-SHA1 signed Authorization headers for OAuth 1.0a.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/pkg/utils"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"
)

// Token is an OAuth1 token/secret pair. The zero value signs with an empty
// token secret, as the request-token step requires.
type Token struct {
	Token  string
	Secret string
}

type pair struct {
	key, value string
}

// Sign computes oauth_signature over the merged oauth and request parameters
// and returns the full "OAuth ..." header value. Only oauth_* parameters are
// emitted in the header.
func Sign(method, rawURL string, oauthParams, extraParams map[string]string, consumerSecret, tokenSecret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	params := make([]pair, 0, len(oauthParams)+len(extraParams))
	for k, v := range oauthParams {
		params = append(params, pair{k, v})
	}
	for k, v := range extraParams {
		params = append(params, pair{k, v})
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			params = append(params, pair{k, v})
		}
	}

	base := baseString(method, baseURL(u), params)
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	header := make([]pair, 0, len(oauthParams)+1)
	for k, v := range oauthParams {
		if strings.HasPrefix(k, "oauth_") {
			header = append(header, pair{k, v})
		}
	}
	header = append(header, pair{"oauth_signature", signature})
	sort.Slice(header, func(i, j int) bool { return header[i].key < header[j].key })

	parts := make([]string, len(header))
	for i, p := range header {
		parts[i] = fmt.Sprintf(`%s="%s"`, PercentEncode(p.key), PercentEncode(p.value))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// baseString is METHOD&enc(url)&enc(normalized params).
func baseString(method, baseURL string, params []pair) string {
	encoded := make([]pair, len(params))
	for i, p := range params {
		encoded[i] = pair{PercentEncode(p.key), PercentEncode(p.value)}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].key == encoded[j].key {
			return encoded[i].value < encoded[j].value
		}
		return encoded[i].key < encoded[j].key
	})

	joined := make([]string, len(encoded))
	for i, p := range encoded {
		joined[i] = p.key + "=" + p.value
	}

	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(strings.Join(joined, "&"))
}

func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// PercentEncode escapes everything outside the RFC 3986 unreserved set.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// Signer holds consumer credentials and produces headers with a fresh nonce
// and timestamp per call.
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string

	Nonce func() (string, error)
	Now   func() time.Time
}

func NewSigner(consumerKey, consumerSecret string) *Signer {
	return &Signer{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Nonce:          func() (string, error) { return utils.RandomString(32) },
		Now:            time.Now,
	}
}

// Header signs a request. extraOAuth carries oauth_callback or oauth_verifier
// for the handshake steps; params are the body or query parameters that are
// part of the signature but not of the header.
func (s *Signer) Header(method, rawURL string, token Token, extraOAuth, params map[string]string) (string, error) {
	nonce, err := s.Nonce()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.Now().Unix(), 10),
		"oauth_version":          Version,
	}
	if token.Token != "" {
		oauthParams["oauth_token"] = token.Token
	}
	for k, v := range extraOAuth {
		if v != "" {
			oauthParams[k] = v
		}
	}

	return Sign(method, rawURL, oauthParams, params, s.ConsumerSecret, token.Secret)
}

// Authorize sets the Authorization header on req. form holds url-encoded
// body parameters; multipart and JSON bodies are not signed.
func (s *Signer) Authorize(req *http.Request, token Token, extraOAuth, form map[string]string) error {
	header, err := s.Header(req.Method, req.URL.String(), token, extraOAuth, form)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", header)
	return nil
}

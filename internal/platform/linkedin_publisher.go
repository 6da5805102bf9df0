package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	linkedinUGCPostsURL       = "https://api.linkedin.com/v2/ugcPosts"
	linkedinRegisterUploadURL = "https://api.linkedin.com/v2/assets?action=registerUpload"
	linkedinUploadMechanism   = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

type linkedinPublisher struct {
	api   apiClient
	media MediaSource
}

func NewLinkedInPublisher(media MediaSource, client *http.Client) Publisher {
	return &linkedinPublisher{api: newAPIClient(models.PlatformLinkedIn, client), media: media}
}

func (p *linkedinPublisher) Platform() string { return models.PlatformLinkedIn }

func authorURN(creds Credentials) string {
	if urn, ok := creds.Metadata["author_urn"].(string); ok && urn != "" {
		return urn
	}
	return "urn:li:person:" + creds.ExternalAccountID
}

func (p *linkedinPublisher) Publish(ctx context.Context, creds Credentials, content Content) (string, error) {
	author := authorURN(creds)

	category := "NONE"
	var media []map[string]interface{}

	refs := content.Media
	if videos := content.videos(); len(videos) > 0 {
		category = "VIDEO"
		refs = videos[:1]
	} else if len(refs) > 0 {
		category = "IMAGE"
	}

	for _, ref := range refs {
		asset, err := p.upload(ctx, creds.AccessToken, author, ref)
		if err != nil {
			return "", err
		}
		media = append(media, map[string]interface{}{
			"status": "READY",
			"media":  asset,
			"title":  map[string]string{"text": content.Title},
		})
	}

	share := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": content.Text},
		"shareMediaCategory": category,
	}
	if len(media) > 0 {
		share["media"] = media
	}

	post := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": share,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	header, err := p.postJSON(ctx, linkedinUGCPostsURL, creds.AccessToken, post, &out)
	if err != nil {
		return "", err
	}
	if id := header.Get("X-RestLi-Id"); id != "" {
		return id, nil
	}
	return out.ID, nil
}

func (p *linkedinPublisher) upload(ctx context.Context, token, owner string, ref models.MediaRef) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if ref.Kind == models.MediaVideo {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	register := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{recipe},
			"owner":   owner,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if _, err := p.postJSON(ctx, linkedinRegisterUploadURL, token, register, &registered); err != nil {
		return "", err
	}

	uploadURL := registered.Value.UploadMechanism[linkedinUploadMechanism].UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", newError(models.PlatformLinkedIn, CodeUnknown, "registerUpload returned no upload url")
	}

	data, err := p.media.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	setBearer(req, token)
	if _, err := p.api.do(req, nil); err != nil {
		return "", err
	}

	return registered.Value.Asset, nil
}

func (p *linkedinPublisher) postJSON(ctx context.Context, rawURL, token string, in, out interface{}) (http.Header, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	setBearer(req, token)

	return p.api.do(req, out)
}

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	tiktokCreatorInfoURL  = "https://open.tiktokapis.com/v2/post/publish/creator_info/query/"
	tiktokVideoInitURL    = "https://open.tiktokapis.com/v2/post/publish/video/init/"
	tiktokContentInitURL  = "https://open.tiktokapis.com/v2/post/publish/content/init/"
	tiktokPublicPrivacy   = "PUBLIC_TO_EVERYONE"
	tiktokTitleLimit      = 2200
	tiktokPhotoTitleLimit = 90
)

// tiktokPublisher uses Direct Post with PULL_FROM_URL sources. The returned
// id is TikTok's publish_id; the post id only exists once TikTok has
// finished processing.
type tiktokPublisher struct {
	api apiClient
}

func NewTiktokPublisher(client *http.Client) Publisher {
	return &tiktokPublisher{api: newAPIClient(models.PlatformTiktok, client)}
}

func (p *tiktokPublisher) Platform() string { return models.PlatformTiktok }

func (p *tiktokPublisher) Publish(ctx context.Context, creds Credentials, content Content) (string, error) {
	if err := requireMedia(models.PlatformTiktok, content); err != nil {
		return "", err
	}

	privacy, err := p.privacyLevel(ctx, creds.AccessToken)
	if err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
	}

	if videos := content.videos(); len(videos) > 0 {
		err = p.call(ctx, tiktokVideoInitURL, creds.AccessToken, map[string]interface{}{
			"post_info": map[string]interface{}{
				"title":         truncate(content.Text, tiktokTitleLimit),
				"privacy_level": privacy,
			},
			"source_info": map[string]interface{}{
				"source":    "PULL_FROM_URL",
				"video_url": videos[0].URL,
			},
		}, &out)
	} else {
		urls := make([]string, 0, len(content.Media))
		for _, ref := range content.Media {
			urls = append(urls, ref.URL)
		}
		title := content.Title
		if title == "" {
			title = content.Text
		}
		err = p.call(ctx, tiktokContentInitURL, creds.AccessToken, map[string]interface{}{
			"post_info": map[string]interface{}{
				"title":         truncate(title, tiktokPhotoTitleLimit),
				"description":   truncate(content.Text, tiktokTitleLimit),
				"privacy_level": privacy,
			},
			"source_info": map[string]interface{}{
				"source":            "PULL_FROM_URL",
				"photo_images":      urls,
				"photo_cover_index": 0,
			},
			"post_mode":  "DIRECT_POST",
			"media_type": "PHOTO",
		}, &out)
	}
	if err != nil {
		return "", err
	}
	return out.Data.PublishID, nil
}

func (p *tiktokPublisher) privacyLevel(ctx context.Context, token string) (string, error) {
	var info struct {
		Data struct {
			PrivacyLevelOptions []string `json:"privacy_level_options"`
		} `json:"data"`
	}
	if err := p.call(ctx, tiktokCreatorInfoURL, token, map[string]interface{}{}, &info); err != nil {
		return "", err
	}

	options := info.Data.PrivacyLevelOptions
	for _, option := range options {
		if option == tiktokPublicPrivacy {
			return option, nil
		}
	}
	if len(options) == 0 {
		return "", newError(models.PlatformTiktok, CodeForbidden, "creator cannot post")
	}
	return options[0], nil
}

// call posts JSON and treats a 200 whose error code is not "ok" as a failure.
func (p *tiktokPublisher) call(ctx context.Context, rawURL, token string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	setBearer(req, token)

	_, body, err := p.api.raw(req)
	if err != nil {
		return err
	}

	var envelope tiktokError
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" && envelope.Error.Code != "ok" {
		return FromResponse(models.PlatformTiktok, http.StatusBadRequest, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Platform: models.PlatformTiktok, Code: CodeUnknown, Message: "decode response", Err: err}
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/maheshrc27/crosspost/internal/models"
)

// facebookPublisher posts to a page with the page's own access token.
type facebookPublisher struct {
	api apiClient
}

func NewFacebookPublisher(client *http.Client) Publisher {
	return &facebookPublisher{api: newAPIClient(models.PlatformFacebook, client)}
}

func (p *facebookPublisher) Platform() string { return models.PlatformFacebook }

type graphCreated struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (g graphCreated) postID() string {
	if g.PostID != "" {
		return g.PostID
	}
	return g.ID
}

func (p *facebookPublisher) Publish(ctx context.Context, creds Credentials, content Content) (string, error) {
	pageID := creds.ExternalAccountID
	token := creds.AccessToken

	if videos := content.videos(); len(videos) > 0 {
		var out graphCreated
		err := p.post(ctx, pageID+"/videos", token, url.Values{
			"file_url":    {videos[0].URL},
			"description": {content.Text},
			"title":       {content.Title},
		}, &out)
		return out.postID(), err
	}

	switch len(content.Media) {
	case 0:
		var out graphCreated
		err := p.post(ctx, pageID+"/feed", token, url.Values{"message": {content.Text}}, &out)
		return out.postID(), err
	case 1:
		var out graphCreated
		err := p.post(ctx, pageID+"/photos", token, url.Values{
			"url":     {content.Media[0].URL},
			"message": {content.Text},
		}, &out)
		return out.postID(), err
	}

	// Multiple photos are uploaded unpublished and attached to one feed post.
	form := url.Values{"message": {content.Text}}
	for i, ref := range content.Media {
		var photo graphCreated
		err := p.post(ctx, pageID+"/photos", token, url.Values{
			"url":       {ref.URL},
			"published": {"false"},
		}, &photo)
		if err != nil {
			return "", err
		}

		attached, err := json.Marshal(map[string]string{"media_fbid": photo.ID})
		if err != nil {
			return "", err
		}
		form.Set("attached_media["+strconv.Itoa(i)+"]", string(attached))
	}

	var out graphCreated
	err := p.post(ctx, pageID+"/feed", token, form, &out)
	return out.postID(), err
}

func (p *facebookPublisher) post(ctx context.Context, path, token string, form url.Values, out *graphCreated) error {
	form.Set("access_token", token)
	return p.api.postForm(ctx, facebookGraphURL+"/"+path, "", form, out)
}

package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// containerFlavor describes how a Meta API that publishes through media
// containers names its fields.
type containerFlavor struct {
	base        string
	createPath  string
	publishPath string
	textField   string
	textType    string
	imageType   string
	videoType   string
	statusField string
	maxItems    int
}

var instagramFlavor = containerFlavor{
	base:        "https://graph.instagram.com/v21.0",
	createPath:  "media",
	publishPath: "media_publish",
	textField:   "caption",
	videoType:   "REELS",
	statusField: "status_code",
	maxItems:    10,
}

var threadsFlavor = containerFlavor{
	base:        "https://graph.threads.net/v1.0",
	createPath:  "threads",
	publishPath: "threads_publish",
	textField:   "text",
	textType:    "TEXT",
	imageType:   "IMAGE",
	videoType:   "VIDEO",
	statusField: "status",
	maxItems:    20,
}

// containerPublisher creates a container per media item, a carousel
// container when there are several, waits for video processing and then
// publishes.
type containerPublisher struct {
	platform string
	flavor   containerFlavor
	api      apiClient
	pollWait time.Duration
	maxPolls int
}

func NewInstagramPublisher(client *http.Client) Publisher {
	return newContainerPublisher(models.PlatformInstagram, instagramFlavor, client)
}

func NewThreadsPublisher(client *http.Client) Publisher {
	return newContainerPublisher(models.PlatformThreads, threadsFlavor, client)
}

func newContainerPublisher(platform string, flavor containerFlavor, client *http.Client) *containerPublisher {
	return &containerPublisher{
		platform: platform,
		flavor:   flavor,
		api:      newAPIClient(platform, client),
		pollWait: 5 * time.Second,
		maxPolls: 60,
	}
}

func (p *containerPublisher) Platform() string { return p.platform }

func (p *containerPublisher) Publish(ctx context.Context, creds Credentials, content Content) (string, error) {
	if p.flavor.textType == "" {
		if err := requireMedia(p.platform, content); err != nil {
			return "", err
		}
	}

	media := content.Media
	if len(media) > p.flavor.maxItems {
		media = media[:p.flavor.maxItems]
	}

	var (
		containerID string
		err         error
	)
	switch len(media) {
	case 0:
		containerID, err = p.create(ctx, creds, url.Values{
			"media_type":       {p.flavor.textType},
			p.flavor.textField: {content.Text},
		})
	case 1:
		form := p.itemForm(media[0])
		form.Set(p.flavor.textField, content.Text)
		containerID, err = p.create(ctx, creds, form)
		if err == nil && media[0].Kind == models.MediaVideo {
			err = p.await(ctx, creds, containerID)
		}
	default:
		containerID, err = p.carousel(ctx, creds, media, content.Text)
	}
	if err != nil {
		return "", err
	}

	var published graphCreated
	err = p.api.postForm(ctx, p.endpoint(creds, p.flavor.publishPath), "", url.Values{
		"creation_id":  {containerID},
		"access_token": {creds.AccessToken},
	}, &published)
	if err != nil {
		return "", err
	}
	return published.ID, nil
}

func (p *containerPublisher) itemForm(ref models.MediaRef) url.Values {
	form := url.Values{}
	if ref.Kind == models.MediaVideo {
		form.Set("media_type", p.flavor.videoType)
		form.Set("video_url", ref.URL)
	} else {
		if p.flavor.imageType != "" {
			form.Set("media_type", p.flavor.imageType)
		}
		form.Set("image_url", ref.URL)
	}
	return form
}

func (p *containerPublisher) carousel(ctx context.Context, creds Credentials, media []models.MediaRef, text string) (string, error) {
	children := make([]string, 0, len(media))
	hasVideo := false
	for _, ref := range media {
		form := p.itemForm(ref)
		if ref.Kind == models.MediaVideo {
			hasVideo = true
			// Carousel items on Instagram use VIDEO rather than REELS.
			form.Set("media_type", "VIDEO")
		}
		form.Set("is_carousel_item", "true")

		id, err := p.create(ctx, creds, form)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	if hasVideo {
		for _, id := range children {
			if err := p.await(ctx, creds, id); err != nil {
				return "", err
			}
		}
	}

	return p.create(ctx, creds, url.Values{
		"media_type":       {"CAROUSEL"},
		"children":         {strings.Join(children, ",")},
		p.flavor.textField: {text},
	})
}

func (p *containerPublisher) create(ctx context.Context, creds Credentials, form url.Values) (string, error) {
	form.Set("access_token", creds.AccessToken)

	var out graphCreated
	if err := p.api.postForm(ctx, p.endpoint(creds, p.flavor.createPath), "", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", newError(p.platform, CodeUnknown, "container creation returned no id")
	}
	return out.ID, nil
}

// await polls a container until it is ready to publish.
func (p *containerPublisher) await(ctx context.Context, creds Credentials, containerID string) error {
	statusURL := withQuery(p.flavor.base+"/"+containerID, url.Values{
		"fields":       {p.flavor.statusField},
		"access_token": {creds.AccessToken},
	})

	for i := 0; i < p.maxPolls; i++ {
		var status map[string]interface{}
		if err := p.api.getJSON(ctx, statusURL, "", &status); err != nil {
			return err
		}

		state, _ := status[p.flavor.statusField].(string)
		switch state {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return newError(p.platform, CodeValidation, "media container "+strings.ToLower(state))
		}

		if err := sleep(ctx, p.pollWait); err != nil {
			return Classify(p.platform, err)
		}
	}
	return newError(p.platform, CodeTimeout, "media container not ready")
}

func (p *containerPublisher) endpoint(creds Credentials, path string) string {
	return p.flavor.base + "/" + creds.ExternalAccountID + "/" + path
}

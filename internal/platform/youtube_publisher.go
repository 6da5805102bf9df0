package platform

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeTitleLimit = 100

type youtubePublisher struct {
	media  MediaSource
	client *http.Client
}

func NewYoutubePublisher(media MediaSource, client *http.Client) Publisher {
	return &youtubePublisher{media: media, client: client}
}

func (p *youtubePublisher) Platform() string { return models.PlatformYoutube }

func (p *youtubePublisher) Publish(ctx context.Context, creds Credentials, content Content) (string, error) {
	videos := content.videos()
	if len(videos) == 0 {
		return "", newError(models.PlatformYoutube, CodeValidation, "a video is required")
	}

	data, err := p.media.Fetch(ctx, videos[0])
	if err != nil {
		return "", err
	}

	base := ctx
	if p.client != nil {
		base = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	httpClient := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken}))

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return "", err
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       youtubeTitle(content),
			Description: content.Text,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}

	inserted, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return "", Classify(models.PlatformYoutube, err)
	}
	return inserted.Id, nil
}

func youtubeTitle(content Content) string {
	title := strings.TrimSpace(content.Title)
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(content.Text, "\n", 2)[0])
	}
	if title == "" {
		title = "Untitled"
	}
	runes := []rune(title)
	if len(runes) > youtubeTitleLimit {
		title = string(runes[:youtubeTitleLimit])
	}
	return title
}

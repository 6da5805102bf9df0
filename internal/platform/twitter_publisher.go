package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
)

const (
	twitterTweetsURL = "https://api.twitter.com/2/tweets"
	twitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

	twitterChunkSize = 4 << 20
	twitterMaxImages = 4
	twitterMaxPolls  = 60
)

type twitterPublisher struct {
	api    apiClient
	signer *oauth1.Signer
	media  MediaSource
	// pollUnit scales the check_after_secs hints during video processing.
	pollUnit time.Duration
}

func NewTwitterPublisher(signer *oauth1.Signer, media MediaSource, client *http.Client) Publisher {
	return &twitterPublisher{
		api:      newAPIClient(models.PlatformTwitter, client),
		signer:   signer,
		media:    media,
		pollUnit: time.Second,
	}
}

func (p *twitterPublisher) Platform() string { return models.PlatformTwitter }

func (p *twitterPublisher) Publish(ctx context.Context, creds Credentials, content Content) (string, error) {
	tweet := map[string]interface{}{"text": content.Text}

	if content.HasMedia() {
		if creds.Kind != OAuth1 {
			return "", newError(models.PlatformTwitter, CodeAuth, "media uploads need OAuth1 credentials")
		}
		token := oauth1.Token{Token: creds.Token, Secret: creds.TokenSecret}

		var ids []string
		for _, ref := range twitterMedia(content) {
			id, err := p.upload(ctx, token, ref)
			if err != nil {
				return "", err
			}
			ids = append(ids, id)
		}
		tweet["media"] = map[string]interface{}{"media_ids": ids}
	}

	payload, err := json.Marshal(tweet)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterTweetsURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := p.authorize(req, creds, nil); err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := p.api.do(req, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// twitterMedia keeps either the first video or up to four images.
func twitterMedia(content Content) []models.MediaRef {
	if videos := content.videos(); len(videos) > 0 {
		return videos[:1]
	}
	if len(content.Media) > twitterMaxImages {
		return content.Media[:twitterMaxImages]
	}
	return content.Media
}

func (p *twitterPublisher) authorize(req *http.Request, creds Credentials, form map[string]string) error {
	if creds.Kind == OAuth1 {
		return p.signer.Authorize(req, oauth1.Token{Token: creds.Token, Secret: creds.TokenSecret}, nil, form)
	}
	setBearer(req, creds.AccessToken)
	return nil
}

type twitterProcessing struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type twitterUpload struct {
	MediaIDString  string             `json:"media_id_string"`
	ProcessingInfo *twitterProcessing `json:"processing_info"`
}

// upload runs the chunked INIT, APPEND, FINALIZE sequence and waits for
// asynchronous processing when the platform asks for it.
func (p *twitterPublisher) upload(ctx context.Context, token oauth1.Token, ref models.MediaRef) (string, error) {
	data, err := p.media.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}

	mimeType, category := twitterMediaType(ref, data)

	var init twitterUpload
	err = p.signedForm(ctx, token, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.Itoa(len(data))},
		"media_type":     {mimeType},
		"media_category": {category},
	}, &init)
	if err != nil {
		return "", err
	}
	if init.MediaIDString == "" {
		return "", newError(models.PlatformTwitter, CodeUnknown, "upload INIT returned no media id")
	}

	for segment, offset := 0, 0; offset < len(data); segment, offset = segment+1, offset+twitterChunkSize {
		end := offset + twitterChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := p.appendChunk(ctx, token, init.MediaIDString, segment, data[offset:end]); err != nil {
			return "", err
		}
	}

	var fin twitterUpload
	err = p.signedForm(ctx, token, url.Values{
		"command":  {"FINALIZE"},
		"media_id": {init.MediaIDString},
	}, &fin)
	if err != nil {
		return "", err
	}

	if err := p.awaitProcessing(ctx, token, init.MediaIDString, fin.ProcessingInfo); err != nil {
		return "", err
	}
	return init.MediaIDString, nil
}

func twitterMediaType(ref models.MediaRef, data []byte) (string, string) {
	mimeType := ref.MimeType
	if mimeType == "" {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			mimeType = kind.MIME.Value
		}
	}

	switch {
	case mimeType == "image/gif":
		return mimeType, "tweet_gif"
	case ref.Kind == models.MediaVideo || filetype.IsVideo(data):
		if mimeType == "" {
			mimeType = "video/mp4"
		}
		return mimeType, "tweet_video"
	default:
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return mimeType, "tweet_image"
	}
}

func (p *twitterPublisher) signedForm(ctx context.Context, token oauth1.Token, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterUploadURL, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	if err := p.signer.Authorize(req, token, nil, params); err != nil {
		return err
	}

	_, err = p.api.do(req, out)
	return err
}

func (p *twitterPublisher) appendChunk(ctx context.Context, token oauth1.Token, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(segment))
	part, err := w.CreateFormFile("media", "blob")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterUploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := p.signer.Authorize(req, token, nil, nil); err != nil {
		return err
	}

	_, err = p.api.do(req, nil)
	return err
}

func (p *twitterPublisher) awaitProcessing(ctx context.Context, token oauth1.Token, mediaID string, info *twitterProcessing) error {
	for polls := 0; info != nil; polls++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "media processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg = info.Error.Message
			}
			return newError(models.PlatformTwitter, CodeValidation, msg)
		}
		if polls >= twitterMaxPolls {
			return newError(models.PlatformTwitter, CodeTimeout, "media processing did not finish")
		}

		if err := sleep(ctx, time.Duration(info.CheckAfterSecs)*p.pollUnit); err != nil {
			return Classify(models.PlatformTwitter, err)
		}

		statusURL := withQuery(twitterUploadURL, url.Values{"command": {"STATUS"}, "media_id": {mediaID}})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return err
		}
		if err := p.signer.Authorize(req, token, nil, nil); err != nil {
			return err
		}

		var status twitterUpload
		if _, err := p.api.do(req, &status); err != nil {
			return err
		}
		info = status.ProcessingInfo
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	cfg "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const maxMediaSize = 1 << 30

var ErrUnsupportedMedia = errors.New("unsupported media type")

type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MediaStore keeps post media in an R2 bucket and hands publishers either
// the object bytes or its public URL.
type MediaStore struct {
	objects       objectAPI
	bucket        string
	publicBaseURL string
	http          *http.Client
}

func NewMediaStore(ctx context.Context, r2 cfg.R2, client *http.Client) (*MediaStore, error) {
	if client == nil {
		client = http.DefaultClient
	}
	store := &MediaStore{
		bucket:        r2.BucketName,
		publicBaseURL: strings.TrimRight(r2.PublicBaseURL, "/"),
		http:          client,
	}
	if r2.AccountID == "" {
		slog.Warn("R2 is not configured, media is fetched from public URLs only")
		return store, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	store.objects = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	})
	return store, nil
}

// Fetch returns the bytes of a media item, from the bucket when the item
// has a key and from its URL otherwise.
func (s *MediaStore) Fetch(ctx context.Context, ref models.MediaRef) ([]byte, error) {
	if ref.Key != "" && s.objects != nil {
		out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(ref.Key),
		})
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("get object %s: %w", ref.Key, err)
		}
		defer out.Body.Close()
		return readLimited(out.Body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media %s: %w", ref.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media %s: status %d", ref.ID, resp.StatusCode)
	}
	return readLimited(resp.Body)
}

// Upload stores data under a generated key and returns a reference with
// the public URL platforms pull from.
func (s *MediaStore) Upload(ctx context.Context, userID string, data []byte) (*models.MediaRef, error) {
	if s.objects == nil {
		return nil, errors.New("media storage is not configured")
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil, ErrUnsupportedMedia
	}

	var mediaKind string
	switch {
	case filetype.IsImage(data):
		mediaKind = models.MediaImage
	case filetype.IsVideo(data):
		mediaKind = models.MediaVideo
	default:
		return nil, ErrUnsupportedMedia
	}

	id, err := utils.RandomString(21)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s/%s.%s", userID, id, kind.Extension)

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("put object: %w", err)
	}

	return &models.MediaRef{
		ID:       id,
		Kind:     mediaKind,
		URL:      s.publicBaseURL + "/" + key,
		Key:      key,
		MimeType: kind.MIME.Value,
	}, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMediaSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("media larger than %d bytes", maxMediaSize)
	}
	return data, nil
}

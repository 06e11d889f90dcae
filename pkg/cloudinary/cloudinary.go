package cloudinary

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores application files on Cloudinary as raw assets.
type Service struct {
	client     *cloudinary.Cloudinary
	httpClient *http.Client
	folder     string
	logger     zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client:     cld,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		folder:     cfg.Folder,
		logger:     logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Store uploads the file and returns its secure delivery URL. The name's directory part
// becomes a sub-folder so files stay grouped per competition.
func (s *Service) Store(ctx context.Context, name string, reader io.Reader) (string, error) {
	folder, publicID := splitName(s.folder, name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "raw",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("file uploaded to cloudinary")

	return result.SecureURL, nil
}

// Retrieve downloads a stored asset by its delivery URL. A 404 reports fs.ErrNotExist.
func (s *Service) Retrieve(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid asset url: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fs.ErrNotExist
	case resp.StatusCode >= http.StatusBadRequest:
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch asset: status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

func splitName(base, name string) (string, string) {
	name = strings.Trim(strings.ReplaceAll(name, "\\", "/"), "/")
	dir, file := path.Split(name)

	folder := strings.Trim(path.Join(strings.Trim(base, "/"), dir), "/")
	publicID := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '-'
	}, file)

	publicID = strings.Trim(publicID, "-")
	if publicID == "" {
		publicID = fmt.Sprintf("upload-%d", time.Now().Unix())
	}

	return folder, publicID
}

package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// ApplicationSubmitRequest carries the non-file part of a submission.
type ApplicationSubmitRequest struct {
	CompetitionID uint   `validate:"required,gt=0"`
	RoundID       *uint  `validate:"omitempty,gt=0"`
	ApplicantID   string `validate:"required,max=255"`
	ApplicantName string `validate:"max=255"`
}

// ReviewUpdateRequest is the review payload. "review" is accepted as an alias of "text".
type ReviewUpdateRequest struct {
	Text   *string     `json:"text"`
	Review *string     `json:"review"`
	Points PointsValue `json:"points"`
}

// ReviewText returns the text field, falling back to the legacy alias.
func (r ReviewUpdateRequest) ReviewText() *string {
	if r.Text != nil {
		return r.Text
	}
	return r.Review
}

// PointsValue accepts a review score as a JSON number or a numeric string.
// Null and blank strings leave the value unset.
type PointsValue struct {
	Value *int
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PointsValue) UnmarshalJSON(data []byte) error {
	p.Value = nil

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	raw := string(trimmed)
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		raw = strings.TrimSpace(text)
		if raw == "" {
			return nil
		}
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("points must be an integer: %q", raw)
	}
	p.Value = &parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p PointsValue) MarshalJSON() ([]byte, error) {
	if p.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*p.Value)
}

// IntPoints builds a PointsValue holding the given score.
func IntPoints(points int) PointsValue {
	return PointsValue{Value: &points}
}

// ApplicationResponse is returned to API clients when viewing applications.
type ApplicationResponse struct {
	ID              uint       `json:"id"`
	CompetitionID   uint       `json:"competition_id"`
	RoundID         *uint      `json:"round_id"`
	ApplicantID     string     `json:"applicant_id"`
	ApplicantName   string     `json:"applicant_name"`
	FileName        string     `json:"file_name"`
	MimeType        string     `json:"mime_type"`
	SizeBytes       int64      `json:"size_bytes"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ReviewText      *string    `json:"review_text"`
	ReviewPoints    *int       `json:"review_points"`
	ReviewCreatedAt *time.Time `json:"review_created_at"`
}

// DownloadResponse wraps a stored file for streaming back to the client.
type DownloadResponse struct {
	FileName string
	MimeType string
	Content  []byte
}

// NewApplicationResponse converts an Application model into a DTO.
func NewApplicationResponse(model models.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:              model.ID,
		CompetitionID:   model.CompetitionID,
		RoundID:         model.RoundID,
		ApplicantID:     model.ApplicantID,
		ApplicantName:   model.ApplicantName,
		FileName:        model.FileName,
		MimeType:        model.MimeType,
		SizeBytes:       model.SizeBytes,
		SubmittedAt:     model.SubmittedAt,
		ReviewText:      model.ReviewText,
		ReviewPoints:    model.ReviewPoints,
		ReviewCreatedAt: model.ReviewCreatedAt,
	}
}

// NewApplicationResponseSlice converts application models into DTOs.
func NewApplicationResponseSlice(applications []models.Application) []ApplicationResponse {
	responses := make([]ApplicationResponse, 0, len(applications))
	for _, application := range applications {
		responses = append(responses, NewApplicationResponse(application))
	}

	return responses
}

package vaultsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atinyakov/cortexvault/internal/models"
)

const (
	// CurrentVersion is the newest payload format this client reads.
	CurrentVersion = 2
	// Platform tags payloads written by this client.
	Platform = "go"
)

var validate = validator.New()

// Encode renders v canonically: sorted keys, no HTML escaping, no
// trailing newline.
func Encode(v models.VaultData) ([]byte, error) {
	if v.Entries == nil {
		v.Entries = []models.EntryDTO{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses and validates a payload. The version gate runs before
// validation so newer formats report VersionMismatchError.
func Decode(data []byte) (models.VaultData, error) {
	var v models.VaultData
	if err := json.Unmarshal(data, &v); err != nil {
		return models.VaultData{}, fmt.Errorf("%w: %w", ErrDeserializationFailed, err)
	}
	if v.Version > CurrentVersion {
		return models.VaultData{}, &VersionMismatchError{ServerVersion: v.Version}
	}
	if err := validate.Struct(v); err != nil {
		return models.VaultData{}, fmt.Errorf("%w: %w", ErrDeserializationFailed, err)
	}
	return v, nil
}

func canonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// EntriesToDTOs maps live entries to their exported form. Tombstones are
// skipped.
func EntriesToDTOs(entries []models.Entry) []models.EntryDTO {
	out := make([]models.EntryDTO, 0, len(entries))
	for _, e := range entries {
		if e.Deleted {
			continue
		}
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, models.EntryDTO{
			Content:   e.Content,
			CreatedAt: canonicalTime(e.CreatedAt),
			ID:        e.ID,
			Tags:      tags,
			Title:     e.Title,
			UpdatedAt: canonicalTime(e.UpdatedAt),
		})
	}
	return out
}

// EntriesFromDTOs maps exported entries back to the domain form.
func EntriesFromDTOs(dtos []models.EntryDTO) []models.Entry {
	out := make([]models.Entry, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, models.Entry{
			ID:        d.ID,
			Title:     d.Title,
			Content:   d.Content,
			Tags:      d.Tags,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return out
}

// InsightsToDTOs returns nil for no insights so the field is omitted.
func InsightsToDTOs(insights []models.Insight) []models.InsightDTO {
	if len(insights) == 0 {
		return nil
	}
	out := make([]models.InsightDTO, 0, len(insights))
	for _, in := range insights {
		out = append(out, models.InsightDTO{
			Body:      in.Body,
			CreatedAt: canonicalTime(in.CreatedAt),
			EntryID:   in.EntryID,
			ID:        in.ID,
			Kind:      in.Kind,
		})
	}
	return out
}

func InsightsFromDTOs(dtos []models.InsightDTO) []models.Insight {
	if len(dtos) == 0 {
		return nil
	}
	out := make([]models.Insight, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, models.Insight{
			ID:        d.ID,
			EntryID:   d.EntryID,
			Kind:      d.Kind,
			Body:      d.Body,
			CreatedAt: d.CreatedAt,
		})
	}
	return out
}

package comments

import (
	"encoding/json"
	"fmt"

	openreg "github.com/jxucoder/openregulations.ai"
)

// docketDTO is the stored JSON shape for one docket's comment corpus,
// written by the embedding job and read-only here.
type docketDTO struct {
	DocketID string       `json:"docket_id"`
	Comments []commentDTO `json:"comments"`
}

// commentDTO is one comment with its pre-computed embedding. Embedding is
// optional: dockets synced before the embed job ran carry text only.
type commentDTO struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
	ThemeIDs  []string  `json:"theme_ids,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// parseDocket decodes a JSON.GET "$" result (array-wrapped) into a DTO.
func parseDocket(raw []byte) (*docketDTO, error) {
	var wrapped []docketDTO
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal docket blob: %w", err)
	}
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("empty docket blob")
	}
	return &wrapped[0], nil
}

// previewLen bounds the text carried inside the vector index; full text
// stays in the comment list.
const previewLen = 300

func (d *docketDTO) vectorRecords() []openreg.VectorRecord {
	records := make([]openreg.VectorRecord, 0, len(d.Comments))
	for _, c := range d.Comments {
		if len(c.Embedding) == 0 {
			continue
		}
		records = append(records, openreg.VectorRecord{
			ID:          c.ID,
			DocketID:    d.DocketID,
			Vector:      c.Embedding,
			Sentiment:   openreg.Sentiment(c.Sentiment),
			ThemeIDs:    c.ThemeIDs,
			TextPreview: truncate(c.Text, previewLen),
		})
	}
	return records
}

func (d *docketDTO) plainComments() []openreg.Comment {
	out := make([]openreg.Comment, len(d.Comments))
	for i, c := range d.Comments {
		out[i] = openreg.Comment{
			ID:        c.ID,
			Text:      c.Text,
			Author:    c.Author,
			Sentiment: openreg.Sentiment(c.Sentiment),
		}
	}
	return out
}

func (d *docketDTO) authors() map[string]string {
	out := make(map[string]string, len(d.Comments))
	for _, c := range d.Comments {
		out[c.ID] = c.Author
	}
	return out
}

func (d *docketDTO) texts() map[string]string {
	out := make(map[string]string, len(d.Comments))
	for _, c := range d.Comments {
		out[c.ID] = c.Text
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

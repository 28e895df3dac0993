package model

import (
	"encoding/json"
	"sort"
	"strings"

	"catalog-enrichment/internal/domain"
)

// ProductRecord is the parsed form of an ImportItem payload. The upstream
// exporter ships loosely structured JSON; only the fields the pipeline
// consumes are decoded, the rest stays in the raw payload.
type ProductRecord struct {
	ProductID   string            `json:"product_id"`
	Name        string            `json:"name"`
	Brand       string            `json:"brand"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	CityCode    string            `json:"city_code"`
	ImageURLs   []string          `json:"image_urls"`
	Attributes  map[string]string `json:"attributes"`
}

func ParseProductRecord(payload string) (*ProductRecord, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, domain.ErrEmptyPayload
	}
	var p ProductRecord
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DocumentText flattens the record into the text that gets embedded.
// Field order is stable so re-runs embed identical input.
func (p *ProductRecord) DocumentText() string {
	var b strings.Builder
	write := func(label, v string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(v))
	}
	write("name", p.Name)
	write("brand", p.Brand)
	write("category", p.Category)
	write("description", p.Description)
	write("city", p.CityCode)
	for _, k := range sortedKeys(p.Attributes) {
		write(k, p.Attributes[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

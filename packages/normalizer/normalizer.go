// Package normalizer projects raw feed records onto the canonical Product
// shape. It is a best-effort extraction, not a schema validator: a record
// too malformed to carry an id or title still yields a Product with those
// fields empty, because downstream CSV emission treats missing data as
// empty cells.
package normalizer

import (
	"bytes"
	"encoding/json"
	"strings"

	"shopharvest/packages/domain"
)

// Normalize maps one raw record to a Product. Total; never fails.
// Unrecognized fields are ignored: this is a projection, not a full copy.
func Normalize(raw domain.RawProduct) domain.Product {
	obj := decodeObject(raw)

	p := domain.Product{
		ID:              asInt64(obj["id"]),
		Title:           asString(obj["title"]),
		Handle:          asString(obj["handle"]),
		DescriptionHTML: asString(obj["body_html"]),
		Vendor:          asString(obj["vendor"]),
		ProductType:     asString(obj["product_type"]),
		Tags:            normalizeTags(obj["tags"]),
		Variants:        []domain.Variant{},
		Images:          []domain.Image{},
		CreatedAt:       asString(obj["created_at"]),
		UpdatedAt:       asString(obj["updated_at"]),
		PublishedAt:     asString(obj["published_at"]),
	}

	if variants, ok := obj["variants"].([]any); ok {
		for _, v := range variants {
			vObj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			p.Variants = append(p.Variants, domain.Variant{
				ID:                asInt64(vObj["id"]),
				Title:             asString(vObj["title"]),
				Price:             asString(vObj["price"]),
				SKU:               asString(vObj["sku"]),
				InventoryQuantity: asOptInt(vObj["inventory_quantity"]),
				Grams:             asOptFloat(vObj["grams"]),
				CompareAtPrice:    asOptString(vObj["compare_at_price"]),
				Option1:           asOptString(vObj["option1"]),
				Option2:           asOptString(vObj["option2"]),
				Option3:           asOptString(vObj["option3"]),
			})
		}
	}

	if images, ok := obj["images"].([]any); ok {
		for _, img := range images {
			imgObj, ok := img.(map[string]any)
			if !ok {
				continue
			}
			p.Images = append(p.Images, domain.Image{
				ID:  asInt64(imgObj["id"]),
				Src: asString(imgObj["src"]),
			})
		}
	}

	return p
}

// NormalizeAll preserves feed order.
func NormalizeAll(raws []domain.RawProduct) []domain.Product {
	products := make([]domain.Product, 0, len(raws))
	for _, raw := range raws {
		products = append(products, Normalize(raw))
	}
	return products
}

// normalizeTags branches on the source shape: the feed encodes tags either
// as a comma-joined string or as a native list.
func normalizeTags(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return []string{}
		}
		return strings.Split(t, ", ")
	case []any:
		tags := make([]string, 0, len(t))
		for _, item := range t {
			tags = append(tags, asString(item))
		}
		return tags
	default:
		return []string{}
	}
}

// decodeObject uses json.Number so decimal price strings survive untouched
// even when the feed emits them as bare numbers.
func decodeObject(raw domain.RawProduct) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return map[string]any{}
	}
	return obj
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func asOptString(v any) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	if s == "" {
		return nil
	}
	return &s
}

func asInt64(v any) int64 {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return 0
}

func asOptInt(v any) *int {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			val := int(i)
			return &val
		}
	}
	return nil
}

func asOptFloat(v any) *float64 {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

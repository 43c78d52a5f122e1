// Package csvexport flattens normalized products into CSV, one row per
// variant. Prices pass through as the feed's decimal strings.
package csvexport

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"shopharvest/packages/domain"
)

var header = []string{
	"product_id", "title", "handle", "vendor", "product_type", "tags",
	"created_at", "updated_at", "published_at",
	"variant_id", "variant_title", "price", "compare_at_price", "sku",
	"inventory_quantity", "grams", "option1", "option2", "option3",
	"image_src",
}

// Write emits one row per variant; a product with no variants still gets a
// row with the variant columns empty.
func Write(w io.Writer, products []domain.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range products {
		base := []string{
			strconv.FormatInt(p.ID, 10),
			p.Title,
			p.Handle,
			p.Vendor,
			p.ProductType,
			strings.Join(p.Tags, ", "),
			p.CreatedAt,
			p.UpdatedAt,
			p.PublishedAt,
		}
		imageSrc := ""
		if len(p.Images) > 0 {
			imageSrc = p.Images[0].Src
		}

		if len(p.Variants) == 0 {
			row := append(append([]string{}, base...),
				"", "", "", "", "", "", "", "", "", "", imageSrc)
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}

		for _, v := range p.Variants {
			row := append(append([]string{}, base...),
				strconv.FormatInt(v.ID, 10),
				v.Title,
				v.Price,
				optStr(v.CompareAtPrice),
				v.SKU,
				optInt(v.InventoryQuantity),
				optFloat(v.Grams),
				optStr(v.Option1),
				optStr(v.Option2),
				optStr(v.Option3),
				imageSrc,
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func optStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

package catalog

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/fern/pkg/softone"
)

// Item is a normalized ERP row. Empty strings and nil numbers mean "not provided".
type Item struct {
	Mtrl        string
	SKU         string
	Barcode     string
	Code        string
	Name        string
	Description string
	Category    string
	Colour      string
	Size        string
	Brand       string
	Price       *float64
	Stock       *float64
	Fields      map[string]any
}

var fieldAliases = map[string][]string{
	"mtrl":        {"mtrl"},
	"sku":         {"sku", "item_sku"},
	"barcode":     {"barcode", "item_barcode", "ean"},
	"code":        {"code", "item_code"},
	"name":        {"name", "item_name", "title"},
	"description": {"description", "long_description", "remarks", "item_remarks"},
	"price":       {"price", "retail_price", "pricer", "item_pricer"},
	"stock":       {"stock", "stock_qty", "qty", "quantity", "balance"},
	"category":    {"category", "category_name", "commercategory_name", "mtrcategory_name"},
	"colour":      {"colour", "color", "colour_name", "color_name"},
	"size":        {"size", "size_name"},
	"brand":       {"brand", "brand_name", "mtrmark_name"},
}

// NormalizeKey lower-cases an ERP column name and converts it to snake case.
// "MTRL" becomes "mtrl", "ItemCode" becomes "item_code" and "ITEM.CODE" becomes
// "item_code".
func NormalizeKey(key string) string {
	runes := []rune(strings.TrimSpace(key))
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '_':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

// aliasKey drops word separators so "BarCode", "BAR_CODE" and "barcode" all
// resolve to the same alias.
func aliasKey(key string) string {
	return strings.ReplaceAll(NormalizeKey(key), "_", "")
}

// Normalize maps a raw row onto an Item.
func Normalize(raw RawRow) Item {
	fields := make(map[string]any, len(raw))
	byAlias := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[NormalizeKey(k)] = v
		ak := aliasKey(k)
		if _, ok := byAlias[ak]; !ok || softone.Text(byAlias[ak]) == "" {
			byAlias[ak] = v
		}
	}

	text := func(field string) string {
		for _, alias := range fieldAliases[field] {
			if s := softone.Text(byAlias[aliasKey(alias)]); s != "" {
				return s
			}
		}
		return ""
	}
	number := func(field string) *float64 {
		for _, alias := range fieldAliases[field] {
			if n, ok := softone.Number(byAlias[aliasKey(alias)]); ok {
				return &n
			}
		}
		return nil
	}

	return Item{
		Mtrl:        text("mtrl"),
		SKU:         text("sku"),
		Barcode:     text("barcode"),
		Code:        text("code"),
		Name:        text("name"),
		Description: text("description"),
		Category:    text("category"),
		Colour:      text("colour"),
		Size:        text("size"),
		Brand:       text("brand"),
		Price:       number("price"),
		Stock:       number("stock"),
		Fields:      fields,
	}
}

// SKUCandidates lists the secondary identity keys in lookup order.
func (i Item) SKUCandidates() []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range []string{i.SKU, i.Barcode, i.Code} {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Attributes returns the attribute terms present on the row.
func (i Item) Attributes() [][2]string {
	var out [][2]string
	for _, a := range [][2]string{{"colour", i.Colour}, {"size", i.Size}, {"brand", i.Brand}} {
		if a[1] != "" {
			out = append(out, a)
		}
	}
	return out
}

// internal/domain/catalog/entity.go
package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category represents a product category document
type Category struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	SortOrder int                `bson:"sort_order" json:"sort_order"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Variant represents one purchasable variant embedded in a product
type Variant struct {
	ID       string `bson:"id" json:"id"` // uuid hex
	Label    string `bson:"label" json:"label"`
	Price    int64  `bson:"price" json:"price"` // price in minor units
	Quantity int    `bson:"quantity" json:"quantity"`
}

// Product represents a product document with embedded variants.
// Images is ordered; the first entry is the one shown on cart lines
// and the public image endpoint.
type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	CategoryID  primitive.ObjectID `bson:"category_id" json:"category_id"`
	Images      []string           `bson:"images,omitempty" json:"images,omitempty"`
	Available   bool               `bson:"available" json:"available"`
	Variants    []Variant          `bson:"variants" json:"variants"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// PrimaryImage returns the first image blob id, or "" for a product
// without images
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Variant returns the embedded variant with the given id
func (p *Product) Variant(variantID string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// HasStock reports whether any variant has units left
func (p *Product) HasStock() bool {
	for _, v := range p.Variants {
		if v.Quantity > 0 {
			return true
		}
	}
	return false
}

// Entry is the customer-facing projection of a product inside a snapshot
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CategoryID  string    `json:"category_id"`
	Images      []string  `json:"images,omitempty"`
	Available   bool      `json:"available"`
	Variants    []Variant `json:"variants"`
}

// CategoryEntry is the snapshot projection of a category
type CategoryEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// Snapshot is an immutable point-in-time view of the catalog
type Snapshot struct {
	Categories   []CategoryEntry `json:"categories"`
	Products     []Entry         `json:"products"`
	SkippedCount int             `json:"-"`
	Hash         string          `json:"-"` // hex sha256 of the encoded body, doubles as the ETag
}

const maxDescriptionRunes = 300

// DecodeResult is the outcome of decoding one raw product record:
// either a usable entry or a reason it was skipped.
type DecodeResult struct {
	Entry      Entry
	Skipped    bool
	SkipReason string
}

// DecodeProduct turns a raw product document into a snapshot entry,
// skipping records the storefront cannot render instead of failing the
// whole build.
func DecodeProduct(raw bson.M) DecodeResult {
	name, _ := raw["name"].(string)
	if name == "" {
		return DecodeResult{Skipped: true, SkipReason: "missing name"}
	}
	categoryID, ok := raw["category_id"].(primitive.ObjectID)
	if !ok || categoryID.IsZero() {
		return DecodeResult{Skipped: true, SkipReason: "missing category_id"}
	}
	id, ok := raw["_id"].(primitive.ObjectID)
	if !ok {
		return DecodeResult{Skipped: true, SkipReason: "missing _id"}
	}

	entry := Entry{
		ID:         id.Hex(),
		Name:       name,
		CategoryID: categoryID.Hex(),
		Variants:   []Variant{},
	}
	if desc, ok := raw["description"].(string); ok {
		entry.Description = truncateRunes(desc, maxDescriptionRunes)
	}
	if rawImages, ok := raw["images"].(bson.A); ok {
		for _, ri := range rawImages {
			if img, ok := ri.(string); ok && img != "" {
				entry.Images = append(entry.Images, img)
			}
		}
	} else if imageID, ok := raw["image_id"].(string); ok && imageID != "" {
		// Documents written before images became a list.
		entry.Images = []string{imageID}
	}
	if available, ok := raw["available"].(bool); ok {
		entry.Available = available
	}
	if rawVariants, ok := raw["variants"].(bson.A); ok {
		for _, rv := range rawVariants {
			vm, ok := rv.(bson.M)
			if !ok {
				continue
			}
			v := Variant{}
			v.ID, _ = vm["id"].(string)
			v.Label, _ = vm["label"].(string)
			v.Price = asInt64(vm["price"])
			v.Quantity = int(asInt64(vm["quantity"]))
			if v.ID == "" {
				continue
			}
			entry.Variants = append(entry.Variants, v)
		}
	}
	return DecodeResult{Entry: entry}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

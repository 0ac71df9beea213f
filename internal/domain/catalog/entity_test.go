// internal/domain/catalog/entity_test.go
package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rawProduct() bson.M {
	return bson.M{
		"_id":         primitive.NewObjectID(),
		"name":        "Espresso Beans",
		"description": "Dark roast",
		"category_id": primitive.NewObjectID(),
		"images":      bson.A{"img-1", "img-2"},
		"available":   true,
		"variants": bson.A{
			bson.M{"id": "v-250", "label": "250g", "price": int32(1200), "quantity": int32(5)},
			bson.M{"id": "v-1kg", "label": "1kg", "price": int64(4000), "quantity": int64(2)},
		},
	}
}

func TestDecodeProduct(t *testing.T) {
	raw := rawProduct()
	result := DecodeProduct(raw)
	require.False(t, result.Skipped)

	entry := result.Entry
	assert.Equal(t, raw["_id"].(primitive.ObjectID).Hex(), entry.ID)
	assert.Equal(t, "Espresso Beans", entry.Name)
	assert.Equal(t, raw["category_id"].(primitive.ObjectID).Hex(), entry.CategoryID)
	assert.Equal(t, []string{"img-1", "img-2"}, entry.Images)
	assert.True(t, entry.Available)
	require.Len(t, entry.Variants, 2)
	assert.Equal(t, int64(1200), entry.Variants[0].Price)
	assert.Equal(t, 5, entry.Variants[0].Quantity)
	assert.Equal(t, int64(4000), entry.Variants[1].Price)
}

func TestDecodeProductSkipsMalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(bson.M)
		reason string
	}{
		{"missing name", func(m bson.M) { delete(m, "name") }, "missing name"},
		{"empty name", func(m bson.M) { m["name"] = "" }, "missing name"},
		{"missing category", func(m bson.M) { delete(m, "category_id") }, "missing category_id"},
		{"zero category", func(m bson.M) { m["category_id"] = primitive.ObjectID{} }, "missing category_id"},
		{"missing id", func(m bson.M) { delete(m, "_id") }, "missing _id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawProduct()
			tt.mutate(raw)
			result := DecodeProduct(raw)
			assert.True(t, result.Skipped)
			assert.Equal(t, tt.reason, result.SkipReason)
		})
	}
}

func TestDecodeProductDropsVariantsWithoutID(t *testing.T) {
	raw := rawProduct()
	raw["variants"] = bson.A{
		bson.M{"label": "no id", "price": int32(100), "quantity": int32(1)},
		bson.M{"id": "v-ok", "label": "ok", "price": int32(100), "quantity": int32(1)},
	}
	result := DecodeProduct(raw)
	require.False(t, result.Skipped)
	require.Len(t, result.Entry.Variants, 1)
	assert.Equal(t, "v-ok", result.Entry.Variants[0].ID)
}

func TestDecodeProductLegacySingleImage(t *testing.T) {
	raw := rawProduct()
	delete(raw, "images")
	raw["image_id"] = "img-legacy"

	result := DecodeProduct(raw)
	require.False(t, result.Skipped)
	assert.Equal(t, []string{"img-legacy"}, result.Entry.Images)
}

func TestProductPrimaryImage(t *testing.T) {
	p := &Product{Images: []string{"img-1", "img-2"}}
	assert.Equal(t, "img-1", p.PrimaryImage())
	assert.Equal(t, "", (&Product{}).PrimaryImage())
}

func TestDecodeProductTruncatesDescription(t *testing.T) {
	raw := rawProduct()
	raw["description"] = strings.Repeat("é", 500)
	result := DecodeProduct(raw)
	require.False(t, result.Skipped)
	assert.Equal(t, maxDescriptionRunes, len([]rune(result.Entry.Description)))
}

func TestSnapshotHashTracksContent(t *testing.T) {
	a := &Snapshot{
		Categories: []CategoryEntry{{ID: "c1", Name: "Coffee"}},
		Products:   []Entry{{ID: "p1", Name: "Beans", Variants: []Variant{}}},
	}
	hashA, err := hashSnapshot(a)
	require.NoError(t, err)

	again, err := hashSnapshot(a)
	require.NoError(t, err)
	assert.Equal(t, hashA, again)

	b := &Snapshot{
		Categories: a.Categories,
		Products:   []Entry{{ID: "p1", Name: "Beans", Variants: []Variant{{ID: "v1", Quantity: 3}}}},
	}
	hashB, err := hashSnapshot(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestEmptySnapshot(t *testing.T) {
	s := EmptySnapshot()
	assert.Empty(t, s.Categories)
	assert.Empty(t, s.Products)
	assert.NotEmpty(t, s.Hash)
	assert.Equal(t, EmptySnapshot().Hash, s.Hash)
}

func TestProductVariantLookup(t *testing.T) {
	p := &Product{Variants: []Variant{
		{ID: "v1", Quantity: 0},
		{ID: "v2", Quantity: 4},
	}}

	v, ok := p.Variant("v2")
	require.True(t, ok)
	assert.Equal(t, 4, v.Quantity)

	_, ok = p.Variant("v9")
	assert.False(t, ok)
	assert.True(t, p.HasStock())

	p.Variants[1].Quantity = 0
	assert.False(t, p.HasStock())
}

// internal/domain/backup/service.go
package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

// Versioner bumps the catalog version after an import rewrites catalog
// collections, so caches pick the imported data up.
type Versioner interface {
	Invalidate(ctx context.Context) error
}

var defaultCollections = []string{"categories", "products", "store_settings"}

var catalogCollections = map[string]bool{
	"categories": true,
	"products":   true,
}

// Service exports and restores database collections as gzip JSON
// archives.
type Service struct {
	db     *mongo.Database
	cache  Versioner
	logger *logrus.Logger
}

// NewService creates a new backup service
func NewService(db *mongo.Database, cache Versioner, logger *logrus.Logger) *Service {
	return &Service{db: db, cache: cache, logger: logger}
}

// ExportOptions selects what goes into an export. Collections, when
// set, overrides the default set entirely.
type ExportOptions struct {
	Collections   []string
	IncludeCarts  bool
	IncludeOrders bool
}

// Export writes the selected collections to w as a gzip JSON archive
// and returns the suggested download file name.
func (s *Service) Export(ctx context.Context, opts ExportOptions, w io.Writer) (string, error) {
	names := append([]string(nil), defaultCollections...)
	if opts.IncludeCarts {
		names = append(names, "carts")
	}
	if opts.IncludeOrders {
		names = append(names, "orders")
	}
	if len(opts.Collections) > 0 {
		names = opts.Collections
	}

	archive := &Archive{
		Version:     archiveVersion,
		ExportedAt:  time.Now().UTC(),
		Collections: make(map[string][]map[string]any, len(names)),
	}
	for _, name := range names {
		docs, err := s.dump(ctx, name)
		if err != nil {
			return "", fmt.Errorf("failed to export collection %s: %w", name, err)
		}
		archive.Collections[name] = docs
		s.logger.WithFields(logrus.Fields{"collection": name, "documents": len(docs)}).Info("exported collection")
	}

	if err := EncodeArchive(w, archive); err != nil {
		return "", fmt.Errorf("failed to encode backup archive: %w", err)
	}
	return fmt.Sprintf("backup_%s.json.gz", archive.ExportedAt.Format("20060102_150405")), nil
}

func (s *Service) dump(ctx context.Context, name string) ([]map[string]any, error) {
	cursor, err := s.db.Collection(name).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []map[string]any{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, serializeDoc(doc))
	}
	return docs, cursor.Err()
}

// CollectionResult is the per-collection outcome of an import.
type CollectionResult struct {
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// ImportReport summarizes an import run.
type ImportReport struct {
	Total       int                         `json:"total_imported"`
	Collections map[string]CollectionResult `json:"collections"`
	ExportedAt  time.Time                   `json:"exported_at"`
	Version     string                      `json:"version"`
}

// Import restores collections from an archive. With clearExisting each
// target collection is emptied first; otherwise documents carrying an
// _id replace their current copy and the rest are inserted as new. A
// failed collection is reported and does not stop the others.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader, clearExisting bool) (*ImportReport, error) {
	archive, err := DecodeArchive(fileName, r)
	if err != nil {
		return nil, &apperrors.ValidationError{Field: "file", Message: err.Error()}
	}

	report := &ImportReport{
		Collections: make(map[string]CollectionResult, len(archive.Collections)),
		ExportedAt:  archive.ExportedAt,
		Version:     archive.Version,
	}
	touchedCatalog := false
	for name, docs := range archive.Collections {
		count, err := s.restore(ctx, name, docs, clearExisting)
		if err != nil {
			s.logger.WithError(err).WithField("collection", name).Error("collection import failed")
			report.Collections[name] = CollectionResult{Imported: count, Error: err.Error()}
			continue
		}
		report.Collections[name] = CollectionResult{Imported: count}
		report.Total += count
		if catalogCollections[name] {
			touchedCatalog = true
		}
	}

	if touchedCatalog {
		if err := s.cache.Invalidate(ctx); err != nil {
			return nil, fmt.Errorf("catalog imported but version bump failed: %w", err)
		}
	}
	return report, nil
}

func (s *Service) restore(ctx context.Context, name string, docs []map[string]any, clearExisting bool) (int, error) {
	coll := s.db.Collection(name)

	if clearExisting {
		if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
			return 0, err
		}
		if len(docs) == 0 {
			return 0, nil
		}
		rows := make([]interface{}, 0, len(docs))
		for _, doc := range docs {
			rows = append(rows, deserializeDoc(doc))
		}
		res, err := coll.InsertMany(ctx, rows, options.InsertMany().SetOrdered(false))
		if err != nil {
			return 0, err
		}
		return len(res.InsertedIDs), nil
	}

	count := 0
	for _, raw := range docs {
		doc := deserializeDoc(raw)
		if id, ok := doc["_id"]; ok {
			if _, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true)); err != nil {
				return count, err
			}
		} else {
			if _, err := coll.InsertOne(ctx, doc); err != nil {
				return count, err
			}
		}
		count++
	}
	return count, nil
}

// Info describes the database for the backup screen. A collection
// whose count fails is reported as -1.
type Info struct {
	Collections map[string]int64 `json:"collections"`
	Total       int              `json:"total_collections"`
}

// Info lists every collection with its document count.
func (s *Service) Info(ctx context.Context) (*Info, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	info := &Info{Collections: make(map[string]int64, len(names)), Total: len(names)}
	for _, name := range names {
		count, err := s.db.Collection(name).CountDocuments(ctx, bson.M{})
		if err != nil {
			s.logger.WithError(err).WithField("collection", name).Warn("failed to count collection")
			count = -1
		}
		info.Collections[name] = count
	}
	return info, nil
}

// internal/domain/backup/archive.go
package backup

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const archiveVersion = "1.0"

// Archive is the portable form of a database dump: one JSON document
// holding every exported collection, gzipped on the wire.
type Archive struct {
	Version     string                      `json:"version"`
	ExportedAt  time.Time                   `json:"exported_at"`
	Collections map[string][]map[string]any `json:"collections"`
}

// EncodeArchive writes the archive as gzipped JSON.
func EncodeArchive(w io.Writer, a *Archive) error {
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(a); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// DecodeArchive reads an archive back. The file name decides the
// framing: .gz and .json.gz are gzipped, .json is plain.
func DecodeArchive(name string, r io.Reader) (*Archive, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("not a gzip archive: %w", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(name, ".json"):
	default:
		return nil, fmt.Errorf("unsupported backup file %q, want .json or .json.gz", name)
	}

	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("malformed backup archive: %w", err)
	}
	if a.Collections == nil {
		return nil, errors.New("backup archive has no collections section")
	}
	return &a, nil
}

// serializeDoc rewrites driver types into JSON-safe values: ObjectIDs
// become hex strings and timestamps become RFC 3339 strings.
func serializeDoc(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = serializeValue(v)
	}
	return out
}

func serializeValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case bson.M:
		return serializeDoc(val)
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = serializeValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = serializeValue(item)
		}
		return out
	default:
		return v
	}
}

// deserializeDoc undoes serializeDoc far enough for reinsertion: the
// _id key and any key ending in _id goes back to an ObjectID when its
// value is valid hex. Other strings keep their JSON form, so variant
// ids and image ids survive untouched.
func deserializeDoc(doc map[string]any) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = deserializeValue(k, v)
	}
	return out
}

func deserializeValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		if strings.HasSuffix(key, "_id") {
			if oid, err := primitive.ObjectIDFromHex(val); err == nil {
				return oid
			}
		}
		return val
	case map[string]any:
		return deserializeDoc(val)
	case []any:
		out := make(bson.A, len(val))
		for i, item := range val {
			if m, ok := item.(map[string]any); ok {
				out[i] = deserializeDoc(m)
			} else {
				out[i] = item
			}
		}
		return out
	default:
		return v
	}
}

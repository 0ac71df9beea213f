// internal/infrastructure/blob/gridfs.go

// Package blob stores binary payloads (payment receipts, product
// images) in MongoDB GridFS.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Meta describes a stored blob
type Meta struct {
	Name        string
	ContentType string
	Length      int64
}

// Store is the blob storage surface the domain services consume
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Meta, error)
	Delete(ctx context.Context, id string) error
}

// GridFSStore implements Store on a GridFS bucket
type GridFSStore struct {
	bucket *gridfs.Bucket
}

// NewGridFSStore creates a blob store backed by the named GridFS bucket
func NewGridFSStore(db *mongo.Database, bucketName string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to create gridfs bucket: %w", err)
	}
	return &GridFSStore{bucket: bucket}, nil
}

// Put stores the stream and returns the hex id of the new blob
func (s *GridFSStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	// Uploads in the driver are deadline-based, not context-based.
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.bucket.SetWriteDeadline(deadline); err != nil {
			return "", fmt.Errorf("failed to set upload deadline: %w", err)
		}
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"content_type": contentType})
	id, err := s.bucket.UploadFromStream(name, r, opts)
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", name, err)
	}
	return id.Hex(), nil
}

// Open returns a reader over the blob and its metadata
func (s *GridFSStore) Open(ctx context.Context, id string) (io.ReadCloser, *Meta, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid blob id %q: %w", id, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.bucket.SetReadDeadline(deadline); err != nil {
			return nil, nil, fmt.Errorf("failed to set download deadline: %w", err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStream(oid, &buf); err != nil {
		return nil, nil, fmt.Errorf("failed to download blob %s: %w", id, err)
	}

	cursor, err := s.bucket.FindContext(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up blob %s: %w", id, err)
	}
	defer cursor.Close(ctx)

	meta := &Meta{ContentType: "application/octet-stream"}
	if cursor.Next(ctx) {
		var doc struct {
			Filename string `bson:"filename"`
			Length   int64  `bson:"length"`
			Metadata struct {
				ContentType string `bson:"content_type"`
			} `bson:"metadata"`
		}
		if err := cursor.Decode(&doc); err == nil {
			meta.Name = doc.Filename
			meta.Length = doc.Length
			if doc.Metadata.ContentType != "" {
				meta.ContentType = doc.Metadata.ContentType
			}
		}
	}

	return io.NopCloser(&buf), meta, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (s *GridFSStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid blob id %q: %w", id, err)
	}
	if err := s.bucket.DeleteContext(ctx, oid); err != nil && err != gridfs.ErrFileNotFound {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}

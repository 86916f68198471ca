package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

// Extractor is the pure bytes->text boundary artifacts extract
// through. A nil Extractor, an error, or an empty return all leave
// extracted_text empty; the save still succeeds.
type Extractor interface {
	Extract(data []byte, mimeHint string) (string, error)
}

const idLength = 12 // first 12 hex chars of the content digest

// SaveArtifact reads file_path, computes its content-derived id,
// extracts text when the mime hint looks extractable, and writes the
// record plus its search body. Saving identical bytes again yields the
// same id and only updates title/description.
func (s *Store) SaveArtifact(ctx context.Context, filePath, title, description string, extractor Extractor, now int64) (*model.Artifact, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, apierr.BadRequestf("cannot stat %s: %v", filePath, err)
	}
	if info.Size() > s.artCap {
		return nil, apierr.BadRequestf("artifact %s exceeds size cap of %d bytes", filePath, s.artCap)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, apierr.BadRequestf("cannot read %s: %v", filePath, err)
	}

	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])[:idLength]

	mimeHint := mimeHintFromPath(filePath)

	existing, err := s.GetArtifact(ctx, id)
	if err != nil {
		if e, ok := apierr.As(err); !ok || e.Kind != apierr.NotFound {
			return nil, err
		}
		existing = nil
	}

	var extractedText string
	if existing != nil {
		extractedText = existing.ExtractedText
	} else if extractor != nil && looksExtractable(mimeHint) {
		text, extractErr := extractor.Extract(data, mimeHint)
		if extractErr == nil {
			extractedText = strings.TrimSpace(text)
		}
		// Extraction failures are silently swallowed: the
		// save still succeeds with an empty extracted_text.
	}

	art := &model.Artifact{
		ID:            id,
		FilePath:      filePath,
		Title:         title,
		Description:   description,
		ExtractedText: extractedText,
		MimeHint:      mimeHint,
		SizeBytes:     info.Size(),
		CreatedAt:     now,
	}
	if existing != nil {
		art.CreatedAt = existing.CreatedAt
		art.FilePath = existing.FilePath
		art.MimeHint = existing.MimeHint
	}

	payload, err := json.Marshal(art)
	if err != nil {
		return nil, apierr.Internalf("marshal artifact: %v", err)
	}
	searchBody := strings.ToLower(title + " " + description + " " + extractedText)

	err = s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, keyArtifact(id), "json", payload)
			pipe.ZAdd(ctx, keyArtifactsAll(), redis.Z{Score: float64(art.CreatedAt), Member: id})
			pipe.Set(ctx, keySearchArtifactBody(id), searchBody, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// GetArtifact reads an artifact record, or apierr.NotFound.
func (s *Store) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	var raw string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.HGet(ctx, keyArtifact(id), "json").Result()
		raw = v
		return err
	})
	if err == redis.Nil {
		return nil, apierr.NotFoundf("artifact %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	var art model.Artifact
	if err := json.Unmarshal([]byte(raw), &art); err != nil {
		return nil, apierr.Internalf("unmarshal artifact %s: %v", id, err)
	}
	return &art, nil
}

// ListArtifacts returns every artifact, newest first, for Search.
func (s *Store) ListArtifacts(ctx context.Context) ([]*model.Artifact, error) {
	var ids []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.ZRevRange(ctx, keyArtifactsAll(), 0, -1).Result()
		ids = v
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Artifact, 0, len(ids))
	for _, id := range ids {
		art, err := s.GetArtifact(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, art)
	}
	return out, nil
}

// ArtifactSearchBody returns the lowercased search body for an artifact.
func (s *Store) ArtifactSearchBody(ctx context.Context, id string) (string, error) {
	var body string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.Get(ctx, keySearchArtifactBody(id)).Result()
		body = v
		return err
	})
	if err == redis.Nil {
		return "", nil
	}
	return body, err
}

// DeleteArtifact removes an artifact's record, index entry, and search
// body, for the TUI's delete action.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	if _, err := s.GetArtifact(ctx, id); err != nil {
		return err
	}
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, keyArtifactsAll(), id)
			pipe.Del(ctx, keyArtifact(id))
			pipe.Del(ctx, keySearchArtifactBody(id))
			return nil
		})
		return err
	})
}

func mimeHintFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return ""
	}
}

func looksExtractable(mimeHint string) bool {
	return mimeHint == "application/pdf"
}

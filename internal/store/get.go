package store

import (
	"context"
	"strings"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

// Get resolves an identifier (chain:<name>:<slug>, chain:<name>,
// artifact:<id>, session:<id>) to its full content. Pagination over
// the resolved content is applied separately by Chunk.
func (s *Store) Get(ctx context.Context, id string) (*model.Resolved, error) {
	switch {
	case strings.HasPrefix(id, "chain:"):
		rest := strings.TrimPrefix(id, "chain:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) == 2 {
			link, err := s.ChainLinkBySlug(ctx, parts[0], parts[1])
			if err != nil {
				return nil, err
			}
			return &model.Resolved{Kind: model.KindChainLink, Content: link.Content}, nil
		}
		links, _, err := s.ChainLoad(ctx, rest, 0, 0)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for i, l := range links {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(l.Slug)
			sb.WriteString(":\n")
			sb.WriteString(l.Content)
		}
		return &model.Resolved{Kind: model.KindChain, Content: sb.String()}, nil

	case strings.HasPrefix(id, "artifact:"):
		artID := strings.TrimPrefix(id, "artifact:")
		art, err := s.GetArtifact(ctx, artID)
		if err != nil {
			return nil, err
		}
		content := art.ExtractedText
		if content == "" {
			content = art.Description
		}
		return &model.Resolved{Kind: model.KindArtifact, Content: content}, nil

	case strings.HasPrefix(id, "session:"):
		sessID := strings.TrimPrefix(id, "session:")
		sess, err := s.GetSession(ctx, sessID)
		if err != nil {
			return nil, err
		}
		payload, err := sessionSummary(sess)
		if err != nil {
			return nil, err
		}
		return &model.Resolved{Kind: model.KindSession, Content: payload}, nil

	default:
		return nil, apierr.BadRequestf("unrecognized identifier %q", id)
	}
}

func sessionSummary(sess *model.Session) (string, error) {
	var sb strings.Builder
	sb.WriteString("id: " + sess.ID + "\n")
	sb.WriteString("agent: " + sess.Agent + "\n")
	sb.WriteString("cwd: " + sess.Cwd + "\n")
	sb.WriteString("status: " + string(sess.Status) + "\n")
	return sb.String(), nil
}

// Chunk applies the GET /get/:id pagination contract:
// {chunk, total_chars, next_offset?} over resolved content.
func Chunk(content string, offset, maxChars int) (chunk string, total int, nextOffset *int) {
	runes := []rune(content)
	total = len(runes)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return "", total, nil
	}
	if maxChars <= 0 {
		maxChars = total
	}
	end := offset + maxChars
	if end > total {
		end = total
	}
	chunk = string(runes[offset:end])
	if end < total {
		n := end
		nextOffset = &n
	}
	return chunk, total, nextOffset
}

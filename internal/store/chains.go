package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

type chainMeta struct {
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ChainLink creates the chain if absent, resolves a slug collision by
// appending "-2", "-3", ... (lowest unused suffix), appends the link,
// updates the chain's updated_at, and writes the lowercased search
// body. Returns the slug actually used.
func (s *Store) ChainLink(ctx context.Context, name, slug, content string, now int64) (string, error) {
	existing, err := s.chainLinksRaw(ctx, name)
	if err != nil {
		return "", err
	}
	used := resolveSlug(slug, existing)

	link := model.Link{Slug: used, Content: content, TS: now}
	payload, err := json.Marshal(link)
	if err != nil {
		return "", apierr.Internalf("marshal link: %v", err)
	}

	meta, err := s.getChainMeta(ctx, name)
	if err != nil {
		return "", err
	}
	if meta == nil {
		meta = &chainMeta{Name: name, CreatedAt: now}
	}
	meta.UpdatedAt = now
	metaPayload, err := json.Marshal(meta)
	if err != nil {
		return "", apierr.Internalf("marshal chain meta: %v", err)
	}

	searchBody := strings.ToLower(name + " " + used + " " + content)

	err = s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, keyChainLinks(name), payload)
			pipe.HSet(ctx, keyChain(name), "json", metaPayload)
			pipe.SAdd(ctx, keyChainsAll(), name)
			pipe.Set(ctx, keySearchChainBody(name, used), searchBody, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return used, nil
}

// resolveSlug appends the lowest unused numeric suffix to slug if it
// already exists among existing links.
func resolveSlug(slug string, existing []model.Link) string {
	used := make(map[string]bool, len(existing))
	for _, l := range existing {
		used[l.Slug] = true
	}
	if !used[slug] {
		return slug
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", slug, n)
		if !used[candidate] {
			return candidate
		}
	}
}

func (s *Store) chainLinksRaw(ctx context.Context, name string) ([]model.Link, error) {
	var raws []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.LRange(ctx, keyChainLinks(name), 0, -1).Result()
		raws = v
		return err
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]model.Link, 0, len(raws))
	for _, r := range raws {
		var l model.Link
		if err := json.Unmarshal([]byte(r), &l); err == nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) getChainMeta(ctx context.Context, name string) (*chainMeta, error) {
	var raw string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.HGet(ctx, keyChain(name), "json").Result()
		raw = v
		return err
	})
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m chainMeta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, apierr.Internalf("unmarshal chain meta: %v", err)
	}
	return &m, nil
}

// ChainLoad returns a chain's links newest-first, optionally paginated
// by offset/limit.
func (s *Store) ChainLoad(ctx context.Context, name string, limit, offset int) ([]model.Link, int, error) {
	links, err := s.chainLinksRaw(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if len(links) == 0 {
		return nil, 0, apierr.NotFoundf("chain %s not found", name)
	}
	reversed := make([]model.Link, len(links))
	for i, l := range links {
		reversed[len(links)-1-i] = l
	}
	total := len(reversed)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []model.Link{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return reversed[offset:end], total, nil
}

// ChainList returns every chain's summary, for GET /chains.
func (s *Store) ChainList(ctx context.Context) ([]model.Chain, error) {
	var names []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.SMembers(ctx, keyChainsAll()).Result()
		names = v
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Chain, 0, len(names))
	for _, name := range names {
		meta, err := s.getChainMeta(ctx, name)
		if err != nil || meta == nil {
			continue
		}
		links, err := s.chainLinksRaw(ctx, name)
		if err != nil {
			continue
		}
		out = append(out, model.Chain{
			Name:      meta.Name,
			CreatedAt: meta.CreatedAt,
			UpdatedAt: meta.UpdatedAt,
			LinkCount: len(links),
		})
	}
	return out, nil
}

// AllChainNames returns every chain name, used by Search.
func (s *Store) AllChainNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.SMembers(ctx, keyChainsAll()).Result()
		names = v
		return err
	})
	return names, err
}

// ChainUpdatedAt returns a chain's updated_at, used to break fuzzy-score
// ties in Search.
func (s *Store) ChainUpdatedAt(ctx context.Context, name string) (int64, error) {
	meta, err := s.getChainMeta(ctx, name)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, apierr.NotFoundf("chain %s not found", name)
	}
	return meta.UpdatedAt, nil
}

// ChainLinkBySlug finds one link by slug within a chain, for the
// chain:<name>:<slug> identifier grammar.
func (s *Store) ChainLinkBySlug(ctx context.Context, name, slug string) (*model.Link, error) {
	links, err := s.chainLinksRaw(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := len(links) - 1; i >= 0; i-- {
		if links[i].Slug == slug {
			return &links[i], nil
		}
	}
	return nil, apierr.NotFoundf("link %s:%s not found", name, slug)
}

// SearchBodies returns every chain-link search body (name, slug,
// lowercased text) for Search's text mode.
func (s *Store) SearchBodies(ctx context.Context) ([]ChainSearchBody, error) {
	names, err := s.AllChainNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []ChainSearchBody
	for _, name := range names {
		links, err := s.chainLinksRaw(ctx, name)
		if err != nil {
			continue
		}
		updatedAt, _ := s.ChainUpdatedAt(ctx, name)
		for _, l := range links {
			var body string
			err := s.withRetry(ctx, func(ctx context.Context) error {
				v, err := s.rdb.Get(ctx, keySearchChainBody(name, l.Slug)).Result()
				body = v
				return err
			})
			if err != nil && err != redis.Nil {
				continue
			}
			out = append(out, ChainSearchBody{
				ChainName: name,
				Slug:      l.Slug,
				Body:      body,
				UpdatedAt: updatedAt,
			})
		}
	}
	return out, nil
}

// ChainSearchBody is one lowercased search body plus the identity it
// belongs to, consumed by internal/search.
type ChainSearchBody struct {
	ChainName string
	Slug      string
	Body      string
	UpdatedAt int64
}

// DeleteChain removes a chain's metadata, links, index entry, and
// every link's search body, for the TUI's delete action.
func (s *Store) DeleteChain(ctx context.Context, name string) error {
	links, err := s.chainLinksRaw(ctx, name)
	if err != nil {
		return err
	}
	meta, err := s.getChainMeta(ctx, name)
	if err != nil {
		return err
	}
	if meta == nil {
		return apierr.NotFoundf("chain %s not found", name)
	}
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, keyChainsAll(), name)
			pipe.Del(ctx, keyChain(name))
			pipe.Del(ctx, keyChainLinks(name))
			for _, l := range links {
				pipe.Del(ctx, keySearchChainBody(name, l.Slug))
			}
			return nil
		})
		return err
	})
}

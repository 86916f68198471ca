// Package api implements tinymem's two transports: the
// authenticated HTTP surface and the stdio tool protocol. Both transports
// are thin encodings over Service, which holds the only logic that
// matters: validation, routing to Store/Rendezvous/Search, and error
// classification.
package api

import (
	"context"
	"time"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/eventbus"
	"github.com/advpropsys/tinymem/internal/extract"
	"github.com/advpropsys/tinymem/internal/logging"
	"github.com/advpropsys/tinymem/internal/model"
	"github.com/advpropsys/tinymem/internal/rendezvous"
	"github.com/advpropsys/tinymem/internal/search"
	"github.com/advpropsys/tinymem/internal/store"
)

// Clock is injected so tests can control time; production wires
// time.Now().Unix().
type Clock func() int64

// Service is the transport-agnostic core the HTTP and stdio surfaces
// both call into.
type Service struct {
	Store      *store.Store
	Rendezvous *rendezvous.Rendezvous
	Bus        *eventbus.Bus
	Search     *search.Searcher
	Extractor  store.Extractor
	Log        logging.Logger
	Now        Clock
	AskDeadline time.Duration
}

func NewService(s *store.Store, r *rendezvous.Rendezvous, bus *eventbus.Bus, log logging.Logger, askDeadline time.Duration) *Service {
	return &Service{
		Store:       s,
		Rendezvous:  r,
		Bus:         bus,
		Search:      search.New(s),
		Extractor:   extract.New(),
		Log:         log,
		Now:         func() int64 { return time.Now().Unix() },
		AskDeadline: askDeadline,
	}
}

func (svc *Service) now() int64 { return svc.Now() }

// CreateSession implements POST /session.
func (svc *Service) CreateSession(ctx context.Context, agent, cwd, name string) (*model.Session, error) {
	if agent == "" {
		return nil, apierr.BadRequestf("agent is required")
	}
	sess, err := svc.Store.CreateSession(ctx, agent, cwd, name, svc.now())
	if err != nil {
		return nil, err
	}
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindSession, ID: sess.ID})
	return sess, nil
}

// StartSession implements POST /start.
func (svc *Service) StartSession(ctx context.Context, claudeSessionID, agent, cwd string) (id string, reused bool, err error) {
	if claudeSessionID == "" || agent == "" {
		return "", false, apierr.BadRequestf("claude_session_id and agent are required")
	}
	id, reused, err = svc.Store.StartSession(ctx, claudeSessionID, agent, cwd, svc.now())
	if err != nil {
		return "", false, err
	}
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindSession, ID: id})
	return id, reused, nil
}

// GetSession implements GET /session/:id.
func (svc *Service) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return svc.Store.GetSession(ctx, id)
}

// ListSessions implements GET /session.
func (svc *Service) ListSessions(ctx context.Context) ([]*model.Session, error) {
	return svc.Store.ListSessions(ctx)
}

// Hook implements POST /session/:id/hook.
func (svc *Service) Hook(ctx context.Context, id, kind, task string, meta any) (int64, error) {
	var k model.HookKind
	switch kind {
	case string(model.HookPre):
		k = model.HookPre
	case string(model.HookPost):
		k = model.HookPost
	default:
		return 0, apierr.BadRequestf("kind must be %q or %q", model.HookPre, model.HookPost)
	}
	if task == "" {
		return 0, apierr.BadRequestf("task is required")
	}
	seq, err := svc.Store.AppendHook(ctx, id, k, task, meta, svc.now())
	if err != nil {
		return 0, err
	}
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindHook, ID: id})
	return seq, nil
}

// Msg implements POST /session/:id/msg.
func (svc *Service) Msg(ctx context.Context, id, role, content string) error {
	if role == "" {
		return apierr.BadRequestf("role is required")
	}
	err := svc.Store.AppendMsg(ctx, id, role, content, svc.now())
	if err != nil {
		return err
	}
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindMessage, ID: id})
	return nil
}

// Summary implements POST /session/:id/summary (a message with role "summary").
func (svc *Service) Summary(ctx context.Context, id, text string) error {
	return svc.Msg(ctx, id, "summary", text)
}

// Done implements POST /session/:id/done. Idempotent
func (svc *Service) Done(ctx context.Context, id string) error {
	expiredIDs, err := svc.Store.MarkDone(ctx, id, svc.now())
	if err != nil {
		return err
	}
	svc.Rendezvous.ExpireForDone(ctx, expiredIDs)
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindSession, ID: id})
	return nil
}

// Ask implements POST /session/:id/ask: the blocking rendezvous.
func (svc *Service) Ask(ctx context.Context, id, question string) (rendezvous.Outcome, error) {
	if question == "" {
		return rendezvous.Outcome{}, apierr.BadRequestf("question is required")
	}
	if _, err := svc.Store.GetSession(ctx, id); err != nil {
		return rendezvous.Outcome{}, err
	}
	return svc.Rendezvous.Ask(ctx, id, question, svc.AskDeadline, svc.now)
}

// ChainLink implements POST /chain/link.
func (svc *Service) ChainLink(ctx context.Context, chainName, slug, content string) (string, error) {
	if chainName == "" || slug == "" {
		return "", apierr.BadRequestf("chain_name and slug are required")
	}
	used, err := svc.Store.ChainLink(ctx, chainName, slug, content, svc.now())
	if err != nil {
		return "", err
	}
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindChain, ID: chainName})
	return used, nil
}

// ChainLoad implements GET /chain/:name.
func (svc *Service) ChainLoad(ctx context.Context, name string, limit, offset int) ([]model.Link, int, error) {
	return svc.Store.ChainLoad(ctx, name, limit, offset)
}

// ChainList implements GET /chains.
func (svc *Service) ChainList(ctx context.Context) ([]model.Chain, error) {
	return svc.Store.ChainList(ctx)
}

// ChainSearch implements the fuzzy chain-name-match tool/endpoint.
func (svc *Service) ChainSearch(ctx context.Context, query string) ([]search.ChainMatch, error) {
	if query == "" {
		return nil, apierr.BadRequestf("query is required")
	}
	return svc.Search.ChainSearch(ctx, query)
}

// ArtifactSave implements POST /artifact/save.
func (svc *Service) ArtifactSave(ctx context.Context, filePath, title, description string) (*model.Artifact, error) {
	if filePath == "" || title == "" {
		return nil, apierr.BadRequestf("file_path and title are required")
	}
	art, err := svc.Store.SaveArtifact(ctx, filePath, title, description, svc.Extractor, svc.now())
	if err != nil {
		return nil, err
	}
	svc.Bus.Publish(eventbus.Notification{Kind: eventbus.KindArtifact, ID: art.ID})
	return art, nil
}

// SearchText implements GET /search.
func (svc *Service) SearchText(ctx context.Context, query string) ([]search.Result, error) {
	if query == "" {
		return nil, apierr.BadRequestf("q is required")
	}
	return svc.Search.Search(ctx, query)
}

// ChunkResult is the shape of GET /get/:id.
type ChunkResult struct {
	Kind       model.ResolveKind `json:"kind"`
	Chunk      string            `json:"chunk"`
	TotalChars int               `json:"total_chars"`
	NextOffset *int              `json:"next_offset,omitempty"`
}

// Get implements GET /get/:id.
func (svc *Service) Get(ctx context.Context, id string, maxChars, offset int) (*ChunkResult, error) {
	resolved, err := svc.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	chunk, total, next := store.Chunk(resolved.Content, offset, maxChars)
	return &ChunkResult{Kind: resolved.Kind, Chunk: chunk, TotalChars: total, NextOffset: next}, nil
}

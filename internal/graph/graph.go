// Package graph maintains the in-memory directed citation graph and keeps it
// synchronized to a relational store.
//
// A Store instance is mutated only by the goroutine driving a discovery run;
// it is not safe for concurrent writers. The in-memory graph is authoritative
// between saves: persistence failures outside a batch are logged, never
// returned to the caller.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/dedupe"
	"github.com/matsen/sift/internal/identity"
	"github.com/matsen/sift/internal/record"
)

// Persister is the slice of the relational store the graph needs.
type Persister interface {
	LoadGraph(ctx context.Context) ([]record.CanonicalArticle, []record.Citation, error)
	UpsertArticle(ctx context.Context, a record.CanonicalArticle) error
	UpsertCitation(ctx context.Context, c record.Citation) error
}

// NoteCreator regenerates a derived note artifact for one article.
// Implementations live outside this engine.
type NoteCreator interface {
	CreateNote(pdfPath, markdownPath string, analysis map[string]any, citations []record.Citation) (notePath, outPDFPath, outMarkdownPath string, err error)
}

// Graph errors.
var (
	// ErrMissingEndpoint reports an edge referencing a node not present in
	// the graph. Callers treat it as "skip this edge", not as a failure.
	ErrMissingEndpoint = errors.New("citation endpoint not in graph")

	// ErrUnknownArticle reports a query for an id with no node.
	ErrUnknownArticle = errors.New("unknown article")
)

type edgeKey struct {
	citing string
	cited  string
}

// Store is the in-memory citation graph.
type Store struct {
	log      *zap.Logger
	db       Persister
	notes    NoteCreator
	resolver *identity.Resolver

	nodes map[string]*record.CanonicalArticle
	out   map[string]map[string]*record.Citation // citing -> cited -> payload
	in    map[string]map[string]struct{}         // cited -> citing

	// Dirty tracking: only changed nodes and edges are written on Save, so
	// re-saving an unchanged graph performs no writes.
	dirtyNodes map[string]struct{}
	dirtyEdges map[edgeKey]struct{}

	// batch defers persistence until the enclosing operation saves once.
	batch bool
}

// Option configures a Store.
type Option func(*Store)

// WithNoteCreator sets the collaborator used to regenerate note artifacts
// after citation processing. Without one, note regeneration is skipped.
func WithNoteCreator(n NoteCreator) Option {
	return func(s *Store) {
		s.notes = n
	}
}

// WithResolver overrides the identity resolver used when ingesting
// extracted citations.
func WithResolver(r *identity.Resolver) Option {
	return func(s *Store) {
		s.resolver = r
	}
}

// NewStore creates an empty graph backed by db. A nil logger disables
// logging.
func NewStore(db Persister, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		log:        log,
		db:         db,
		resolver:   identity.NewResolver(log),
		nodes:      make(map[string]*record.CanonicalArticle),
		out:        make(map[string]map[string]*record.Citation),
		in:         make(map[string]map[string]struct{}),
		dirtyNodes: make(map[string]struct{}),
		dirtyEdges: make(map[edgeKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory graph with the persisted one: one row per
// article, one row per citation edge.
func (s *Store) Load(ctx context.Context) error {
	articles, citations, err := s.db.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	s.nodes = make(map[string]*record.CanonicalArticle, len(articles))
	s.out = make(map[string]map[string]*record.Citation)
	s.in = make(map[string]map[string]struct{})
	s.dirtyNodes = make(map[string]struct{})
	s.dirtyEdges = make(map[edgeKey]struct{})

	for i := range articles {
		a := articles[i]
		s.nodes[a.ID] = &a
	}
	for i := range citations {
		c := citations[i]
		if _, ok := s.nodes[c.CitingID]; !ok {
			continue
		}
		if _, ok := s.nodes[c.CitedID]; !ok {
			continue
		}
		s.link(&c)
	}
	return nil
}

// ArticleOption attaches optional payloads to an AddArticle call.
type ArticleOption func(*record.CanonicalArticle)

// WithAnalysis attaches an analysis payload and the model that produced it.
func WithAnalysis(analysis map[string]any, model string) ArticleOption {
	return func(a *record.CanonicalArticle) {
		a.Analysis = analysis
		a.Model = model
	}
}

// WithPaths attaches file-path references.
func WithPaths(pdfPath, markdownPath string) ArticleOption {
	return func(a *record.CanonicalArticle) {
		a.PDFPath = pdfPath
		a.MarkdownPath = markdownPath
	}
}

// AddArticle upserts a node. Repeated observations accumulate detail: new
// metadata is merged onto any existing node's metadata, never replacing it
// wholesale. Idempotent for identical input.
func (s *Store) AddArticle(ctx context.Context, id string, meta record.BibliographicRecord, opts ...ArticleOption) {
	incoming := record.CanonicalArticle{ID: id, Meta: meta}
	for _, opt := range opts {
		opt(&incoming)
	}

	node, ok := s.nodes[id]
	if !ok {
		s.nodes[id] = &incoming
		s.markNodeDirty(ctx, id)
		return
	}

	changed := dedupe.Merge(&node.Meta, incoming.Meta)
	if incoming.Analysis != nil {
		node.Analysis = incoming.Analysis
		node.Model = incoming.Model
		changed = true
	}
	if incoming.PDFPath != "" && incoming.PDFPath != node.PDFPath {
		node.PDFPath = incoming.PDFPath
		changed = true
	}
	if incoming.MarkdownPath != "" && incoming.MarkdownPath != node.MarkdownPath {
		node.MarkdownPath = incoming.MarkdownPath
		changed = true
	}
	if changed {
		s.markNodeDirty(ctx, id)
	}
}

// AddCitation inserts a directed edge. Both endpoints must already exist;
// a missing endpoint yields ErrMissingEndpoint and the edge is dropped.
// Self-citations are rejected. Re-adding an existing edge merges the payload
// onto the existing one.
func (s *Store) AddCitation(ctx context.Context, c record.Citation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, ok := s.nodes[c.CitingID]; !ok {
		s.log.Warn("citation references missing citing node, edge dropped",
			zap.String("citing_id", c.CitingID),
			zap.String("cited_id", c.CitedID))
		return fmt.Errorf("citing %q: %w", c.CitingID, ErrMissingEndpoint)
	}
	if _, ok := s.nodes[c.CitedID]; !ok {
		s.log.Warn("citation references missing cited node, edge dropped",
			zap.String("citing_id", c.CitingID),
			zap.String("cited_id", c.CitedID))
		return fmt.Errorf("cited %q: %w", c.CitedID, ErrMissingEndpoint)
	}

	key := edgeKey{citing: c.CitingID, cited: c.CitedID}
	if existing, ok := s.out[c.CitingID][c.CitedID]; ok {
		if mergeCitation(existing, c) {
			s.markEdgeDirty(ctx, key)
		}
		return nil
	}

	s.link(&c)
	s.markEdgeDirty(ctx, key)
	return nil
}

// link wires an edge into both adjacency maps. The payload is copied.
func (s *Store) link(c *record.Citation) {
	cc := *c
	if s.out[cc.CitingID] == nil {
		s.out[cc.CitingID] = make(map[string]*record.Citation)
	}
	s.out[cc.CitingID][cc.CitedID] = &cc
	if s.in[cc.CitedID] == nil {
		s.in[cc.CitedID] = make(map[string]struct{})
	}
	s.in[cc.CitedID][cc.CitingID] = struct{}{}
}

// mergeCitation fills empty payload fields from src. Influential is sticky
// once observed.
func mergeCitation(dst *record.Citation, src record.Citation) bool {
	changed := false
	if dst.Text == "" && src.Text != "" {
		dst.Text = src.Text
		changed = true
	}
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
		changed = true
	}
	if len(dst.Authors) == 0 && len(src.Authors) > 0 {
		dst.Authors = append([]string(nil), src.Authors...)
		changed = true
	}
	if dst.Year == 0 && src.Year != 0 {
		dst.Year = src.Year
		changed = true
	}
	if dst.Venue == "" && src.Venue != "" {
		dst.Venue = src.Venue
		changed = true
	}
	if src.Influential && !dst.Influential {
		dst.Influential = true
		changed = true
	}
	if dst.Order == 0 && src.Order != 0 {
		dst.Order = src.Order
		changed = true
	}
	return changed
}

// markNodeDirty records the node for the next save, persisting immediately
// outside a batch. Immediate persistence failures are logged; the in-memory
// graph stays authoritative until the next successful save.
func (s *Store) markNodeDirty(ctx context.Context, id string) {
	s.dirtyNodes[id] = struct{}{}
	if s.batch {
		return
	}
	if err := s.db.UpsertArticle(ctx, *s.nodes[id]); err != nil {
		s.log.Error("persisting article failed, keeping in-memory state",
			zap.String("article_id", id),
			zap.Error(err))
		return
	}
	delete(s.dirtyNodes, id)
}

func (s *Store) markEdgeDirty(ctx context.Context, key edgeKey) {
	s.dirtyEdges[key] = struct{}{}
	if s.batch {
		return
	}
	if err := s.db.UpsertCitation(ctx, *s.out[key.citing][key.cited]); err != nil {
		s.log.Error("persisting citation failed, keeping in-memory state",
			zap.String("citing_id", key.citing),
			zap.String("cited_id", key.cited),
			zap.Error(err))
		return
	}
	delete(s.dirtyEdges, key)
}

// Save flushes every dirty node and edge. Saving an unchanged graph writes
// nothing.
func (s *Store) Save(ctx context.Context) error {
	for id := range s.dirtyNodes {
		if err := s.db.UpsertArticle(ctx, *s.nodes[id]); err != nil {
			return fmt.Errorf("saving article %s: %w", id, err)
		}
		delete(s.dirtyNodes, id)
	}
	for key := range s.dirtyEdges {
		if err := s.db.UpsertCitation(ctx, *s.out[key.citing][key.cited]); err != nil {
			return fmt.Errorf("saving citation %s -> %s: %w", key.citing, key.cited, err)
		}
		delete(s.dirtyEdges, key)
	}
	return nil
}

// Article returns a copy of the node with the given id.
func (s *Store) Article(id string) (record.CanonicalArticle, error) {
	node, ok := s.nodes[id]
	if !ok {
		return record.CanonicalArticle{}, fmt.Errorf("%q: %w", id, ErrUnknownArticle)
	}
	return *node, nil
}

// GetCitingArticles returns the articles that cite id (predecessors).
func (s *Store) GetCitingArticles(id string) []record.CanonicalArticle {
	ids := make([]string, 0, len(s.in[id]))
	for citing := range s.in[id] {
		ids = append(ids, citing)
	}
	return s.collect(ids)
}

// GetCitedArticles returns the articles that id cites (successors).
func (s *Store) GetCitedArticles(id string) []record.CanonicalArticle {
	ids := make([]string, 0, len(s.out[id]))
	for cited := range s.out[id] {
		ids = append(ids, cited)
	}
	return s.collect(ids)
}

// Network is a bounded subgraph around one article.
type Network struct {
	Articles  []record.CanonicalArticle `json:"articles"`
	Citations []record.Citation         `json:"citations"`
}

// GetCitationNetwork returns the subgraph reachable from id within depth
// hops, following edges in both directions.
func (s *Store) GetCitationNetwork(id string, depth int) (Network, error) {
	if _, ok := s.nodes[id]; !ok {
		return Network{}, fmt.Errorf("%q: %w", id, ErrUnknownArticle)
	}

	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			for cited := range s.out[cur] {
				if _, seen := visited[cited]; !seen {
					visited[cited] = struct{}{}
					next = append(next, cited)
				}
			}
			for citing := range s.in[cur] {
				if _, seen := visited[citing]; !seen {
					visited[citing] = struct{}{}
					next = append(next, citing)
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for v := range visited {
		ids = append(ids, v)
	}
	net := Network{Articles: s.collect(ids)}

	// Keep every edge with both endpoints inside the subgraph.
	for citing, targets := range s.out {
		if _, ok := visited[citing]; !ok {
			continue
		}
		for cited, payload := range targets {
			if _, ok := visited[cited]; ok {
				net.Citations = append(net.Citations, *payload)
			}
		}
	}
	sort.Slice(net.Citations, func(i, j int) bool {
		a, b := net.Citations[i], net.Citations[j]
		if a.CitingID != b.CitingID {
			return a.CitingID < b.CitingID
		}
		return a.CitedID < b.CitedID
	})
	return net, nil
}

// SearchArticles returns articles whose title or any author contains the
// query, case-insensitively.
func (s *Store) SearchArticles(query string) []record.CanonicalArticle {
	q := strings.ToLower(query)
	var ids []string
	for id, node := range s.nodes {
		if strings.Contains(strings.ToLower(node.Meta.Title), q) {
			ids = append(ids, id)
			continue
		}
		for _, author := range node.Meta.Authors {
			if strings.Contains(strings.ToLower(author), q) {
				ids = append(ids, id)
				break
			}
		}
	}
	return s.collect(ids)
}

// NodeCount returns the number of articles in the graph.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of citation edges in the graph.
func (s *Store) EdgeCount() int {
	n := 0
	for _, targets := range s.out {
		n += len(targets)
	}
	return n
}

// collect copies the named nodes, sorted by id for stable output.
func (s *Store) collect(ids []string) []record.CanonicalArticle {
	sort.Strings(ids)
	out := make([]record.CanonicalArticle, 0, len(ids))
	for _, id := range ids {
		if node, ok := s.nodes[id]; ok {
			out = append(out, *node)
		}
	}
	return out
}

package simplefeed

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Page size bounds.
const (
	DefaultPageSize = 5
	MaxPageSize     = 50
)

func (s *service) GetFeedPage(ctx context.Context, req FeedRequest) (page *Page, err error) {
	ctx, span := s.startSpan(ctx, "GetFeedPage", attribute.String("kind", string(req.Kind)))
	defer finishSpan(span, &err)

	kind := req.Kind
	if kind == "" {
		kind = KindPost
	}
	if !kind.IsValid() {
		return nil, &ValidationError{Field: "type", Message: "unknown content type " + string(kind)}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	// One extra row tells us whether another page exists.
	rows, err := s.repository.ListFeed(ctx, FeedQuery{Kind: kind, Before: req.Cursor, Limit: limit + 1})
	if err != nil {
		return nil, err
	}

	page = &Page{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		next := page.Items[limit-1].CursorOf()
		page.NextCursor = &next
	}
	if page.Items == nil {
		page.Items = []*ContentRecord{}
	}
	span.SetAttributes(attribute.Int("items", len(page.Items)), attribute.Bool("has_more", page.HasMore))

	if err := s.enrich(ctx, page.Items...); err != nil {
		return nil, err
	}
	return page, nil
}

// enrich attaches owner and comment author profiles. Users without a stored
// profile get a stub carrying only what the record itself knows.
func (s *service) enrich(ctx context.Context, records ...*ContentRecord) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, r := range records {
		add(r.OwnerID)
		for _, c := range r.Comments {
			add(c.AuthorID)
		}
	}

	profiles, err := s.repository.GetProfiles(ctx, ids)
	if err != nil {
		return err
	}

	lookup := func(id uuid.UUID, fallbackName string) *Profile {
		if p, ok := profiles[id]; ok {
			cp := *p
			return &cp
		}
		return &Profile{ID: id, Name: fallbackName}
	}
	for _, r := range records {
		r.Owner = lookup(r.OwnerID, "")
		for i := range r.Comments {
			r.Comments[i].Author = lookup(r.Comments[i].AuthorID, r.Comments[i].AuthorName)
		}
	}
	return nil
}

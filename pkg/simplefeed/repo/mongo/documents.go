package mongo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// Identifiers are stored in canonical string form, whose lexical order
// matches simplefeed.CompareIDs.

type contentDoc struct {
	ID        string       `bson:"_id"`
	OwnerID   string       `bson:"owner_id"`
	Kind      string       `bson:"kind"`
	Caption   string       `bson:"caption"`
	MediaID   string       `bson:"media_id"`
	MediaURL  string       `bson:"media_url"`
	Likes     []string     `bson:"likes"`
	Comments  []commentDoc `bson:"comments"`
	Version   int64        `bson:"version"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

type commentDoc struct {
	ID         string    `bson:"id"`
	AuthorID   string    `bson:"author_id"`
	AuthorName string    `bson:"author_name"`
	Body       string    `bson:"body"`
	CreatedAt  time.Time `bson:"created_at"`
}

type profileDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	AvatarURL string    `bson:"avatar_url"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromComment(c simplefeed.Comment) commentDoc {
	return commentDoc{
		ID:         c.ID.String(),
		AuthorID:   c.AuthorID.String(),
		AuthorName: c.AuthorName,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
}

func fromRecord(c *simplefeed.ContentRecord) contentDoc {
	doc := contentDoc{
		ID:        c.ID.String(),
		OwnerID:   c.OwnerID.String(),
		Kind:      string(c.Kind),
		Caption:   c.Caption,
		MediaID:   c.Media.ExternalID,
		MediaURL:  c.Media.URL,
		Likes:     make([]string, 0, len(c.Likes)),
		Comments:  make([]commentDoc, 0, len(c.Comments)),
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, id := range c.Likes {
		doc.Likes = append(doc.Likes, id.String())
	}
	for _, cm := range c.Comments {
		doc.Comments = append(doc.Comments, fromComment(cm))
	}
	return doc
}

func (d contentDoc) toRecord() (*simplefeed.ContentRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid content id %q: %w", d.ID, err)
	}
	owner, err := uuid.Parse(d.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner id on content %s: %w", d.ID, err)
	}

	rec := &simplefeed.ContentRecord{
		ID:        id,
		OwnerID:   owner,
		Kind:      simplefeed.Kind(d.Kind),
		Caption:   d.Caption,
		Media:     simplefeed.MediaRef{ExternalID: d.MediaID, URL: d.MediaURL},
		Likes:     make([]uuid.UUID, 0, len(d.Likes)),
		Comments:  make([]simplefeed.Comment, 0, len(d.Comments)),
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, s := range d.Likes {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid like on content %s: %w", d.ID, err)
		}
		rec.Likes = append(rec.Likes, u)
	}
	for _, cd := range d.Comments {
		cid, err := uuid.Parse(cd.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid comment id on content %s: %w", d.ID, err)
		}
		author, err := uuid.Parse(cd.AuthorID)
		if err != nil {
			return nil, fmt.Errorf("invalid comment author on content %s: %w", d.ID, err)
		}
		rec.Comments = append(rec.Comments, simplefeed.Comment{
			ID:         cid,
			AuthorID:   author,
			AuthorName: cd.AuthorName,
			Body:       cd.Body,
			CreatedAt:  cd.CreatedAt.UTC(),
		})
	}
	return rec, nil
}

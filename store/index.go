package store

import (
	"context"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"
)

// maxSearchHits caps one name search. The user directory of a single
// deployment is small; this is not a pagination mechanism.
const maxSearchHits = 256

// NameIndex is a Bluge full-text index of profile names, serving the
// searchPattern argument of the users feed.
type NameIndex struct {
	mu     sync.Mutex
	writer *bluge.Writer
}

func OpenNameIndex(path string) (*NameIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &NameIndex{writer: writer}, nil
}

func (i *NameIndex) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Close()
}

// IndexProfile upserts one user's name. Called on registration and on every
// profile update.
func (i *NameIndex) IndexProfile(userID, name string) error {
	doc := bluge.NewDocument(userID).
		AddField(bluge.NewTextField("name", name).StoreValue())

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the ids of users whose name matches the pattern as a
// prefix. An empty pattern matches every indexed user.
func (i *NameIndex) Search(ctx context.Context, pattern string) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	var query bluge.Query
	if pattern == "" {
		query = bluge.NewMatchAllQuery()
	} else {
		// The default analyzer lowercases tokens; prefix queries are not
		// analyzed, so lowercase the input to match.
		query = bluge.NewPrefixQuery(strings.ToLower(pattern)).SetField("name")
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(maxSearchHits, query))
	if err != nil {
		return nil, err
	}

	var ids []string
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

package bookmark

import "strings"

// RemoveEmptyContainers drops top-level containers that have no children.
// Non-container top-level nodes are kept as they are.
func RemoveEmptyContainers(bs []Bookmark) []Bookmark {
	out := make([]Bookmark, 0, len(bs))
	for _, b := range bs {
		if b.Kind() == KindContainer && len(b.Children) == 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Clean returns a deep copy of bs ready for export: text fields trimmed,
// tags normalized and children cleared on url bookmarks. The input is not
// modified.
func Clean(bs []Bookmark) []Bookmark {
	if bs == nil {
		return nil
	}
	out := make([]Bookmark, len(bs))
	for i, b := range bs {
		out[i] = cleanOne(b)
	}
	return out
}

func cleanOne(b Bookmark) Bookmark {
	c := Bookmark{
		ID:          b.ID,
		Title:       strings.TrimSpace(b.Title),
		URL:         strings.TrimSpace(b.URL),
		Description: strings.TrimSpace(b.Description),
		Tags:        NormalizeTags(b.Tags),
		DateAdded:   b.DateAdded,
	}
	if c.URL == "" && len(b.Children) > 0 {
		c.Children = Clean(b.Children)
	}
	return c
}

// StripIDs returns a copy of bs with every id zeroed. Backups written for
// import into another profile do not carry local ids.
func StripIDs(bs []Bookmark) []Bookmark {
	out := Clean(bs)
	Walk(out, func(b *Bookmark, _ int) bool {
		b.ID = 0
		return true
	})
	return out
}

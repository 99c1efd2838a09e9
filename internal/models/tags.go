package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// TagDelimiter joins tags in the image_labels.tags column.
const TagDelimiter = ","

var ErrTagDelimiter = errors.New("tag must not contain the delimiter " + TagDelimiter)

// Tags is an ordered tag list stored as a single delimited string.
type Tags []string

// Value joins the tags. A tag holding the delimiter would split into two on read, so it is refused.
func (t Tags) Value() (driver.Value, error) {
	for _, tag := range t {
		if strings.Contains(tag, TagDelimiter) {
			return nil, fmt.Errorf("%w: %q", ErrTagDelimiter, tag)
		}
	}
	return strings.Join(t, TagDelimiter), nil
}

func (t *Tags) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		raw = ""
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("tags: unsupported column type %T", src)
	}

	if raw == "" {
		*t = Tags{}
		return nil
	}
	*t = strings.Split(raw, TagDelimiter)
	return nil
}

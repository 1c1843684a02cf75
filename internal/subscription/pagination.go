package subscription

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrBadPagination names a pagination parameter that was out of range.
var ErrBadPagination = errors.New("subscription: bad pagination parameter")

const (
	minLimit     = 1
	maxLimit     = 1000
	defaultLimit = 20
)

// ValidateOffsetLimit enforces §4.4's 1 <= limit <= 1000, offset >= 0,
// returning a message naming the offending parameter exactly as the
// end-to-end scenarios in §8 expect.
func ValidateOffsetLimit(limit, offset int) error {
	if limit < minLimit || limit > maxLimit {
		return fmt.Errorf("%w: 'limit' parameter should have value from 1 to 1000", ErrBadPagination)
	}
	if offset < 0 {
		return fmt.Errorf("%w: 'offset' parameter can't be lower than 0", ErrBadPagination)
	}
	return nil
}

// Links are the pagination links returned alongside a listing, computed
// from (owningApp, eventTypes, offset, limit, actualSize) per §4.4.
type Links struct {
	Self string `json:"self"`
	Prev string `json:"prev,omitempty"`
	Next string `json:"next,omitempty"`
}

// BuildLinks constructs the self/prev/next links for a page. actualSize is
// the number of items actually returned; a next link is omitted once a
// short page signals there is nothing more.
func BuildLinks(basePath string, owningApp string, eventTypes []string, offset, limit, actualSize int) Links {
	build := func(o int) string {
		q := url.Values{}
		if owningApp != "" {
			q.Set("owning_application", owningApp)
		}
		for _, et := range eventTypes {
			q.Add("event_type", et)
		}
		q.Set("offset", strconv.Itoa(o))
		q.Set("limit", strconv.Itoa(limit))
		return basePath + "?" + q.Encode()
	}

	links := Links{Self: build(offset)}
	if offset > 0 {
		prevOffset := offset - limit
		if prevOffset < 0 {
			prevOffset = 0
		}
		links.Prev = build(prevOffset)
	}
	if actualSize == limit {
		links.Next = build(offset + limit)
	}
	return links
}

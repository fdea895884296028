// Package ids generates the identifiers used across the API. KSUIDs sort by
// creation time, which keeps index pages warm on time-ordered tables.
package ids

import "github.com/segmentio/ksuid"

func New() string {
	return ksuid.New().String()
}

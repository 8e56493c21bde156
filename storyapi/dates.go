package storyapi

import (
	"context"
	"fmt"
	"time"
)

// dateLayout is the calendar format stories are keyed by.
const dateLayout = "2006-01-02"

// NextOpenDate returns the earliest date, starting from today, that no
// existing story occupies. Stories run on a daily cadence, so the search
// simply walks forward a day at a time.
func (c *Client) NextOpenDate(ctx context.Context, now time.Time) (string, error) {
	stories, err := c.ListStories(ctx)
	if err != nil {
		return "", err
	}

	taken := make(map[string]bool, len(stories))
	for _, s := range stories {
		if s.Date == "" {
			continue
		}
		// Dates may come back with a time component; keep the day only.
		taken[s.Date[:min(len(s.Date), len(dateLayout))]] = true
	}

	day := now
	for i := 0; i < 3650; i++ {
		candidate := day.Format(dateLayout)
		if !taken[candidate] {
			return candidate, nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return "", fmt.Errorf("no open date within ten years of %s", now.Format(dateLayout))
}

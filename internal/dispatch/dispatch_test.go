package dispatch

import "time"

func testCreatedAt() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

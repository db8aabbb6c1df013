// Package server initial history snapshot sent to a freshly joined
// connection.
package server

import "log"

// sendHistorySnapshot sends the most recent page of room history to this
// connection only, tagged with whether older messages remain and the cursor
// for the next page. A store failure is reported as an error frame and is
// not fatal; only a failed reply returns false.
func (c *Client) sendHistorySnapshot() bool {
	messages, hasMore, err := c.store.RecentMessages(c.roomID, c.historyPageSize, nil)
	if err != nil {
		log.Printf("Error fetching recent messages for %s: %v", c.addr, err)
		return c.reply(newErrorFrame("Failed to fetch recent messages"))
	}
	return c.reply(newHistoryFrame(messages, hasMore))
}

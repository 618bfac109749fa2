package models

import (
	"sort"
)

// MergeMessages folds incoming messages (a history page or live events) into
// existing ones. Duplicates collapse by id, the copy with the later update
// wins, and the result is ordered oldest first by (createdAt, id).
func MergeMessages(existing, incoming []Message) []Message {
	byID := make(map[int64]Message, len(existing)+len(incoming))
	for _, list := range [][]Message{existing, incoming} {
		for _, msg := range list {
			current, ok := byID[msg.ID]
			if !ok || newer(msg, current) {
				byID[msg.ID] = msg
			}
		}
	}

	merged := make([]Message, 0, len(byID))
	for _, msg := range byID {
		merged = append(merged, msg)
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// RemoveMessage drops a deleted message from a merged list.
func RemoveMessage(list []Message, id int64) []Message {
	out := list[:0:0]
	for _, msg := range list {
		if msg.ID != id {
			out = append(out, msg)
		}
	}
	return out
}

func newer(a, b Message) bool {
	if a.UpdatedAt == nil {
		return false
	}
	if b.UpdatedAt == nil {
		return true
	}
	return a.UpdatedAt.After(*b.UpdatedAt)
}

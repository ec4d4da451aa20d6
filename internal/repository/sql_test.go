package repository

import (
	"strings"
	"testing"
)

func TestReadPathQueries(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"mark seen skips own and deleted messages", markSeenSQL, []string{
			"m.conversation_id = ?",
			"m.seq <= ?",
			"m.sender_id <> ?",
			"m.is_deleted = false",
			"ON CONFLICT (message_id, user_id) DO NOTHING",
			"RETURNING message_id",
		}},
		{"read position never regresses", upsertReadStateSQL, []string{
			"ON CONFLICT (conversation_id, user_id) DO UPDATE",
			"GREATEST(read_states.last_read_seq, EXCLUDED.last_read_seq)",
		}},
		{"unread counts live messages from others past the read position", countUnreadSQL, []string{
			"LEFT JOIN read_states rs",
			"m.seq > COALESCE(rs.last_read_seq, 0)",
			"m.sender_id <> p.user_id",
			"m.is_deleted = false",
			"p.is_active = true",
			"GROUP BY p.conversation_id",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, fragment := range tt.want {
				if !strings.Contains(tt.query, fragment) {
					t.Errorf("query is missing %q", fragment)
				}
			}
		})
	}
}

func TestMarkSeenPlaceholdersMatchArguments(t *testing.T) {
	// MarkSeen binds userID, seenAt, conversationID, upToSeq, userID.
	if got := strings.Count(markSeenSQL, "?"); got != 5 {
		t.Errorf("markSeenSQL placeholders = %d, want 5", got)
	}
	if got := strings.Count(upsertReadStateSQL, "?"); got != 4 {
		t.Errorf("upsertReadStateSQL placeholders = %d, want 4", got)
	}
	if got := strings.Count(countUnreadSQL, "?"); got != 1 {
		t.Errorf("countUnreadSQL placeholders = %d, want 1", got)
	}
}

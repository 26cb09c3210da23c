package projection_test

import (
	"testing"
	"time"

	"chat-sync/domain"
	"chat-sync/projection"

	"github.com/stretchr/testify/require"
)

func docs(messages ...domain.Message) []domain.Document {
	out := make([]domain.Document, 0, len(messages))
	for _, m := range messages {
		out = append(out, m)
	}
	return out
}

func Test_DayGrouper_groups_by_local_calendar_day(t *testing.T) {
	req := require.New(t)
	now := func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local) }
	grouper := projection.NewDayGrouper("alice", now)

	march1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.Local)
	march2 := time.Date(2026, 3, 2, 0, 10, 0, 0, time.Local)

	// When messages arrive in arbitrary order across a midnight boundary
	grouper.Rebuild(docs(
		message("m3", "c1", "bob", march2),
		message("m1", "c1", "alice", march1),
		message("m2", "c1", "bob", march1.Add(time.Minute)),
	))

	groups := grouper.Groups()
	req.Len(groups, 2)

	// Then each group is one day, oldest day first, oldest message first
	req.Equal("1 March 2026", groups[0].Timestamp)
	req.False(groups[0].Today)
	req.Len(groups[0].Messages, 2)
	req.Equal("m1", groups[0].Messages[0].ID)
	req.Equal("m2", groups[0].Messages[1].ID)

	req.Equal("2 March 2026", groups[1].Timestamp)
	req.True(groups[1].Today)
	req.Len(groups[1].Messages, 1)
}

func Test_DayGrouper_assigns_ownership_by_sender(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	grouper := projection.NewDayGrouper("alice", func() time.Time { return at })

	grouper.Rebuild(docs(
		message("m1", "c1", "alice", at),
		message("m2", "c1", "bob", at.Add(time.Minute)),
	))

	views := grouper.Groups()[0].Messages
	req.Equal(domain.OwnershipMine, views[0].Ownership)
	req.Equal(domain.OwnershipOther, views[1].Ownership)
}

func Test_DayGrouper_emits_appended_only_when_the_thread_grows(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	grouper := projection.NewDayGrouper("alice", func() time.Time { return at })

	var appended []int
	grouper.OnAppend(func(count int) { appended = append(appended, count) })

	grouper.Rebuild(docs(message("m1", "c1", "bob", at)))
	grouper.Rebuild(docs(
		message("m1", "c1", "bob", at),
		message("m2", "c1", "bob", at.Add(time.Minute)),
		message("m3", "c1", "bob", at.Add(2*time.Minute)),
	))
	// A rebuild over the same set grows nothing.
	grouper.Rebuild(docs(
		message("m1", "c1", "bob", at),
		message("m2", "c1", "bob", at.Add(time.Minute)),
		message("m3", "c1", "bob", at.Add(2*time.Minute)),
	))

	req.Equal([]int{1, 2}, appended)
}

func Test_DayGrouper_breaks_same_instant_ties_by_id(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	grouper := projection.NewDayGrouper("alice", func() time.Time { return at })

	grouper.Rebuild(docs(
		message("mb", "c1", "bob", at),
		message("ma", "c1", "bob", at),
	))

	views := grouper.Groups()[0].Messages
	req.Equal("ma", views[0].ID)
	req.Equal("mb", views[1].ID)
}

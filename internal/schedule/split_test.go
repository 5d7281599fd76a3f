package schedule_test

import (
	"fmt"
	"testing"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Run("inserts parts and pushes the tail", func(t *testing.T) {
		cal := weekdayCalendar(t, "2025-08-04", 4)

		out, err := schedule.Split(cal, schedule.SplitRequest{ItemID: "r2", Parts: 2}, counterIDs("g"))
		require.NoError(t, err)
		require.Len(t, out.LayerItems("reference"), 5)

		head := out.Items[out.ItemIndex("r2")]
		part := out.Items[out.ItemIndex("g-2")]
		assert.Equal(t, "Lesson 2 (Part 1/2)", head.Title)
		assert.Equal(t, "Lesson 2 (Part 2/2)", part.Title)
		assert.Equal(t, "g-1", head.SplitGroupID)
		assert.Equal(t, head.SplitGroupID, part.SplitGroupID)
		assert.Equal(t, []int{1, 2}, []int{head.SplitIndex, part.SplitIndex})
		assert.Equal(t, []int{2, 2}, []int{head.SplitTotal, part.SplitTotal})

		assert.Equal(t, "2025-08-05", dateOf(t, out, "r2"))
		assert.Equal(t, "2025-08-06", dateOf(t, out, "g-2"))
		assert.Equal(t, "2025-08-07", dateOf(t, out, "r3"))
		assert.Equal(t, "2025-08-08", dateOf(t, out, "r4"))

		seq := map[string]int{}
		for _, idx := range out.LayerItems("reference") {
			seq[out.Items[idx].ID] = out.Items[idx].SequenceIndex
		}
		assert.Equal(t, map[string]int{"r1": 1, "r2": 2, "g-2": 3, "r3": 4, "r4": 5}, seq)
		requireLayerOrdered(t, out, "reference")
	})

	t.Run("parts skip blocked days", func(t *testing.T) {
		cal := weekdayCalendar(t, "2025-08-04", 4)
		addException(t, &cal, "h1", "2025-08-08")

		out, err := schedule.Split(cal, schedule.SplitRequest{ItemID: "r4", Parts: 2}, counterIDs("g"))
		require.NoError(t, err)
		assert.Equal(t, "2025-08-11", dateOf(t, out, "g-2"))
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		cal := weekdayCalendar(t, "2025-08-04", 4)
		addException(t, &cal, "h1", "2025-08-08")

		_, err := schedule.Split(cal, schedule.SplitRequest{ItemID: "r2", Parts: 7}, counterIDs("g"))
		assert.ErrorIs(t, err, schedule.ErrInvalidParts)
		_, err = schedule.Split(cal, schedule.SplitRequest{ItemID: "r2", Parts: 1}, counterIDs("g"))
		assert.ErrorIs(t, err, schedule.ErrInvalidParts)
		_, err = schedule.Split(cal, schedule.SplitRequest{ItemID: "missing", Parts: 2}, counterIDs("g"))
		assert.ErrorIs(t, err, schedule.ErrItemNotFound)
		_, err = schedule.Split(cal, schedule.SplitRequest{ItemID: "h1", Parts: 2}, counterIDs("g"))
		assert.ErrorIs(t, err, schedule.ErrExceptionItem)

		once, err := schedule.Split(cal, schedule.SplitRequest{ItemID: "r2", Parts: 2}, counterIDs("g"))
		require.NoError(t, err)
		again, err := schedule.Split(once, schedule.SplitRequest{ItemID: "r2", Parts: 3}, counterIDs("x"))
		assert.ErrorIs(t, err, schedule.ErrAlreadySplit)
		assert.Equal(t, once, again)
	})

	t.Run("clamp keeps parts in range", func(t *testing.T) {
		assert.Equal(t, 2, schedule.ClampParts(0))
		assert.Equal(t, 4, schedule.ClampParts(4))
		assert.Equal(t, 6, schedule.ClampParts(12))
	})
}

func TestSplitUnsplitRoundTrip(t *testing.T) {
	for parts := schedule.MinSplitParts; parts <= schedule.MaxSplitParts; parts++ {
		t.Run(fmt.Sprintf("%d parts", parts), func(t *testing.T) {
			cal := weekdayCalendar(t, "2025-08-04", 6)
			addException(t, &cal, "h1", "2025-08-14")

			split, err := schedule.Split(cal, schedule.SplitRequest{ItemID: "r2", Parts: parts}, counterIDs("g"))
			require.NoError(t, err)
			require.Len(t, split.LayerItems("reference"), 6+parts-1)
			requireLayerOrdered(t, split, "reference")

			restored, err := schedule.Unsplit(split, schedule.UnsplitRequest{ItemID: "r2"})
			require.NoError(t, err)
			require.Len(t, restored.Items, len(cal.Items))
			for _, want := range cal.Items {
				got := restored.Items[restored.ItemIndex(want.ID)]
				assert.Equal(t, want.Title, got.Title, want.ID)
				assert.Equal(t, want.Date, got.Date, want.ID)
				assert.Equal(t, want.SequenceIndex, got.SequenceIndex, want.ID)
				assert.False(t, got.IsSplit(), want.ID)
			}
		})
	}
}

func TestUnsplit(t *testing.T) {
	cal := weekdayCalendar(t, "2025-08-04", 4)
	split, err := schedule.Split(cal, schedule.SplitRequest{ItemID: "r3", Parts: 3}, counterIDs("g"))
	require.NoError(t, err)

	t.Run("by group id from any member", func(t *testing.T) {
		out, err := schedule.Unsplit(split, schedule.UnsplitRequest{SplitGroupID: "g-1"})
		require.NoError(t, err)
		assert.Equal(t, "Lesson 3", out.Items[out.ItemIndex("r3")].Title)
		assert.Equal(t, -1, out.ItemIndex("g-2"))
		assert.Equal(t, -1, out.ItemIndex("g-3"))
		assert.Equal(t, "2025-08-07", dateOf(t, out, "r4"))

		viaPart, err := schedule.Unsplit(split, schedule.UnsplitRequest{ItemID: "g-3"})
		require.NoError(t, err)
		assert.Equal(t, out, viaPart)
	})

	t.Run("unknown group is not found", func(t *testing.T) {
		out, err := schedule.Unsplit(split, schedule.UnsplitRequest{SplitGroupID: "nope"})
		require.ErrorIs(t, err, schedule.ErrSplitGroupNotFound)
		assert.Equal(t, split, out)
	})

	t.Run("unknown item is not found", func(t *testing.T) {
		_, err := schedule.Unsplit(split, schedule.UnsplitRequest{ItemID: "nope"})
		require.ErrorIs(t, err, schedule.ErrItemNotFound)
	})

	t.Run("unsplit item is a no-op", func(t *testing.T) {
		out, err := schedule.Unsplit(cal, schedule.UnsplitRequest{ItemID: "r1"})
		require.NoError(t, err)
		assert.Equal(t, cal, out)
	})

	t.Run("single remaining member is a no-op", func(t *testing.T) {
		lonely := split.Clone()
		lonely.Items = []domain.ScheduledItem{lonely.Items[lonely.ItemIndex("r3")]}
		out, err := schedule.Unsplit(lonely, schedule.UnsplitRequest{ItemID: "r3"})
		require.NoError(t, err)
		assert.Equal(t, lonely, out)
	})
}

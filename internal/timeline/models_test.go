package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealflow/internal/stage"
)

func TestClassify(t *testing.T) {
	t.Run("is total over the enumeration", func(t *testing.T) {
		for _, et := range AllEntryTypes {
			_, err := Classify(et)
			assert.NoError(t, err, "type %s must be classified", et)
		}
	})

	t.Run("stage changes are client visible", func(t *testing.T) {
		visible, err := Classify(TypeStageChange)
		require.NoError(t, err)
		assert.True(t, visible)
	})

	t.Run("status changes and notes are broker only", func(t *testing.T) {
		for _, et := range []EntryType{TypeStatusChange, TypeNote} {
			visible, err := Classify(et)
			require.NoError(t, err)
			assert.False(t, visible, "type %s must stay off the client timeline", et)
		}
	})

	t.Run("document lifecycle events are client visible", func(t *testing.T) {
		for _, et := range []EntryType{
			TypeDocumentRequested,
			TypeDocumentSubmitted,
			TypeDocumentApproved,
			TypeDocumentNeedsRevision,
			TypeDocumentShared,
		} {
			visible, err := Classify(et)
			require.NoError(t, err)
			assert.True(t, visible, "type %s", et)
		}
	})

	t.Run("unknown types error instead of hiding", func(t *testing.T) {
		_, err := Classify(EntryType("SOMETHING_NEW"))
		assert.Error(t, err)
	})
}

func TestSnapshotOf(t *testing.T) {
	snap := SnapshotOf("Dana Client", "Rae Broker", stage.BuyerConditions)
	assert.Equal(t, "Dana Client", snap.ClientName)
	assert.Equal(t, "Rae Broker", snap.BrokerName)
	assert.Equal(t, "BUYER_CONDITIONS", snap.StageName)
	assert.Equal(t, "BUY", snap.Side)
}

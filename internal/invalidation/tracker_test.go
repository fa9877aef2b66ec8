package invalidation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDependencyTrackerKeys(t *testing.T) {
	tr := NewDependencyTracker()

	tr.AddKeyDependency("hotel:42:config", "hotel:42:config:derived")
	tr.AddKeyDependency("hotel:42:config", "hotel:42:greeting")
	tr.AddKeyDependency("hotel:42:config", "hotel:42:greeting") // idempotent

	assert.ElementsMatch(t,
		[]string{"hotel:42:config:derived", "hotel:42:greeting"},
		tr.Dependents("hotel:42:config"))
	assert.Nil(t, tr.Dependents("unknown"))

	t.Run("self and empty dependencies are ignored", func(t *testing.T) {
		tr.AddKeyDependency("k", "k")
		tr.AddKeyDependency("", "k")
		tr.AddKeyDependency("k", "")
		assert.Nil(t, tr.Dependents("k"))
	})
}

func TestDependencyTrackerTags(t *testing.T) {
	tr := NewDependencyTracker()

	tr.AddTagDependency("pms_credentials", "hotel:42:pms")
	tr.AddTagDependency("pms_credentials", "hotel:7:pms")
	tr.AddTagDependency("session", "hotel:42:session:abc")

	assert.ElementsMatch(t,
		[]string{"hotel:42:pms", "hotel:7:pms"},
		tr.KeysForTags([]string{"pms_credentials"}))

	t.Run("union across tags", func(t *testing.T) {
		got := tr.KeysForTags([]string{"pms_credentials", "session"})
		assert.Len(t, got, 3)
	})

	t.Run("unknown tag yields nothing", func(t *testing.T) {
		assert.Nil(t, tr.KeysForTags([]string{"nope"}))
	})
}

func TestDependencyTrackerRemoveKey(t *testing.T) {
	tr := NewDependencyTracker()

	tr.AddKeyDependency("parent", "child")
	tr.AddKeyDependency("other", "child")
	tr.AddTagDependency("tag", "child")

	tr.RemoveKey("child")

	assert.Nil(t, tr.Dependents("parent"))
	assert.Nil(t, tr.Dependents("other"))
	assert.Nil(t, tr.KeysForTags([]string{"tag"}))

	parents, tags := tr.Size()
	assert.Equal(t, 2, parents, "parents keep their empty sets")
	assert.Equal(t, 0, tags, "empty tag sets are pruned")

	t.Run("removing a parent drops its dependents", func(t *testing.T) {
		tr.AddKeyDependency("p", "c")
		tr.RemoveKey("p")
		assert.Nil(t, tr.Dependents("p"))
	})
}

func TestDependencyTrackerCleanup(t *testing.T) {
	tr := NewDependencyTracker()
	tr.AddKeyDependency("live", "a")
	tr.AddKeyDependency("dead", "b")
	tr.AddKeyDependency("flaky", "c")

	exists := func(_ context.Context, key string) (bool, error) {
		switch key {
		case "live":
			return true, nil
		case "dead":
			return false, nil
		default:
			return false, errors.New("store unavailable")
		}
	}

	removed := tr.Cleanup(context.Background(), exists)
	assert.Equal(t, 1, removed)
	assert.NotNil(t, tr.Dependents("live"))
	assert.Nil(t, tr.Dependents("dead"))
	assert.NotNil(t, tr.Dependents("flaky"), "errors leave the entry for the next pass")

	t.Run("cancelled context stops the pass", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, 0, tr.Cleanup(ctx, exists))
	})
}

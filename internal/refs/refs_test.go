package refs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-io/kanbo/internal/refs"
)

func TestRefString(t *testing.T) {
	r := refs.Ref{Kind: refs.KindIssue, ID: 42}
	assert.Equal(t, "issue:42", r.String())
}

func TestRegistry(t *testing.T) {
	r := refs.NewRegistry()
	r.Register(refs.Descriptor{Kind: refs.KindProject, ViewPermission: "view_project"})
	r.Register(refs.Descriptor{Kind: refs.KindTask, ViewPermission: "view_tasks", HasRefSubject: true})

	d, ok := r.Lookup(refs.KindTask)
	require.True(t, ok)
	assert.Equal(t, "view_tasks", d.ViewPermission)
	assert.True(t, d.HasRefSubject)

	_, ok = r.Lookup(refs.KindIssue)
	assert.False(t, ok)

	assert.Equal(t, []refs.Kind{refs.KindProject, refs.KindTask}, r.Kinds())

	assert.Panics(t, func() {
		r.Register(refs.Descriptor{Kind: refs.KindProject})
	})
}

func TestDefaultRegistryCoversAllKinds(t *testing.T) {
	r := refs.Default()
	for _, kind := range []refs.Kind{refs.KindProject, refs.KindUserStory, refs.KindTask, refs.KindIssue} {
		d, ok := r.Lookup(kind)
		require.True(t, ok, "kind %s", kind)
		assert.NotEmpty(t, d.ViewPermission)
	}
}

package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-io/kanbo/internal/models"
)

func TestProjectGetHiddenFromNonMembers(t *testing.T) {
	s := newTestServer(t)
	f := seedProject(t, s.db, true)
	path := fmt.Sprintf("/v1/projects/%d", f.project.ID)

	assert.Equal(t, http.StatusNotFound, s.get(t, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, path, f.stranger).Code)

	rec := s.get(t, path, f.member)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, f.project.Slug, got.Slug)
}

func TestProjectGetPublic(t *testing.T) {
	s := newTestServer(t)
	f := seedProject(t, s.db, false)
	path := fmt.Sprintf("/v1/projects/%d", f.project.ID)

	assert.Equal(t, http.StatusOK, s.get(t, path, nil).Code)
	assert.Equal(t, http.StatusOK, s.get(t, path, f.stranger).Code)
}

func TestMembershipRosterGatedLikeProject(t *testing.T) {
	s := newTestServer(t)
	f := seedProject(t, s.db, true)
	path := fmt.Sprintf("/v1/projects/%d/memberships", f.project.ID)

	assert.Equal(t, http.StatusNotFound, s.get(t, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, path, f.stranger).Code)

	rec := s.get(t, path, f.member)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []models.Membership
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Len(t, members, 1)
}

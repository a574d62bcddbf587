package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/todo"
)

func linearServer(t *testing.T, pages []string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lin-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		idx := len(requests) - 1
		if idx >= len(pages) {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pages[idx]))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

const linearPage1 = `{"data":{"issues":{"nodes":[
  {"id":"u1","identifier":"ENG-1","title":"Fix login bug","description":"SSO fails","url":"https://linear.app/acme/issue/ENG-1",
   "priority":1,"dueDate":"2025-01-20","createdAt":"2025-01-02T10:00:00.000Z","updatedAt":"2025-01-14T10:00:00.000Z",
   "state":{"name":"Todo","type":"unstarted"},"labels":{"nodes":[{"name":"Backend"}]},"creator":{"name":"Ana"}}
 ],"pageInfo":{"hasNextPage":true,"endCursor":"c1"}}}}`

const linearPage2 = `{"data":{"issues":{"nodes":[
  {"id":"u2","identifier":"ENG-2","title":"Write docs","description":"","url":"https://linear.app/acme/issue/ENG-2",
   "priority":0,"dueDate":null,"createdAt":"2025-01-03T10:00:00.000Z","updatedAt":"2025-01-14T11:00:00.000Z",
   "state":{"name":"Backlog","type":"backlog"},"labels":{"nodes":[]},"creator":null}
 ],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`

func TestLinear_CollectPaginates(t *testing.T) {
	t.Setenv("LINEAR_API_KEY", "lin-key")
	srv, requests := linearServer(t, []string{linearPage1, linearPage2})

	c := newLinear(testDeps(t, todo.SourceLinear, config.SourceConfig{BaseURL: srv.URL}))
	res, err := c.Collect(context.Background(), Options{From: day("2025-01-14"), To: day("2025-01-14")})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Empty(t, res.Errors)
	assert.Equal(t, todo.SourceLinear, res.Source)
	assert.Equal(t, day("2025-01-14"), res.DateRange.From)

	first := res.Items[0]
	assert.Equal(t, "ENG-1", first.ID)
	assert.Equal(t, "Fix login bug", first.Title)
	assert.Equal(t, "ENG-1", first.Metadata["identifier"])
	assert.Equal(t, 1, first.Metadata["priority"])
	assert.Equal(t, []string{"Backend"}, first.Metadata["labels"])
	assert.Equal(t, "Ana", first.Author)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, day("2025-01-20"), *first.DueDate)
	assert.True(t, first.Flags.IsActionItem)

	_, hasPriority := res.Items[1].Metadata["priority"]
	assert.False(t, hasPriority, "priority 0 means no signal")

	require.Len(t, *requests, 2)
	vars := (*requests)[1]["variables"].(map[string]any)
	assert.Equal(t, "c1", vars["after"])
}

func TestLinear_LaterPageFailureIsSoft(t *testing.T) {
	t.Setenv("LINEAR_API_KEY", "lin-key")
	srv, _ := linearServer(t, []string{linearPage1})

	c := newLinear(testDeps(t, todo.SourceLinear, config.SourceConfig{BaseURL: srv.URL}))
	res, err := c.Collect(context.Background(), Options{})
	require.NoError(t, err)

	assert.Len(t, res.Items, 1)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "page 2")
}

func TestLinear_FirstPageFailureIsTotal(t *testing.T) {
	t.Setenv("LINEAR_API_KEY", "lin-key")
	srv, _ := linearServer(t, []string{`{"errors":[{"message":"rate limited"}]}`})

	c := newLinear(testDeps(t, todo.SourceLinear, config.SourceConfig{BaseURL: srv.URL}))
	_, err := c.Collect(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestLinear_MissingToken(t *testing.T) {
	t.Setenv("GATHER_TEST_LINEAR", "")

	c := newLinear(testDeps(t, todo.SourceLinear, config.SourceConfig{TokenEnv: "GATHER_TEST_LINEAR"}))
	_, err := c.Collect(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GATHER_TEST_LINEAR")
}

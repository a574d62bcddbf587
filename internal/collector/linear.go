package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/gather/internal/todo"
)

const (
	linearDefaultURL   = "https://api.linear.app/graphql"
	linearDefaultToken = "LINEAR_API_KEY"
	linearPageSize     = 50
	linearMaxPages     = 40
)

// linearIssuesQuery lists open issues assigned to the token owner that were
// updated in the requested window.
const linearIssuesQuery = `query Issues($first: Int!, $after: String, $filter: IssueFilter) {
  issues(first: $first, after: $after, filter: $filter) {
    nodes {
      id
      identifier
      title
      description
      url
      priority
      dueDate
      createdAt
      updatedAt
      state { name type }
      labels { nodes { name } }
      creator { name }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

// linearCollector reads assigned issues from the Linear GraphQL API.
//
// Priority mapping: Linear 1 (urgent), 2 (high), 3 (medium), 4 (low) are passed
// through as metadata["priority"]; 0 (no priority) is omitted so the todo keeps
// its base priority. The issue identifier is supplied as metadata["identifier"]
// and labels as metadata["labels"].
type linearCollector struct {
	base
}

func newLinear(deps Deps) Collector {
	return &linearCollector{base: newBase(todo.SourceLinear, deps)}
}

type linearIssue struct {
	ID          string  `json:"id"`
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Priority    int     `json:"priority"`
	DueDate     *string `json:"dueDate"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	State       struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Creator *struct {
		Name string `json:"name"`
	} `json:"creator"`
}

type linearResponse struct {
	Data *struct {
		Issues struct {
			Nodes    []linearIssue `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"issues"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *linearCollector) Collect(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	from, to := resolveRange(opts, c.now())
	res := newResult(c.source, from, to)

	tok, err := token(c.settings(), linearDefaultToken)
	if err != nil {
		return nil, err
	}

	filter := map[string]any{
		"updatedAt": map[string]any{
			"gte": from.Format(time.RFC3339),
			"lte": EndOfDay(to).Format(time.RFC3339),
		},
		"assignee": map[string]any{"isMe": map[string]any{"eq": true}},
		"state":    map[string]any{"type": map[string]any{"nin": []string{"completed", "canceled"}}},
	}

	var cursor *string
	for page := 1; page <= linearMaxPages; page++ {
		resp, err := c.fetchPage(ctx, tok, filter, cursor)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			res.addError("page %d: %v", page, err)
			break
		}

		for _, issue := range resp.Data.Issues.Nodes {
			item, err := c.toItem(issue)
			if err != nil {
				res.addError("issue %s: %v", issue.Identifier, err)
				continue
			}
			res.Items = append(res.Items, item)
		}

		info := resp.Data.Issues.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			break
		}
		next := info.EndCursor
		cursor = &next
	}

	if opts.Verbose {
		c.logger.Info().Int("items", len(res.Items)).Int("errors", len(res.Errors)).Msg("linear collect complete")
	}
	return res.finish(started), nil
}

func (c *linearCollector) fetchPage(ctx context.Context, tok string, filter map[string]any, cursor *string) (*linearResponse, error) {
	body, err := json.Marshal(map[string]any{
		"query": linearIssuesQuery,
		"variables": map[string]any{
			"first":  c.batchSize(linearPageSize),
			"after":  cursor,
			"filter": filter,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(linearDefaultURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tok)

	var resp linearResponse
	if err := doJSON(c.http, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("graphql: empty response")
	}
	return &resp, nil
}

func (c *linearCollector) toItem(issue linearIssue) (RawItem, error) {
	created, err := ParseDate(issue.CreatedAt)
	if err != nil {
		return RawItem{}, err
	}

	labels := make([]string, 0, len(issue.Labels.Nodes))
	for _, l := range issue.Labels.Nodes {
		labels = append(labels, l.Name)
	}

	meta := map[string]any{
		"identifier": issue.Identifier,
		"labels":     labels,
		"state":      issue.State.Name,
		"linear_id":  issue.ID,
	}
	if issue.Priority >= 1 && issue.Priority <= 4 {
		meta["priority"] = issue.Priority
	}

	item := RawItem{
		ID:       issue.Identifier,
		Source:   c.source,
		Title:    issue.Title,
		Content:  issue.Description,
		URL:      issue.URL,
		Date:     created,
		Metadata: meta,
		Flags:    Flags{IsActionItem: true, Category: "issue"},
	}
	if issue.Creator != nil {
		item.Author = issue.Creator.Name
	}
	if issue.DueDate != nil && *issue.DueDate != "" {
		due, err := ParseDate(*issue.DueDate)
		if err != nil {
			return RawItem{}, err
		}
		item.DueDate = &due
	}
	return item, nil
}

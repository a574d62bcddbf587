package collector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/gather/internal/todo"
)

const (
	slackDefaultURL   = "https://slack.com/api"
	slackDefaultToken = "SLACK_USER_TOKEN"
	slackDefaultQuery = "to:me"
	slackPageSize     = 100
	slackMaxPages     = 50
	slackTitleMax     = 120
)

// slackCollector turns search.messages matches into action items. Every match
// of the configured query is an action item; the range is applied with the
// after:/before: search modifiers, which are exclusive.
type slackCollector struct {
	base
}

func newSlack(deps Deps) Collector {
	return &slackCollector{base: newBase(todo.SourceSlack, deps)}
}

type slackEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type slackMatch struct {
	TS        string `json:"ts"`
	Text      string `json:"text"`
	Permalink string `json:"permalink"`
	User      string `json:"user"`
	Username  string `json:"username"`
	Channel   struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

type slackSearchResponse struct {
	slackEnvelope
	Messages struct {
		Matches    []slackMatch `json:"matches"`
		Pagination struct {
			PageCount int `json:"page_count"`
		} `json:"pagination"`
	} `json:"messages"`
}

type slackUserResponse struct {
	slackEnvelope
	User struct {
		Name    string `json:"name"`
		Profile struct {
			RealName string `json:"real_name"`
		} `json:"profile"`
	} `json:"user"`
}

func (c *slackCollector) Collect(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	from, to := resolveRange(opts, c.now())
	res := newResult(c.source, from, to)

	tok, err := token(c.settings(), slackDefaultToken)
	if err != nil {
		return nil, err
	}
	auth := "Bearer " + tok

	query := c.settings().Query
	if query == "" {
		query = slackDefaultQuery
	}
	query = fmt.Sprintf("%s after:%s before:%s", query,
		from.AddDate(0, 0, -1).Format(DateLayout), to.AddDate(0, 0, 1).Format(DateLayout))

	excluded := make(map[string]bool)
	for _, ch := range c.settings().ExcludeChannels {
		excluded[strings.ToLower(strings.TrimPrefix(ch, "#"))] = true
	}

	for page := 1; page <= slackMaxPages; page++ {
		params := url.Values{}
		params.Set("query", query)
		params.Set("count", strconv.Itoa(c.batchSize(slackPageSize)))
		params.Set("page", strconv.Itoa(page))
		params.Set("sort", "timestamp")

		var resp slackSearchResponse
		err := c.call(ctx, auth, "search.messages", params, &resp)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			res.addError("page %d: %v", page, err)
			break
		}

		for _, m := range resp.Messages.Matches {
			if excluded[strings.ToLower(m.Channel.Name)] {
				continue
			}
			item, err := c.toItem(ctx, auth, m)
			if err != nil {
				res.addError("message %s: %v", m.TS, err)
				continue
			}
			res.Items = append(res.Items, item)
		}

		if len(resp.Messages.Matches) == 0 || page >= resp.Messages.Pagination.PageCount {
			break
		}
	}

	if opts.Verbose {
		c.logger.Info().Int("items", len(res.Items)).Int("errors", len(res.Errors)).Msg("slack collect complete")
	}
	return res.finish(started), nil
}

// call invokes a Slack Web API method and checks the ok envelope.
func (c *slackCollector) call(ctx context.Context, auth, method string, params url.Values, out interface{ envelope() slackEnvelope }) error {
	u := c.baseURL(slackDefaultURL) + "/" + method + "?" + params.Encode()
	if err := getJSON(ctx, c.http, u, auth, out); err != nil {
		return err
	}
	if env := out.envelope(); !env.OK {
		return fmt.Errorf("slack API error: %s", env.Error)
	}
	return nil
}

func (e slackEnvelope) envelope() slackEnvelope { return e }

func (c *slackCollector) toItem(ctx context.Context, auth string, m slackMatch) (RawItem, error) {
	date, err := parseSlackTS(m.TS)
	if err != nil {
		return RawItem{}, err
	}

	text := strings.TrimSpace(m.Text)
	title := text
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = truncateRunes(strings.TrimSpace(title), slackTitleMax)
	if title == "" {
		return RawItem{}, fmt.Errorf("empty message")
	}

	author := m.Username
	if m.User != "" {
		if name := c.userName(ctx, auth, m.User); name != "" {
			author = name
		}
	}

	return RawItem{
		ID:      m.Channel.ID + "/" + m.TS,
		Source:  c.source,
		Title:   title,
		Content: text,
		URL:     m.Permalink,
		Date:    date,
		Author:  author,
		Metadata: map[string]any{
			"channel": m.Channel.Name,
		},
		Flags: Flags{IsActionItem: true, Category: "mention"},
	}, nil
}

// userName resolves a Slack user id through the shared lookup cache.
// Lookup failures leave the author unresolved rather than failing the item.
func (c *slackCollector) userName(ctx context.Context, auth, userID string) string {
	key := "slack:user:" + userID
	if name, ok := c.lookup.Get(key); ok {
		return name
	}

	params := url.Values{}
	params.Set("user", userID)
	var resp slackUserResponse
	if err := c.call(ctx, auth, "users.info", params, &resp); err != nil {
		c.logger.Debug().Err(err).Str("user", userID).Msg("user lookup failed")
		return ""
	}

	name := resp.User.Profile.RealName
	if name == "" {
		name = resp.User.Name
	}
	c.lookup.Put(key, name)
	return name
}

func parseSlackTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ts %q", ts)
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

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
	humaansDefaultURL   = "https://app.humaans.io/api"
	humaansDefaultToken = "HUMAANS_API_TOKEN"
	humaansPageSize     = 100
	humaansAppURL       = "https://app.humaans.io/time-away"
)

// humaansCollector lists time-away requests waiting for approval.
//
// Humaans offers no historical query for pending approvals, so this collector
// ignores the requested range and always returns the current snapshot. Its
// Result.DateRange is the snapshot day, not the requested range.
type humaansCollector struct {
	base
}

func newHumaans(deps Deps) Collector {
	return &humaansCollector{base: newBase(todo.SourceHumaans, deps)}
}

type humaansTimeAway struct {
	ID        string `json:"id"`
	PersonID  string `json:"personId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Note      string `json:"note"`
	Status    string `json:"requestStatus"`
	CreatedAt string `json:"createdAt"`
}

type humaansPage struct {
	Total int               `json:"total"`
	Data  []humaansTimeAway `json:"data"`
}

type humaansPerson struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (c *humaansCollector) Collect(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	today := Day(c.now())
	res := newResult(c.source, today, today)

	tok, err := token(c.settings(), humaansDefaultToken)
	if err != nil {
		return nil, err
	}
	auth := "Bearer " + tok

	records, err := c.pending(ctx, auth, res)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		item, err := c.toItem(ctx, auth, r)
		if err != nil {
			res.addError("time-away %s: %v", r.ID, err)
			continue
		}
		res.Items = append(res.Items, item)
	}

	if opts.Verbose {
		c.logger.Info().Int("items", len(res.Items)).Msg("humaans snapshot collected")
	}
	return res.finish(started), nil
}

// pending pages through time-away requests using $limit/$skip until total is reached.
func (c *humaansCollector) pending(ctx context.Context, auth string, res *Result) ([]humaansTimeAway, error) {
	limit := c.batchSize(humaansPageSize)
	var all []humaansTimeAway

	for skip := 0; ; skip += limit {
		params := url.Values{}
		params.Set("requestStatus", "pending")
		params.Set("$limit", strconv.Itoa(limit))
		params.Set("$skip", strconv.Itoa(skip))

		var page humaansPage
		if err := getJSON(ctx, c.http, c.baseURL(humaansDefaultURL)+"/time-away?"+params.Encode(), auth, &page); err != nil {
			if skip == 0 {
				return nil, err
			}
			res.addError("skip %d: %v", skip, err)
			return all, nil
		}

		all = append(all, page.Data...)
		if len(page.Data) == 0 || len(all) >= page.Total {
			return all, nil
		}
	}
}

func (c *humaansCollector) toItem(ctx context.Context, auth string, r humaansTimeAway) (RawItem, error) {
	created, err := ParseDate(r.CreatedAt)
	if err != nil {
		return RawItem{}, err
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return RawItem{}, err
	}

	who := c.personName(ctx, auth, r.PersonID)
	if who == "" {
		who = r.PersonID
	}

	content := fmt.Sprintf("%s to %s", r.StartDate, r.EndDate)
	if r.Note != "" {
		content += "\n\n" + r.Note
	}

	return RawItem{
		ID:           r.ID,
		Source:       c.source,
		Title:        fmt.Sprintf("Approve time away for %s (%s to %s)", who, r.StartDate, r.EndDate),
		Content:      content,
		URL:          humaansAppURL,
		Date:         created,
		Participants: []string{who},
		Flags:        Flags{IsActionItem: true, Category: "approval"},
		DueDate:      &start,
	}, nil
}

// personName resolves a person id through the shared lookup cache.
func (c *humaansCollector) personName(ctx context.Context, auth, personID string) string {
	key := "humaans:person:" + personID
	if name, ok := c.lookup.Get(key); ok {
		return name
	}

	var p humaansPerson
	if err := getJSON(ctx, c.http, c.baseURL(humaansDefaultURL)+"/people/"+url.PathEscape(personID), auth, &p); err != nil {
		c.logger.Debug().Err(err).Str("person", personID).Msg("person lookup failed")
		return ""
	}

	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = p.Email
	}
	c.lookup.Put(key, name)
	return name
}

package guidelines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/tonecheck/internal/redact"
	"github.com/dshills/tonecheck/internal/review"
)

const (
	pageSize = 100
	// notionVersion is sent when the syncer talks to the API directly.
	notionVersion = "2022-06-28"
)

// Syncer fetches a fresh corpus from the knowledge-base proxy.
type Syncer struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithSyncLogger sets the syncer logger.
func WithSyncLogger(l *zap.Logger) SyncOption {
	return func(s *Syncer) { s.log = l }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) SyncOption {
	return func(s *Syncer) { s.client = c }
}

// WithToken sends a bearer token and API version header, for talking to the
// knowledge-base API without the proxy.
func WithToken(token string) SyncOption {
	return func(s *Syncer) { s.token = token }
}

// NewSyncer creates a Syncer rooted at baseURL.
func NewSyncer(baseURL string, opts ...SyncOption) *Syncer {
	s := &Syncer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync fetches the guideline page text and the rule database in parallel.
// Any failure fails the whole sync.
func (s *Syncer) Sync(ctx context.Context, pageID, databaseID string) (Corpus, error) {
	if s.baseURL == "" {
		return Corpus{}, fmt.Errorf("no guidelines source URL configured")
	}
	if pageID == "" || databaseID == "" {
		return Corpus{}, fmt.Errorf("guidelines page and database ids are required")
	}
	start := s.now()

	var lines []string
	var rules []review.Rule
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = s.fetchBlocks(gctx, pageID)
		return err
	})
	g.Go(func() error {
		var err error
		rules, err = s.queryDatabase(gctx, databaseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Corpus{}, err
	}
	if rules == nil {
		rules = []review.Rule{}
	}

	s.log.Info("guidelines synced",
		zap.Int("lines", len(lines)),
		zap.Int("rules", len(rules)),
		zap.Duration("elapsed", s.now().Sub(start)))
	return Corpus{
		PageText:  strings.Join(lines, "\n"),
		Rules:     rules,
		Timestamp: s.now().UnixMilli(),
	}, nil
}

type richText struct {
	PlainText string `json:"plain_text"`
}

func plain(parts []richText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}

type block struct {
	ID          string                     `json:"id"`
	Type        string                     `json:"type"`
	HasChildren bool                       `json:"has_children"`
	Content     map[string]json.RawMessage `json:"-"`
}

func (b *block) UnmarshalJSON(data []byte) error {
	type plainBlock block
	if err := json.Unmarshal(data, (*plainBlock)(b)); err != nil {
		return err
	}
	return json.Unmarshal(data, &b.Content)
}

// text returns the block's rich text, or "" for blocks without any.
func (b block) text() string {
	raw, ok := b.Content[b.Type]
	if !ok {
		return ""
	}
	var body struct {
		RichText []richText `json:"rich_text"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return plain(body.RichText)
}

var blockPrefixes = map[string]string{
	"heading_1":          "# ",
	"heading_2":          "## ",
	"heading_3":          "### ",
	"bulleted_list_item": "- ",
	"numbered_list_item": "- ",
	"callout":            "> ",
}

type blockPage struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

// fetchBlocks flattens a block tree into text lines, depth first.
func (s *Syncer) fetchBlocks(ctx context.Context, blockID string) ([]string, error) {
	var lines []string
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(pageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		endpoint := fmt.Sprintf("%s/blocks/%s/children?%s", s.baseURL, url.PathEscape(blockID), q.Encode())

		var page blockPage
		if err := s.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("blocks api: %w", err)
		}
		for _, b := range page.Results {
			if text := b.text(); text != "" {
				lines = append(lines, blockPrefixes[b.Type]+text)
			}
			if b.HasChildren {
				children, err := s.fetchBlocks(ctx, b.ID)
				if err != nil {
					return nil, err
				}
				lines = append(lines, children...)
			}
		}
		if !page.HasMore || page.NextCursor == "" {
			return lines, nil
		}
		cursor = page.NextCursor
	}
}

type selectOption struct {
	Name string `json:"name"`
}

type titleProp struct {
	Title []richText `json:"title"`
}

type textProp struct {
	RichText []richText `json:"rich_text"`
}

type selectProp struct {
	Select *selectOption `json:"select"`
}

func (p selectProp) name() string {
	if p.Select == nil {
		return ""
	}
	return p.Select.Name
}

type multiSelectProp struct {
	MultiSelect []selectOption `json:"multi_select"`
}

// ruleProperties maps the rule database's column names.
type ruleProperties struct {
	Name        titleProp       `json:"규칙명"`
	Category    selectProp      `json:"카테고리"`
	BadExample  textProp        `json:"잘못된 예시"`
	GoodExample textProp        `json:"올바른 예시"`
	Description textProp        `json:"설명"`
	Targets     multiSelectProp `json:"적용 대상"`
	Priority    selectProp      `json:"우선순위"`
}

func (p ruleProperties) rule() review.Rule {
	r := review.Rule{
		Name:        plain(p.Name.Title),
		Category:    p.Category.name(),
		BadExample:  plain(p.BadExample.RichText),
		GoodExample: plain(p.GoodExample.RichText),
		Description: plain(p.Description.RichText),
		Targets:     make([]string, 0, len(p.Targets.MultiSelect)),
		Priority:    p.Priority.name(),
	}
	for _, t := range p.Targets.MultiSelect {
		r.Targets = append(r.Targets, t.Name)
	}
	return r
}

type queryPage struct {
	Results []struct {
		Properties ruleProperties `json:"properties"`
	} `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type queryRequest struct {
	PageSize    int    `json:"page_size"`
	StartCursor string `json:"start_cursor,omitempty"`
}

// queryDatabase reads every row of the rule database.
func (s *Syncer) queryDatabase(ctx context.Context, databaseID string) ([]review.Rule, error) {
	var rules []review.Rule
	endpoint := fmt.Sprintf("%s/databases/%s/query", s.baseURL, url.PathEscape(databaseID))
	cursor := ""
	for {
		var page queryPage
		if err := s.do(ctx, http.MethodPost, endpoint, queryRequest{PageSize: pageSize, StartCursor: cursor}, &page); err != nil {
			return nil, fmt.Errorf("database api: %w", err)
		}
		for _, row := range page.Results {
			rules = append(rules, row.Properties.rule())
		}
		if !page.HasMore || page.NextCursor == "" {
			return rules, nil
		}
		cursor = page.NextCursor
	}
}

func (s *Syncer) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
		req.Header.Set("Notion-Version", notionVersion)
	}

	s.log.Debug("guidelines request", zap.String("method", method), zap.String("url", endpoint))
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, redact.Snippet(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}


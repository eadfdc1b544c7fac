package monday

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

// ErrPageLimit is returned when an email scan reaches the page bound with pages left to read.
var ErrPageLimit = errors.New("monday directory page limit reached")

const (
	defaultPageSize = 100
	defaultMaxPages = 50
)

const firstItemsPageQuery = `query ($board: [ID!], $limit: Int!) {
  boards(ids: $board) {
    items_page(limit: $limit) {
      cursor
      items { id name column_values { id text } }
    }
  }
}`

const nextItemsPageQuery = `query ($cursor: String!, $limit: Int!) {
  next_items_page(cursor: $cursor, limit: $limit) {
    cursor
    items { id name column_values { id text } }
  }
}`

const itemsByIDQuery = `query ($ids: [ID!]) {
  items(ids: $ids) {
    id
    name
    board { id }
    column_values { id text }
  }
}`

type columnValue struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type boardRef struct {
	ID string `json:"id"`
}

type item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Board        *boardRef     `json:"board,omitempty"`
	ColumnValues []columnValue `json:"column_values"`
}

type itemsPage struct {
	Cursor string `json:"cursor"`
	Items  []item `json:"items"`
}

type DirectoryConfig struct {
	BoardID         string
	EmailColumnID   string
	CompanyColumnID string
	PageSize        int
	MaxPages        int
}

// Directory resolves identities from the Users board.
type Directory struct {
	client *Client
	cfg    DirectoryConfig
}

func NewDirectory(client *Client, cfg DirectoryConfig) *Directory {
	if cfg.EmailColumnID == "" {
		cfg.EmailColumnID = "email"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Directory{client: client, cfg: cfg}
}

// FindByEmail walks the board with cursor pagination until an item's email column matches.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	identity, err := d.findByEmail(ctx, domain.NormalizeEmail(email))
	observability.RecordDirectoryLookup(ctx, "monday", "by_email", lookupOutcome(err))
	return identity, err
}

func (d *Directory) findByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, domain.ErrIdentityNotFound
	}

	var first struct {
		Boards []struct {
			ItemsPage itemsPage `json:"items_page"`
		} `json:"boards"`
	}
	err := d.client.Query(ctx, firstItemsPageQuery, map[string]any{
		"board": []string{d.cfg.BoardID},
		"limit": d.cfg.PageSize,
	}, &first)
	if err != nil {
		return nil, err
	}
	if len(first.Boards) == 0 {
		return nil, fmt.Errorf("%w: board %s not visible", ErrAPI, d.cfg.BoardID)
	}

	page := first.Boards[0].ItemsPage
	for pages := 1; ; pages++ {
		if identity := d.match(page.Items, email); identity != nil {
			return identity, nil
		}
		if page.Cursor == "" {
			return nil, domain.ErrIdentityNotFound
		}
		if pages >= d.cfg.MaxPages {
			return nil, fmt.Errorf("%w: %d pages", ErrPageLimit, pages)
		}
		var next struct {
			NextItemsPage itemsPage `json:"next_items_page"`
		}
		err := d.client.Query(ctx, nextItemsPageQuery, map[string]any{
			"cursor": page.Cursor,
			"limit":  d.cfg.PageSize,
		}, &next)
		if err != nil {
			return nil, err
		}
		page = next.NextItemsPage
	}
}

func (d *Directory) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	identity, err := d.findByID(ctx, strings.TrimSpace(id))
	observability.RecordDirectoryLookup(ctx, "monday", "by_id", lookupOutcome(err))
	return identity, err
}

func (d *Directory) findByID(ctx context.Context, id string) (*domain.Identity, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.ErrIdentityNotFound
	}
	var out struct {
		Items []item `json:"items"`
	}
	if err := d.client.Query(ctx, itemsByIDQuery, map[string]any{"ids": []string{id}}, &out); err != nil {
		return nil, err
	}
	for _, it := range out.Items {
		if it.ID != id {
			continue
		}
		if it.Board != nil && it.Board.ID != d.cfg.BoardID {
			return nil, domain.ErrIdentityNotFound
		}
		return d.toIdentity(it), nil
	}
	return nil, domain.ErrIdentityNotFound
}

func (d *Directory) ready() error {
	if !d.client.Configured() {
		return fmt.Errorf("%w: monday api token", domain.ErrNotConfigured)
	}
	if d.cfg.BoardID == "" {
		return fmt.Errorf("%w: monday users board id", domain.ErrNotConfigured)
	}
	return nil
}

func (d *Directory) match(items []item, email string) *domain.Identity {
	for _, it := range items {
		identity := d.toIdentity(it)
		if identity.Email != "" && identity.Email == email {
			return identity
		}
	}
	return nil
}

func (d *Directory) toIdentity(it item) *domain.Identity {
	identity := &domain.Identity{ID: it.ID, Name: it.Name}
	for _, cv := range it.ColumnValues {
		switch cv.ID {
		case d.cfg.EmailColumnID:
			identity.Email = emailFromColumnText(cv.Text)
		case d.cfg.CompanyColumnID:
			if company := strings.TrimSpace(cv.Text); company != "" {
				identity.CompanyID = &company
			}
		}
	}
	return identity
}

// Email columns render as "address" or "address - label".
func emailFromColumnText(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return domain.NormalizeEmail(fields[0])
}

func lookupOutcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, domain.ErrIdentityNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}

package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reminder-bot/internal/domain/ports/adapter"
)

const (
	TheCatAPIURL = "https://api.thecatapi.com/v1/images/search"
	CataasURL    = "https://cataas.com/cat?json=true"
	CataasBase   = "https://cataas.com"
	FallbackURL  = "https://cataas.com/cat"
)

var (
	_ adapter.ContentSource = (*TheCatAPI)(nil)
	_ adapter.ContentSource = (*Cataas)(nil)
)

var errEmptyURL = errors.New("response carried no image url")

// TheCatAPI answers with a JSON array: [{"id":"…","url":"https://…"}].
type TheCatAPI struct {
	endpoint string
	client   *http.Client
}

func NewTheCatAPI(endpoint string, client *http.Client) *TheCatAPI {
	if endpoint == "" {
		endpoint = TheCatAPIURL
	}
	return &TheCatAPI{endpoint: endpoint, client: defaultClient(client)}
}

func (s *TheCatAPI) Name() string { return "thecatapi" }

func (s *TheCatAPI) Fetch(ctx context.Context) (string, error) {
	var out []struct {
		URL string `json:"url"`
	}
	if err := getJSON(ctx, s.client, s.endpoint, &out); err != nil {
		return "", err
	}
	if len(out) == 0 || strings.TrimSpace(out[0].URL) == "" {
		return "", errEmptyURL
	}
	return out[0].URL, nil
}

// Cataas answers with an object whose url is relative to the site root.
type Cataas struct {
	endpoint string
	base     string
	client   *http.Client
}

func NewCataas(endpoint, base string, client *http.Client) *Cataas {
	if endpoint == "" {
		endpoint = CataasURL
	}
	if base == "" {
		base = CataasBase
	}
	return &Cataas{endpoint: endpoint, base: strings.TrimRight(base, "/"), client: defaultClient(client)}
}

func (s *Cataas) Name() string { return "cataas" }

func (s *Cataas) Fetch(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
		ID  string `json:"_id"`
	}
	if err := getJSON(ctx, s.client, s.endpoint, &out); err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(out.URL, "http://"), strings.HasPrefix(out.URL, "https://"):
		return out.URL, nil
	case out.URL != "":
		return s.base + "/" + strings.TrimLeft(out.URL, "/"), nil
	case out.ID != "":
		return s.base + "/cat/" + out.ID, nil
	}
	return "", errEmptyURL
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

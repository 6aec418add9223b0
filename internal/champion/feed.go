package champion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultDataDragonURL = "https://ddragon.leagueoflegends.com"

// Feed is the external source of champion data.
type Feed interface {
	LatestVersion(ctx context.Context) (string, error)
	// Champions returns numeric champion key -> internal champion id.
	Champions(ctx context.Context, version string) (map[int]string, error)
}

// DataDragon reads Riot's static data CDN.
type DataDragon struct {
	baseURL  string
	language string
	client   *http.Client
}

func NewDataDragon(baseURL string, client *http.Client) *DataDragon {
	if baseURL == "" {
		baseURL = DefaultDataDragonURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DataDragon{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: "en_US",
		client:   client,
	}
}

func (d *DataDragon) LatestVersion(ctx context.Context) (string, error) {
	var versions []string
	if err := d.getJSON(ctx, d.baseURL+"/api/versions.json", &versions); err != nil {
		return "", err
	}
	if len(versions) == 0 || versions[0] == "" {
		return "", fmt.Errorf("empty version list")
	}
	return versions[0], nil
}

type championFile struct {
	Data map[string]struct {
		ID   string `json:"id"`
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"data"`
}

func (d *DataDragon) Champions(ctx context.Context, version string) (map[int]string, error) {
	url := fmt.Sprintf("%s/cdn/%s/data/%s/champion.json", d.baseURL, version, d.language)

	var file championFile
	if err := d.getJSON(ctx, url, &file); err != nil {
		return nil, err
	}

	out := make(map[int]string, len(file.Data))
	for _, c := range file.Data {
		key, err := strconv.Atoi(c.Key)
		if err != nil || c.ID == "" {
			continue
		}
		out[key] = c.ID
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no champions in %s", url)
	}
	return out, nil
}

func (d *DataDragon) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("data dragon error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

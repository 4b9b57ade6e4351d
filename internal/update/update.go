package update

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// ReleasesURL is the GitHub endpoint for the newest published release.
const ReleasesURL = "https://api.github.com/repos/swhefti/ai-news-intelligence-hub/releases/latest"

// Result holds the outcome of a version check.
type Result struct {
	LatestVersion string
	URL           string
}

type ghRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check asks url for the latest release and reports it when it differs from
// currentVersion. Development builds are never checked. Returns nil on any
// error (non-fatal).
func Check(ctx context.Context, client *http.Client, url, currentVersion string) *Result {
	if currentVersion == "" || currentVersion == "dev" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var release ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(currentVersion, "v")

	if latest == "" || latest == current {
		return nil
	}

	return &Result{LatestVersion: latest, URL: release.HTMLURL}
}

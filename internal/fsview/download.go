package fsview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/colony-launcher/colony/internal/buildinfo"
)

// Credentials are HTTP basic auth for a download.
type Credentials struct {
	Username string
	Password string
}

// Download streams url into dst. A partially written file is removed on any
// failure.
func Download(ctx context.Context, client *http.Client, url, dst string, auth *Credentials) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", buildinfo.UserAgent())

	if auth != nil {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(dst) //nolint:gosec // G304: destination chosen by the caller
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}

		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	return nil
}

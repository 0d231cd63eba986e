package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gitvault/internal/apperr"
	"gitvault/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(config.GitHubConfig{
		Token:          "test-token",
		Owner:          "octo",
		APIBaseURL:     srv.URL,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestCreateRepositoryRetriesTransientFailures(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"server error"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":42,"name":"vault-a-1"}`)
	})

	client := newTestClient(t, mux)
	repo, err := client.CreateRepository(context.Background(), "vault-a-1", "storage bucket")
	if err != nil {
		t.Fatalf("CreateRepository returned error: %v", err)
	}
	if repo.ID != 42 || repo.Name != "vault-a-1" {
		t.Fatalf("unexpected repository: %+v", repo)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestCreateRepositoryStopsOnTerminalError(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"name already exists"}`)
	})

	client := newTestClient(t, mux)
	_, err := client.CreateRepository(context.Background(), "vault-a-1", "storage bucket")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation kind, got %v", apperr.KindOf(err))
	}
	if calls != 1 {
		t.Fatalf("expected no retries on terminal error, got %d calls", calls)
	}
}

func TestRepositoryExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/present", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":1,"name":"present"}`)
	})
	mux.HandleFunc("GET /repos/octo/absent", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	client := newTestClient(t, mux)

	exists, err := client.RepositoryExists(context.Background(), "present")
	if err != nil || !exists {
		t.Fatalf("expected present=true, got %v err=%v", exists, err)
	}

	exists, err = client.RepositoryExists(context.Background(), "absent")
	if err != nil {
		t.Fatalf("expected no error for missing repository, got %v", err)
	}
	if exists {
		t.Fatalf("expected absent=false")
	}
}

func TestCreateRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/vault-a-1/releases", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":99,"tag_name":"upload-abc"}`)
	})

	client := newTestClient(t, mux)
	release, err := client.CreateRelease(context.Background(), "vault-a-1", "upload-abc")
	if err != nil {
		t.Fatalf("CreateRelease returned error: %v", err)
	}
	if release.ID != 99 || release.Tag != "upload-abc" {
		t.Fatalf("unexpected release: %+v", release)
	}
}

func TestUploadAssetSendsContent(t *testing.T) {
	var received []byte
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/vault-a-1/releases/99/assets", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read upload body: %v", err)
		}
		received = body
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":7,"name":%q,"size":%d,"browser_download_url":"https://example.com/a.bin"}`,
			r.URL.Query().Get("name"), len(body))
	})

	client := newTestClient(t, mux)
	asset, err := client.UploadAsset(context.Background(), "vault-a-1", 99,
		"a.bin", "application/octet-stream", strings.NewReader("payload bytes"))
	if err != nil {
		t.Fatalf("UploadAsset returned error: %v", err)
	}
	if string(received) != "payload bytes" {
		t.Fatalf("unexpected uploaded content: %q", received)
	}
	if asset.ID != 7 || asset.Name != "a.bin" || asset.SizeBytes != int64(len("payload bytes")) {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if asset.DownloadURL != "https://example.com/a.bin" {
		t.Fatalf("unexpected download url: %s", asset.DownloadURL)
	}
}

func TestDeleteAssetTreatsNotFoundAsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/octo/vault-a-1/releases/assets/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("DELETE /repos/octo/vault-a-1/releases/assets/8", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"server error"}`)
	})

	client := newTestClient(t, mux)

	if err := client.DeleteAsset(context.Background(), "vault-a-1", 7); err != nil {
		t.Fatalf("expected not-found delete to succeed, got %v", err)
	}
	if err := client.DeleteAsset(context.Background(), "vault-a-1", 8); err == nil {
		t.Fatalf("expected error for server failure")
	}
}

func TestGetAggregateAssetSizePaginates(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/vault-a-1/releases", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":2,"assets":[{"id":12,"size":3145728}]}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/octo/vault-a-1/releases?page=2>; rel="next"`, baseURL))
		fmt.Fprint(w, `[{"id":1,"assets":[{"id":10,"size":1048576},{"id":11,"size":2097152}]}]`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	baseURL = srv.URL

	client, err := New(config.GitHubConfig{
		Token:      "test-token",
		Owner:      "octo",
		APIBaseURL: srv.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	usage, err := client.GetAggregateAssetSize(context.Background(), "vault-a-1")
	if err != nil {
		t.Fatalf("GetAggregateAssetSize returned error: %v", err)
	}
	if usage.AssetCount != 3 {
		t.Fatalf("expected 3 assets, got %d", usage.AssetCount)
	}
	if usage.TotalBytes != 6*1048576 {
		t.Fatalf("expected 6 MiB total, got %d", usage.TotalBytes)
	}
}

func TestNewRequiresOwner(t *testing.T) {
	_, err := New(config.GitHubConfig{Token: "t"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatalf("expected error for missing owner")
	}
}

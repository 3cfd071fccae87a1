package engine

import (
	"context"
	"io"
	"strings"
	"testing"
)

// fakeOpener is an in-memory catalogOpener fake, the same pattern as the
// teacher's blaster/data_test.go loggingOpener for TestOpenGcs.
type fakeOpener struct {
	files map[string]string
	opens []string
}

func (f *fakeOpener) open(ctx context.Context, path string) (io.ReadCloser, error) {
	f.opens = append(f.opens, path)
	content, ok := f.files[path]
	if !ok {
		return nil, errFakeNotFound(path)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type errFakeNotFound string

func (e errFakeNotFound) Error() string { return "fake file not found: " + string(e) }

func TestLoadCatalog_URLOnly(t *testing.T) {
	opener := &fakeOpener{files: map[string]string{
		"urls.txt": "http://x/a\nhttp://x/b\n\nhttp://x/c\n",
	}}
	c, err := loadCatalog(context.Background(), opener, "urls.txt", "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.URLs) != 3 {
		t.Fatalf("expected 3 urls, got %d", len(c.URLs))
	}
	if c.HasMD5 || c.HasLocal || c.HasServers {
		t.Fatalf("expected no optional lists loaded, got %+v", c)
	}
	if c.URLs[0].PathOrURL != "http://x/a" {
		t.Fatalf("unexpected first entry: %+v", c.URLs[0])
	}
}

func TestLoadCatalog_MismatchedMD5Size(t *testing.T) {
	opener := &fakeOpener{files: map[string]string{
		"urls.txt": "http://x/a\nhttp://x/b\n",
		"md5.txt":  "abc\n",
	}}
	_, err := loadCatalog(context.Background(), opener, "urls.txt", "md5.txt", "", "")
	if err == nil {
		t.Fatal("expected an error for mismatched md5 list size")
	}
}

func TestLoadCatalog_ServerListSplitsURLs(t *testing.T) {
	opener := &fakeOpener{files: map[string]string{
		"urls.txt":    "http://orig/path/to/object\n",
		"servers.txt": "s1 3\ns2 1\n",
	}}
	c, err := loadCatalog(context.Background(), opener, "urls.txt", "", "", "servers.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.HasServers || len(c.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %+v", c.Servers)
	}

	total := 0.0
	for _, s := range c.Servers {
		total += s.Weight
	}
	if diff := total - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected weights to sum to 1.0, got %f", total)
	}

	entry := c.URLs[0]
	if entry.Host != "orig" || entry.PathOrURL != "/path/to/object" {
		t.Fatalf("expected host/path split, got %+v", entry)
	}
}

func TestLoadCatalog_EmptyURLListIsFatal(t *testing.T) {
	opener := &fakeOpener{files: map[string]string{"urls.txt": ""}}
	_, err := loadCatalog(context.Background(), opener, "urls.txt", "", "", "")
	if err == nil {
		t.Fatal("expected an error for an empty url list")
	}
}

func TestParseServerList_DefaultWeight(t *testing.T) {
	servers, err := parseServerList([]string{"s1", "s2 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	// s1 defaults to weight 1, s2 is 2; normalized: 1/3, 2/3.
	if servers[0].Weight < 0.33 || servers[0].Weight > 0.34 {
		t.Fatalf("unexpected normalized weight for s1: %f", servers[0].Weight)
	}
}

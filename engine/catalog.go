package engine

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
)

// URLEntry is one record of the URL Catalog.
type URLEntry struct {
	PathOrURL          string
	Host               string
	ExpectedMD5        string
	LocalReferencePath string
}

// ServerWeight is one record of the Server Weighting catalog.
type ServerWeight struct {
	Authority string
	Weight    float64 // normalized; the full catalog's weights sum to 1.0
}

// Catalog is the immutable, frozen-after-load input data. Once LoadCatalog
// returns, nothing mutates a Catalog, so callers read it without locking.
type Catalog struct {
	URLs       []URLEntry
	Servers    []ServerWeight
	HasMD5     bool
	HasLocal   bool
	HasServers bool
}

// catalogOpener opens one of the four catalog input files, either from the
// local filesystem or from a gs://bucket/object URI. Mirrors the teacher's
// gcsOpener so tests never touch real GCS.
type catalogOpener interface {
	open(ctx context.Context, path string) (io.ReadCloser, error)
}

type fileOpener struct{}

func (fileOpener) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, "gs://") {
		name := strings.TrimPrefix(path, "gs://")
		slash := strings.Index(name, "/")
		if slash < 0 {
			return nil, errors.Errorf("invalid gs:// path %q", path)
		}
		bucket, object := name[:slash], name[slash+1:]
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return r, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return f, nil
}

// readLines reads path (via opener), skips empty lines, and trims only the
// trailing newline from each remaining line.
func readLines(ctx context.Context, opener catalogOpener, path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	r, err := opener.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return lines, nil
}

// LoadCatalog reads the URL list (mandatory) plus the optional MD5,
// local-reference, and server-weight lists, cross-validates their sizes,
// and normalizes server weights to sum to 1.0. Every path may be a local
// filesystem path or a gs://bucket/object URI.
func LoadCatalog(ctx context.Context, urlPath, md5Path, localPath, serverPath string) (*Catalog, error) {
	return loadCatalog(ctx, fileOpener{}, urlPath, md5Path, localPath, serverPath)
}

func loadCatalog(ctx context.Context, opener catalogOpener, urlPath, md5Path, localPath, serverPath string) (*Catalog, error) {
	urls, err := readLines(ctx, opener, urlPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading url list %q", urlPath)
	}
	if len(urls) == 0 {
		return nil, errors.Errorf("url list %q is empty", urlPath)
	}

	md5s, err := readLines(ctx, opener, md5Path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading md5 list %q", md5Path)
	}
	if md5Path != "" && len(md5s) != len(urls) {
		return nil, errors.Errorf("md5 list must be the same size as the url list (%d != %d)", len(md5s), len(urls))
	}

	locals, err := readLines(ctx, opener, localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading local-reference list %q", localPath)
	}
	if localPath != "" && len(locals) != len(urls) {
		return nil, errors.Errorf("local-reference list must be the same size as the url list (%d != %d)", len(locals), len(urls))
	}

	serverLines, err := readLines(ctx, opener, serverPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading server list %q", serverPath)
	}

	entries := make([]URLEntry, len(urls))
	for i, u := range urls {
		entries[i].PathOrURL = u
		if len(md5s) == len(urls) {
			entries[i].ExpectedMD5 = md5s[i]
		}
		if len(locals) == len(urls) {
			entries[i].LocalReferencePath = locals[i]
		}
	}

	c := &Catalog{
		URLs:     entries,
		HasMD5:   len(md5s) == len(urls),
		HasLocal: len(locals) == len(urls),
	}

	if len(serverLines) > 0 {
		servers, err := parseServerList(serverLines)
		if err != nil {
			return nil, err
		}
		c.Servers = servers
		c.HasServers = true
		splitURLsForServers(c.URLs)
	}

	return c, nil
}

// parseServerList parses "<authority>[whitespace<weight>]" lines, defaulting
// a missing weight to 1.0, then normalizes all weights to sum to 1.0.
func parseServerList(lines []string) ([]ServerWeight, error) {
	out := make([]ServerWeight, len(lines))
	var total float64
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil, errors.Errorf("empty server list line %d", i)
		}
		out[i].Authority = fields[0]
		out[i].Weight = 1.0
		if len(fields) > 1 {
			w, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing weight on server list line %d", i)
			}
			if w != 0 {
				out[i].Weight = w
			}
		}
		total += out[i].Weight
	}
	if total <= 0 {
		return nil, errors.New("server list weights sum to zero")
	}
	for i := range out {
		out[i].Weight /= total
	}
	return out, nil
}

// splitURLsForServers splits every catalog URL at the first '/' after the
// "http://" prefix into (host, path); host becomes the entry's Host
// header override and path replaces PathOrURL.
func splitURLsForServers(entries []URLEntry) {
	for i := range entries {
		u := strings.TrimPrefix(entries[i].PathOrURL, "http://")
		slash := strings.IndexByte(u, '/')
		if slash < 0 {
			entries[i].Host = u
			entries[i].PathOrURL = "/"
			continue
		}
		entries[i].Host = u[:slash]
		entries[i].PathOrURL = u[slash:]
	}
}

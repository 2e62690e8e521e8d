// Package loader resolves engine binaries.
//
// A Resolver turns a guest.Variant into module bytes. The embedder picks
// the strategy: Embedded serves the in-tree generated engine, Dir reads
// files written by "kissfft emit", HTTP fetches them from a base URL.
package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/guest"
)

// emitHint is appended to asset-not-found errors.
const emitHint = "Run `kissfft emit <dir>` to write the engine binaries, or unset the asset location to use the embedded engine."

// Resolver provides the binary for an engine variant.
type Resolver interface {
	Resolve(ctx context.Context, v guest.Variant) ([]byte, error)
}

// Func adapts a function to a Resolver.
type Func func(ctx context.Context, v guest.Variant) ([]byte, error)

func (f Func) Resolve(ctx context.Context, v guest.Variant) ([]byte, error) {
	return f(ctx, v)
}

// Embedded serves the generated engine compiled into this binary.
type Embedded struct{}

func (Embedded) Resolve(_ context.Context, v guest.Variant) ([]byte, error) {
	return guest.Module(v), nil
}

// Dir reads <Path>/<variant filename>.
type Dir struct {
	Path string
	// FS overrides the filesystem; nil uses the OS.
	FS fs.FS
}

func (d Dir) Resolve(_ context.Context, v guest.Variant) ([]byte, error) {
	var (
		data  []byte
		err   error
		where string
	)
	if d.FS != nil {
		where = v.Filename()
		data, err = fs.ReadFile(d.FS, where)
	} else {
		where = filepath.Join(d.Path, v.Filename())
		data, err = os.ReadFile(where)
	}
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.AssetNotFound(where, emitHint, err)
		}
		return nil, errors.Wrap(errors.PhaseAcquire, errors.KindEngineUnavailable, err,
			fmt.Sprintf("read %s", where))
	}
	return verify(where, data)
}

// HTTP fetches <BaseURL>/<variant filename>.
type HTTP struct {
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// MaxBytes caps the response body; 0 means 64 MiB.
	MaxBytes int64
}

func (h HTTP) Resolve(ctx context.Context, v guest.Variant) ([]byte, error) {
	target, err := url.JoinPath(strings.TrimRight(h.BaseURL, "/"), v.Filename())
	if err != nil {
		return nil, errors.InvalidArgument("loader.HTTP", "bad base url %q: %v", h.BaseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.InvalidArgument("loader.HTTP", "bad request: %v", err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAcquire, errors.KindEngineUnavailable, err,
			fmt.Sprintf("fetch %s", target))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.AssetNotFound(target, emitHint, fmt.Errorf("http status %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Wrap(errors.PhaseAcquire, errors.KindEngineUnavailable,
			fmt.Errorf("http status %s", resp.Status), fmt.Sprintf("fetch %s", target))
	}

	limit := h.MaxBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAcquire, errors.KindEngineUnavailable, err,
			fmt.Sprintf("read body of %s", target))
	}
	if int64(len(data)) > limit {
		return nil, errors.Wrap(errors.PhaseAcquire, errors.KindEngineUnavailable, nil,
			fmt.Sprintf("%s exceeds %d bytes", target, limit))
	}
	return verify(target, data)
}

// verify rejects binaries that do not expose the engine surface, so a
// stale or corrupt asset fails here rather than at the first call.
func verify(where string, data []byte) ([]byte, error) {
	if _, err := guest.Verify(data); err != nil {
		return nil, errors.EngineUnavailable(fmt.Sprintf("%s is not a valid engine binary", where), err)
	}
	return data, nil
}

// Emit writes every variant into dir for later use with Dir or HTTP.
func Emit(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, v := range guest.Variants() {
		path := filepath.Join(dir, v.Filename())
		if err := os.WriteFile(path, guest.Module(v), 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

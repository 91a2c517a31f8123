package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"qsar/internal/protocol"
)

const defaultContentType = "text/html; charset=utf-8"

// Page is a static page served under a first path segment. Body is served
// as-is; File, when set, is streamed from disk on every request.
type Page struct {
	Prefix      string `toml:"prefix" json:"prefix"`
	Title       string `toml:"title" json:"title,omitempty"`
	Body        string `toml:"body" json:"body,omitempty"`
	File        string `toml:"file" json:"file,omitempty"`
	ContentType string `toml:"content_type" json:"contentType,omitempty"`
}

// DefaultPages returns the built-in index and posts pages.
func DefaultPages() []Page {
	return []Page{
		{Prefix: "index", Title: "Index", Body: "<h1>Welcome to the Index page</h1>"},
		{Prefix: "posts", Title: "Posts", Body: "<h1>Welcome to the Posts page</h1>"},
	}
}

type pagesFile struct {
	Page []Page `toml:"page"`
}

// LoadPages reads [[page]] tables from a TOML file. Relative File paths are
// resolved against the directory holding the pages file.
func LoadPages(path string) ([]Page, error) {
	var pf pagesFile
	md, err := toml.DecodeFile(path, &pf)
	if err != nil {
		return nil, fmt.Errorf("decode pages file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("pages file %s: unknown key %s", path, undecoded[0])
	}

	base := filepath.Dir(path)
	for i := range pf.Page {
		p := &pf.Page[i]
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pages file %s: page %d: %w", path, i, err)
		}
		if p.File != "" && !filepath.IsAbs(p.File) {
			p.File = filepath.Join(base, p.File)
		}
	}
	return pf.Page, nil
}

func (p Page) validate() error {
	switch {
	case p.Prefix == "":
		return fmt.Errorf("prefix must not be empty")
	case p.Prefix == KindAPI:
		return fmt.Errorf("prefix %q is reserved", KindAPI)
	case p.Body != "" && p.File != "":
		return fmt.Errorf("page %q sets both body and file", p.Prefix)
	}
	for i := 0; i < len(p.Prefix); i++ {
		if p.Prefix[i] == '/' || p.Prefix[i] == '?' {
			return fmt.Errorf("prefix %q must be a single path segment", p.Prefix)
		}
	}
	return nil
}

// TableFromFile builds the full dispatch table: the API route, the default
// pages and, when path is set, the pages it defines.
func TableFromFile(path string) (*Table, error) {
	pages := DefaultPages()
	if path != "" {
		extra, err := LoadPages(path)
		if err != nil {
			return nil, err
		}
		pages = MergePages(pages, extra)
	}
	return NewTable(pages, APIHandler())
}

// MergePages overlays extra onto base; a page in extra replaces the base page
// with the same prefix.
func MergePages(base, extra []Page) []Page {
	out := make([]Page, 0, len(base)+len(extra))
	index := make(map[string]int, len(base)+len(extra))
	for _, p := range append(append([]Page(nil), base...), extra...) {
		if i, ok := index[p.Prefix]; ok {
			out[i] = p
			continue
		}
		index[p.Prefix] = len(out)
		out = append(out, p)
	}
	return out
}

// Handler returns the handler serving p.
func (p Page) Handler() Handler {
	contentType := p.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	if p.File == "" {
		return HandlerFunc(func(protocol.Request) protocol.Response {
			resp := protocol.HTMLResponse(200, p.Body)
			resp.Headers["Content-Type"] = contentType
			return resp
		})
	}

	return HandlerFunc(func(protocol.Request) protocol.Response {
		f, err := os.Open(p.File)
		if err != nil {
			if os.IsNotExist(err) {
				return NotFound()
			}
			return InternalError()
		}
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			_ = f.Close()
			return InternalError()
		}

		resp := protocol.NewResponse(200, protocol.StreamBody(f, info.Size()))
		resp.Headers["Content-Type"] = contentType
		resp.Headers["Content-Length"] = strconv.FormatInt(info.Size(), 10)
		return resp
	})
}

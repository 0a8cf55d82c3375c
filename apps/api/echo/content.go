package echoapi

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/manifest"
)

type contentProxy struct {
	svc     *scorm.Service
	content manifest.ContentStore
}

// registerContentProxy serves package files from the API origin, so that content frames
// can reach the API object of the launch page.
func registerContentProxy(e *echo.Echo, prefix string, deps *Deps) {
	if prefix == "" {
		prefix = "/content"
	}
	p := contentProxy{svc: deps.Scorm, content: deps.Content}
	e.GET(strings.TrimSuffix(prefix, "/")+"/:package/*", p.serve)
}

func (p contentProxy) serve(ctx echo.Context) error {
	name := strings.TrimPrefix(path.Clean("/"+ctx.Param("*")), "/")
	if name == "" || !fs.ValidPath(name) {
		return errHttpNotFound
	}

	pkg, err := p.svc.GetPackage(ctx.Request().Context(), ctx.Param("package"))
	if err != nil {
		return errors.Wrap(err, "getting package")
	}
	fsys, err := p.content.Open(pkg)
	if err != nil {
		return errors.Wrap(err, "opening package content")
	}

	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening content file")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "reading content file info")
	}
	if info.IsDir() {
		return errHttpNotFound
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			return errors.Wrap(err, "reading content file")
		}
		rs = bytes.NewReader(data)
	}
	http.ServeContent(ctx.Response(), ctx.Request(), info.Name(), info.ModTime(), rs)
	return nil
}

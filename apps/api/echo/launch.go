package echoapi

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
	"github.com/trezcool/masomo-scorm/services/notify"
)

const noticeIntervalMS = 15000

var (
	//go:embed templates/launch.gohtml
	templatesFS embed.FS

	launchTmpl = template.Must(template.ParseFS(templatesFS, "templates/launch.gohtml"))
)

func launchURL(launchID string) string {
	return "/v1/launches/" + launchID
}

type launchPage struct {
	Title            string
	BaseURL          string
	APIObject        string
	Functions        []string
	EntryURL         string
	NoticeIntervalMS int
}

type launchApi struct {
	svc    *scorm.Service
	player *player.Player
	inbox  *notify.Inbox
	deps   *Deps
}

// registerLaunchAPI serves the content frame. The launch id is the only credential: it is
// handed out by an authenticated launch and dies with it.
func registerLaunchAPI(g *echo.Group, deps *Deps) {
	api := launchApi{
		svc:    deps.Scorm,
		player: deps.Player,
		inbox:  deps.Inbox,
		deps:   deps,
	}

	lg := g.Group("/launches/:launch", noStoreMiddleware)
	lg.GET("", api.page)
	lg.POST("/calls", api.call)
	lg.POST("/release", api.release)
	lg.GET("/notices", api.notices)
}

// Handlers

func (api *launchApi) page(ctx echo.Context) error {
	rt, err := api.player.Runtime(ctx.Request().Context(), ctx.Param("launch"))
	if err != nil {
		return errors.Wrap(err, "getting launch")
	}
	l := rt.Launch()

	title := "SCORM"
	if pkg, err := api.svc.GetPackage(ctx.Request().Context(), l.PackageID); err == nil {
		title = pkg.Title
	}

	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	ctx.Response().WriteHeader(http.StatusOK)
	return launchTmpl.Execute(ctx.Response(), launchPage{
		Title:            title,
		BaseURL:          launchURL(l.ID),
		APIObject:        player.APIObject(l.Version),
		Functions:        player.Functions(l.Version),
		EntryURL:         l.EntryURL,
		NoticeIntervalMS: noticeIntervalMS,
	})
}

func (api *launchApi) call(ctx echo.Context) error {
	var data CallRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CallRequest")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}

	res, code, err := api.player.Call(ctx.Request().Context(), ctx.Param("launch"), data.Function, data.Args...)
	if err != nil {
		return errors.Wrap(err, "calling runtime")
	}
	return ctx.JSON(http.StatusOK, CallResponse{Result: res, ErrorCode: code.String()})
}

// release is the unload beacon. Launches already gone are fine.
func (api *launchApi) release(ctx echo.Context) error {
	err := api.player.Release(ctx.Request().Context(), ctx.Param("launch"))
	if err != nil && errors.Cause(err) != player.ErrLaunchNotFound {
		return errors.Wrap(err, "releasing launch")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *launchApi) notices(ctx echo.Context) error {
	rt, err := api.player.Runtime(ctx.Request().Context(), ctx.Param("launch"))
	if err != nil {
		return errors.Wrap(err, "getting launch")
	}

	notices := []scorm.Notice{}
	if api.inbox != nil {
		notices = api.inbox.Drain(rt.Launch().SessionID)
	}
	return ctx.JSON(http.StatusOK, NoticesResponse{Notices: notices})
}

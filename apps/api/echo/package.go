package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
)

type packageApi struct {
	svc          *scorm.Service
	player       *player.Player
	interactions *scorm.InteractionLog
	deps         *Deps
}

func registerPackageAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := packageApi{
		svc:          deps.Scorm,
		player:       deps.Player,
		interactions: deps.Interactions,
		deps:         deps,
	}

	pg := g.Group("/packages", jwt)
	pg.POST("", api.create, adminMiddleware())

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/manifest", api.resolveManifest, adminMiddleware())
	dg.POST("/launches", api.launch, noStoreMiddleware)
	dg.GET("/session", api.session)
	dg.GET("/sessions", api.querySessions, adminMiddleware())
	dg.GET("/report", api.report, adminMiddleware())

	sg := g.Group("/sessions", jwt, adminMiddleware())
	sg.GET("/:id/interactions", api.queryInteractions)
}

// Handlers

func (api *packageApi) create(ctx echo.Context) error {
	var data scorm.NewPackage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPackage")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	pkg, err := api.svc.CreatePackage(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating package")
	}

	// an unresolvable manifest leaves the package registered but not launchable
	resolved, err := api.svc.ResolveManifest(ctx.Request().Context(), pkg.ID)
	if err != nil {
		ctx.Logger().Warn(fmt.Sprintf("resolving manifest of package %s: %v", pkg.ID, err))
		return ctx.JSON(http.StatusCreated, pkg)
	}
	return ctx.JSON(http.StatusCreated, resolved)
}

func (api *packageApi) retrieve(ctx echo.Context) error {
	pkg, err := api.svc.GetPackage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting package")
	}
	return ctx.JSON(http.StatusOK, pkg)
}

func (api *packageApi) resolveManifest(ctx echo.Context) error {
	pkg, err := api.svc.ResolveManifest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resolving manifest")
	}
	return ctx.JSON(http.StatusOK, pkg)
}

func (api *packageApi) launch(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	l, err := api.player.Launch(ctx.Request().Context(), ctx.Param("id"), claims.Learner())
	if err != nil {
		return errors.Wrap(err, "launching package")
	}
	return ctx.JSON(http.StatusCreated, LaunchResponse{Launch: l, LaunchURL: launchURL(l.ID)})
}

// session returns the latest session of the caller. Admins may ask for any learner's.
func (api *packageApi) session(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	userID := claims.Subject
	if uid := core.CleanString(ctx.QueryParam(userIDParam)); uid != "" && uid != userID {
		if !claims.IsAdmin {
			return errHttpForbidden
		}
		userID = uid
	}

	pkg, err := api.svc.GetPackage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting package")
	}
	sess, err := api.svc.LatestSession(ctx.Request().Context(), pkg.ID, userID)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *packageApi) querySessions(ctx echo.Context) error {
	pkg, err := api.svc.GetPackage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting package")
	}

	sessions, err := api.svc.ListSessions(ctx.Request().Context(), bindSessionFilter(ctx, pkg.ID))
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []scorm.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *packageApi) report(ctx echo.Context) error {
	report, err := api.svc.Aggregate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "aggregating sessions")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *packageApi) queryInteractions(ctx echo.Context) error {
	sess, err := api.svc.SessionByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session")
	}

	interactions, err := api.interactions.MostRecent(ctx.Request().Context(), sess.ID, queryLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying interactions")
	}
	if interactions == nil {
		interactions = []scorm.Interaction{}
	}
	return ctx.JSON(http.StatusOK, interactions)
}

package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"voicecard/internal/app"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	engine *gin.Engine
	app    *app.App
}

func NewServer(a *app.App) (*Server, error) {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := newEngine(a, NewAPI(a))
	if err != nil {
		return nil, err
	}
	return &Server{engine: engine, app: a}, nil
}

func newEngine(a *app.App, api *API) (*gin.Engine, error) {
	tmpl, err := template.New("views").Funcs(viewFuncs).ParseFS(viewFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(a.Logger.With("component", "http")))
	engine.Use(CORS(a.Config.AllowedOrigins))
	engine.SetHTMLTemplate(tmpl)

	registerRoutes(engine, api, a.Config.MaxUploadBytes)

	if a.Local != nil {
		engine.Static("/uploads", a.Local.Root())
	}
	engine.Static("/static", filepath.Join(a.Config.DataDir, "static"))

	return engine, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", s.app.Config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.app.Logger.Info("server listening", "addr", addr, "base_url", s.app.Config.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.app.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

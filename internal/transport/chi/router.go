package chi

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/metrics"
	"github.com/kailas-cloud/imagedex/internal/repository/imagefs"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	APIKeys      []string
	DataDir      string
	PublicPrefix string
}

// NewRouter builds the full HTTP handler: middleware stack, API routes and
// read-only static serving of the data directory under the public prefix.
func NewRouter(server ServerInterface, cfg RouterConfig, log *zap.Logger) http.Handler {
	prefix := "/" + strings.Trim(cfg.PublicPrefix, "/")

	r := chi.NewRouter()
	r.Use(JSONRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(BearerAuthMiddleware(cfg.APIKeys, prefix))
	r.Use(metrics.Middleware())

	HandlerWithOptions(server, ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: ParamErrorHandler,
	})

	r.Method(http.MethodGet, prefix+"/*", http.StripPrefix(prefix, staticImages(cfg.DataDir)))
	r.Method(http.MethodHead, prefix+"/*", http.StripPrefix(prefix, staticImages(cfg.DataDir)))
	return r
}

// staticImages serves eligible image files only: no directory listings and
// no soft-deleted tombstones.
func staticImages(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || !imagefs.IsEligible(name) {
			writeError(w, http.StatusNotFound, "Not found", "image not found")
			return
		}
		files.ServeHTTP(w, r)
	})
}

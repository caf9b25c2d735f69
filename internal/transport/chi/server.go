package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/gallery"
	"github.com/kailas-cloud/imagedex/internal/logger"
	galleryuc "github.com/kailas-cloud/imagedex/internal/usecase/gallery"
	healthuc "github.com/kailas-cloud/imagedex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/imagedex/internal/usecase/search"
)

// uploadField is the multipart field carrying image files.
const uploadField = "images"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// DebugSettings is the non-secret configuration reported by /debugIndex.
type DebugSettings struct {
	IndexName    string `json:"indexName"`
	Cloud        string `json:"cloud"`
	Region       string `json:"region"`
	APIKeyLength int    `json:"apiKeyLength"`
}

// Server implements ServerInterface.
type Server struct {
	runs          Runs
	gallery       Gallery
	search        Searcher
	index         IndexManager
	health        HealthChecker
	debug         DebugSettings
	maxUpload     int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server. maxUpload bounds multipart bodies in bytes.
func NewServer(
	runs Runs,
	gallery Gallery,
	search Searcher,
	index IndexManager,
	health HealthChecker,
	debug DebugSettings,
	maxUpload int64,
	logger *zap.Logger,
) *Server {
	s := &Server{
		runs:      runs,
		gallery:   gallery,
		search:    search,
		index:     index,
		health:    health,
		debug:     debug,
		maxUpload: maxUpload,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNoFiles, http.StatusBadRequest),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest),
		sentinelHandler(domain.ErrInvalidImage, http.StatusBadRequest),
		sentinelHandler(domain.ErrImageNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrRunNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
	}
	return s
}

// IndexImages handles GET /indexImages.
func (s *Server) IndexImages(w http.ResponseWriter, r *http.Request) {
	rn, err := s.runs.Start(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err, "Error indexing images")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Indexing started in background",
		"status":  "processing",
		"runId":   rn.ID,
	})
}

// GetImages handles GET /getImages.
func (s *Server) GetImages(w http.ResponseWriter, r *http.Request, params GetImagesParams) {
	page, pageSize := s.gallery.PageParams(deref(params.Page), deref(params.PageSize))

	items, err := s.gallery.List(r.Context(), page, pageSize)
	if err != nil {
		s.handleDomainError(w, r, err, "Error fetching images")
		return
	}
	if items == nil {
		items = []gallery.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// SearchImages handles GET /search.
func (s *Server) SearchImages(w http.ResponseWriter, r *http.Request, params SearchImagesParams) {
	if params.ImagePath == "" {
		writeError(w, http.StatusBadRequest, "Error fetching images", "imagePath is required")
		return
	}

	hits, err := s.search.Search(r.Context(), params.ImagePath)
	if err != nil {
		s.handleDomainError(w, r, err, "Error fetching images")
		return
	}
	if hits == nil {
		hits = []searchuc.Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

// UploadImages handles POST /uploadImages.
func (s *Server) UploadImages(w http.ResponseWriter, r *http.Request, params UploadImagesParams) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	files, err := uploadedFiles(r)
	if err != nil {
		s.handleDomainError(w, r, err, "Error uploading images")
		return
	}

	uploads := make([]galleryuc.Upload, len(files))
	for i, fh := range files {
		uploads[i] = galleryuc.Upload{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) {
				f, err := fh.Open()
				if err != nil {
					return nil, err
				}
				return f, nil
			},
		}
	}

	_, pageSize := s.gallery.PageParams(1, deref(params.PageSize))
	res, err := s.gallery.Upload(r.Context(), uploads, pageSize)
	if err != nil {
		msg := "Error uploading images"
		if res.Saved == len(uploads) {
			msg = "Error upserting images"
		}
		s.handleDomainError(w, r, err, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"message":          fmt.Sprintf("%d files uploaded successfully", res.Saved),
		"pageOfFirstImage": res.PageOfFirstImage,
	})
}

// uploadedFiles returns the files of the multipart images field. A request
// that is not multipart or carries no files is ErrNoFiles.
func uploadedFiles(r *http.Request) ([]*multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, domain.ErrNoFiles
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidRequest, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}
	return files, nil
}

// DeleteImage handles DELETE /deleteImage.
func (s *Server) DeleteImage(w http.ResponseWriter, r *http.Request, params DeleteImageParams) {
	if params.ImagePath == "" {
		writeError(w, http.StatusBadRequest, "Error deleting image", "imagePath is required")
		return
	}

	if err := s.gallery.Delete(r.Context(), params.ImagePath); err != nil {
		s.handleDomainError(w, r, err, "Error deleting image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted"})
}

// DebugIndex handles GET /debugIndex.
func (s *Server) DebugIndex(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	log.Info("Debug index",
		zap.String("index", s.debug.IndexName),
		zap.String("cloud", s.debug.Cloud),
		zap.String("region", s.debug.Region),
		zap.Int("api_key_length", s.debug.APIKeyLength),
	)

	created, err := s.index.Ensure(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err, "Failed to create index")
		return
	}

	resp := map[string]any{"settings": s.debug}
	if created {
		resp["message"] = "Index creation started"
		resp["details"] = "Check server logs for progress"
	} else {
		resp["message"] = "Index already exists"
	}
	if st, err := s.index.Describe(r.Context()); err == nil {
		resp["index"] = st
	} else {
		log.Warn("Describe index failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.List())
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request, id string) {
	rn, err := s.runs.Status(id)
	if err != nil {
		s.handleDomainError(w, r, err, "Error fetching run")
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

// CancelRun handles DELETE /runs/{id}.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request, id string) {
	rn, err := s.runs.Cancel(id)
	if err != nil {
		s.handleDomainError(w, r, err, "Error cancelling run")
		return
	}
	writeJSON(w, http.StatusAccepted, rn)
}

// HealthCheck handles GET /health. Only an unreachable store is 503; a
// degraded instance still serves listings and static images.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ParamErrorHandler answers parameter binding failures with a 400 envelope.
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNoFiles,
		domain.ErrInvalidRequest,
		domain.ErrInvalidImage,
		domain.ErrImageNotFound,
		domain.ErrRunNotFound,
		domain.ErrIndexNotFound,
		domain.ErrListingFailed,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrVectorStoreError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, msg, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("request failed", zap.String("error_message", msg), zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.String("error_message", msg), zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg, safeDomainMessage(err))
}

package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// GetImagesParams are the query parameters of GET /getImages.
type GetImagesParams struct {
	Page     *int `form:"page,omitempty" json:"page,omitempty"`
	PageSize *int `form:"pageSize,omitempty" json:"pageSize,omitempty"`
}

// SearchImagesParams are the query parameters of GET /search.
type SearchImagesParams struct {
	ImagePath string `form:"imagePath" json:"imagePath"`
}

// UploadImagesParams are the query parameters of POST /uploadImages.
type UploadImagesParams struct {
	PageSize *int `form:"pageSize,omitempty" json:"pageSize,omitempty"`
}

// DeleteImageParams are the query parameters of DELETE /deleteImage.
type DeleteImageParams struct {
	ImagePath string `form:"imagePath" json:"imagePath"`
}

// ServerInterface is the set of API handlers.
type ServerInterface interface {
	// (GET /indexImages)
	IndexImages(w http.ResponseWriter, r *http.Request)
	// (GET /getImages)
	GetImages(w http.ResponseWriter, r *http.Request, params GetImagesParams)
	// (GET /search)
	SearchImages(w http.ResponseWriter, r *http.Request, params SearchImagesParams)
	// (POST /uploadImages)
	UploadImages(w http.ResponseWriter, r *http.Request, params UploadImagesParams)
	// (DELETE /deleteImage)
	DeleteImage(w http.ResponseWriter, r *http.Request, params DeleteImageParams)
	// (GET /debugIndex)
	DebugIndex(w http.ResponseWriter, r *http.Request)
	// (GET /runs)
	ListRuns(w http.ResponseWriter, r *http.Request)
	// (GET /runs/{id})
	GetRun(w http.ResponseWriter, r *http.Request, id string)
	// (DELETE /runs/{id})
	CancelRun(w http.ResponseWriter, r *http.Request, id string)
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError reports a query or path parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ServerInterfaceWrapper binds request parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// IndexImages operation middleware.
func (siw *ServerInterfaceWrapper) IndexImages(w http.ResponseWriter, r *http.Request) {
	siw.Handler.IndexImages(w, r)
}

// GetImages operation middleware.
func (siw *ServerInterfaceWrapper) GetImages(w http.ResponseWriter, r *http.Request) {
	var params GetImagesParams
	q := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "page", q, &params.Page); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "page", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "pageSize", q, &params.PageSize); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "pageSize", Err: err})
		return
	}

	siw.Handler.GetImages(w, r, params)
}

// SearchImages operation middleware.
func (siw *ServerInterfaceWrapper) SearchImages(w http.ResponseWriter, r *http.Request) {
	var params SearchImagesParams

	if err := runtime.BindQueryParameter("form", true, true, "imagePath", r.URL.Query(), &params.ImagePath); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "imagePath", Err: err})
		return
	}

	siw.Handler.SearchImages(w, r, params)
}

// UploadImages operation middleware.
func (siw *ServerInterfaceWrapper) UploadImages(w http.ResponseWriter, r *http.Request) {
	var params UploadImagesParams

	if err := runtime.BindQueryParameter("form", true, false, "pageSize", r.URL.Query(), &params.PageSize); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "pageSize", Err: err})
		return
	}

	siw.Handler.UploadImages(w, r, params)
}

// DeleteImage operation middleware.
func (siw *ServerInterfaceWrapper) DeleteImage(w http.ResponseWriter, r *http.Request) {
	var params DeleteImageParams

	if err := runtime.BindQueryParameter("form", true, true, "imagePath", r.URL.Query(), &params.ImagePath); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "imagePath", Err: err})
		return
	}

	siw.Handler.DeleteImage(w, r, params)
}

// DebugIndex operation middleware.
func (siw *ServerInterfaceWrapper) DebugIndex(w http.ResponseWriter, r *http.Request) {
	siw.Handler.DebugIndex(w, r)
}

// ListRuns operation middleware.
func (siw *ServerInterfaceWrapper) ListRuns(w http.ResponseWriter, r *http.Request) {
	siw.Handler.ListRuns(w, r)
}

// GetRun operation middleware.
func (siw *ServerInterfaceWrapper) GetRun(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetRun(w, r, chi.URLParam(r, "id"))
}

// CancelRun operation middleware.
func (siw *ServerInterfaceWrapper) CancelRun(w http.ResponseWriter, r *http.Request) {
	siw.Handler.CancelRun(w, r, chi.URLParam(r, "id"))
}

// HealthCheck operation middleware.
func (siw *ServerInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.Handler.HealthCheck(w, r)
}

// Metrics operation middleware.
func (siw *ServerInterfaceWrapper) Metrics(w http.ResponseWriter, r *http.Request) {
	siw.Handler.Metrics(w, r)
}

// ChiServerOptions configure HandlerWithOptions.
type ChiServerOptions struct {
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions registers the API routes on the base router.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Get("/indexImages", wrapper.IndexImages)
	r.Get("/getImages", wrapper.GetImages)
	r.Get("/search", wrapper.SearchImages)
	r.Post("/uploadImages", wrapper.UploadImages)
	r.Delete("/deleteImage", wrapper.DeleteImage)
	r.Get("/debugIndex", wrapper.DebugIndex)
	r.Get("/runs", wrapper.ListRuns)
	r.Get("/runs/{id}", wrapper.GetRun)
	r.Delete("/runs/{id}", wrapper.CancelRun)
	r.Get("/health", wrapper.HealthCheck)
	r.Get("/metrics", wrapper.Metrics)

	return r
}

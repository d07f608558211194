package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mixq/internal/cpuinfo"
	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/internal/version"
	"github.com/samcharles93/mixq/internal/webui"
	"github.com/samcharles93/mixq/pkg/qconv"
)

type Server struct {
	store   *LayerStore
	service *ConvolutionService
	log     logger.Logger
	clock   func() time.Time
	cpu     cpuinfo.Report
	page    http.Handler
}

func NewServer(store *LayerStore, log logger.Logger) *Server {
	if store == nil {
		store = NewLayerStore("")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:   store,
		service: NewConvolutionService(store),
		log:     log,
		clock:   time.Now,
		cpu:     cpuinfo.Detect(),
		page:    webui.Handler(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/layers", s.handleListLayers)
	e.GET("/v1/layers/:name", s.handleGetLayer)
	e.POST("/v1/convolve", s.handleConvolve)

	e.GET("/", s.handlePage)
	e.GET("/app.js", s.handlePage)
}

func (s *Server) handlePage(c *echo.Context) error {
	s.page.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.String(),
		Layers:  s.store.Len(),
		CPU:     s.cpu,
	})
}

func (s *Server) handleListLayers(c *echo.Context) error {
	layers := s.store.List()
	out := LayerList{Object: "list", Data: make([]LayerObject, 0, len(layers))}
	for _, l := range layers {
		out.Data = append(out.Data, layerObject(l))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetLayer(c *echo.Context) error {
	l, err := s.store.Get(c.Param("name"))
	if err != nil {
		return s.writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, layerObject(l))
}

func (s *Server) handleConvolve(c *echo.Context) error {
	req, err := decodeJSON[ConvolveRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Input) == 0 {
		return writeBadRequest(c, "input is required")
	}

	start := s.clock()
	res, err := s.service.Convolve(c.Request().Context(), req)
	if err != nil {
		return s.writeConvolveError(c, req.Layer, err)
	}
	s.log.Debug("convolution done",
		"layer", res.Layer,
		"variant", res.Variant.String(),
		"raw", req.Raw,
		"duration", s.clock().Sub(start),
	)

	return c.JSON(http.StatusOK, ConvolveResponse{
		ID:           newConvolutionID(),
		Object:       "convolution",
		CreatedAt:    start.Unix(),
		Layer:        res.Layer,
		Variant:      res.Variant.String(),
		Status:       qconv.StatusSuccess.String(),
		OutDim:       res.OutDim,
		OutCh:        res.OutCh,
		Output:       res.Output,
		Accumulators: res.Accumulators,
	})
}

func (s *Server) writeStoreError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrLayerNotFound):
		return writeNotFound(c, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return writeBadRequest(c, err.Error())
	}
	s.log.Error("layer load failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}

func (s *Server) writeConvolveError(c *echo.Context, layer string, err error) error {
	if errors.Is(err, ErrLayerNotFound) || errors.Is(err, ErrInvalidRequest) {
		return s.writeStoreError(c, err)
	}
	status := qconv.StatusOf(err)
	if errors.Is(err, qconv.ErrSizeMismatch) {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "input", status.String())
	}
	if errors.Is(err, qconv.ErrUnsupportedBits) || errors.Is(err, qconv.ErrMissingQuantization) {
		s.log.Warn("stored layer rejected", "layer", layer, "error", err)
		return writeError(c, http.StatusUnprocessableEntity, "invalid_layer_error", err.Error(), "layer", status.String())
	}
	s.log.Error("convolution failed", "layer", layer, "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}

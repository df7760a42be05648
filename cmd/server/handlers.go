package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketdata/internal/coordinator"
	"marketdata/internal/provider"
	"marketdata/internal/registry"
)

const (
	maxSymbols = 1000
	dateLayout = "2006-01-02"

	// statusClientClosed is the nginx convention for a request the client gave up on.
	statusClientClosed = 499
)

type fetcher interface {
	Fetch(ctx context.Context, cat provider.Category, req provider.Request) (*provider.Result, error)
}

type chains interface {
	Chain(c provider.Category) []registry.ChainEntry
}

type handler struct {
	fetch   fetcher
	chains  chains
	timeout time.Duration
	log     logrus.FieldLogger
}

type errorResponse struct {
	Error    string                `json:"error"`
	Attempts []coordinator.Attempt `json:"attempts,omitempty"`
}

type dataBody struct {
	Symbols  []string `json:"symbols"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Interval string   `json:"interval"`
}

func newRouter(h *handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsHeaders())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	v1 := r.Group("/api/v1")
	v1.GET("/providers", h.providers)
	v1.GET("/data/:category", h.getData)
	v1.POST("/data/:category", h.postData)
	return r
}

// providers lists the chain of every category with the live enabled flag.
func (h *handler) providers(c *gin.Context) {
	out := make(map[provider.Category][]registry.ChainEntry, len(provider.Categories))
	for _, cat := range provider.Categories {
		out[cat] = h.chains.Chain(cat)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getData(c *gin.Context) {
	q := c.Query("symbols")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing symbols query param"})
		return
	}
	h.serve(c, dataBody{
		Symbols:  splitCSV(q),
		Start:    c.Query("start"),
		End:      c.Query("end"),
		Interval: c.Query("interval"),
	})
}

func (h *handler) postData(c *gin.Context) {
	var b dataBody
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	h.serve(c, b)
}

func (h *handler) serve(c *gin.Context, b dataBody) {
	cat, err := provider.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if len(b.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "symbols cannot be empty"})
		return
	}
	if len(b.Symbols) > maxSymbols {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "too many symbols (max 1000)"})
		return
	}
	req := provider.Request{Symbols: b.Symbols, Interval: b.Interval}
	if req.Start, err = parseDate(b.Start); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid start: " + err.Error()})
		return
	}
	if req.End, err = parseDate(b.End); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid end: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.fetch.Fetch(ctx, cat, req)
	if err != nil {
		status, body := errorStatus(err)
		h.log.WithFields(logrus.Fields{"category": cat, "status": status}).WithError(err).Info("data request failed")
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

func errorStatus(err error) (int, errorResponse) {
	body := errorResponse{Error: err.Error()}
	var failed *coordinator.AllProvidersFailedError
	switch {
	case errors.Is(err, provider.ErrInvalidRequest):
		return http.StatusBadRequest, body
	case errors.Is(err, coordinator.ErrNoProviderAvailable):
		return http.StatusServiceUnavailable, body
	case errors.As(err, &failed):
		body.Attempts = failed.Attempts
		return http.StatusBadGateway, body
	case errors.Is(err, coordinator.ErrCancelled):
		return statusClientClosed, body
	}
	return http.StatusInternalServerError, body
}

func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

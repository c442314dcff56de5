package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/Tutortoise/ovaquick/analysis"
	"github.com/Tutortoise/ovaquick/config"
	"github.com/Tutortoise/ovaquick/inference"
	"github.com/Tutortoise/ovaquick/metric"
	"github.com/Tutortoise/ovaquick/models"
	"github.com/rs/zerolog"
)

const readyTimeout = 10 * time.Second

var errEmptyImage = errors.New("request carries no image")

type connector interface {
	Connect(ctx context.Context) error
}

type AppState struct {
	Config    *config.Config
	Pages     map[string]*template.Template
	Sessions  *SessionPool
	Predictor analysis.Predictor
	// Cache is nil when the result cache is disabled.
	Cache *inference.CachingPredictor
	Space connector
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type pageData struct {
	Page       string
	Title      string
	Nav        []navItem
	Features   []feature
	Steps      []step
	Conditions []condition

	View             analysis.View
	Notice           string
	MsgUnrecognized  string
	MsgNoPredictions string
}

func newPageData(page, title string) *pageData {
	return &pageData{
		Page:             page,
		Title:            title,
		Nav:              navItems,
		Features:         features,
		Steps:            steps,
		Conditions:       conditions,
		MsgUnrecognized:  MsgUnrecognized,
		MsgNoPredictions: MsgNoPredictions,
	}
}

func (s *AppState) render(w http.ResponseWriter, r *http.Request, status int, data *pageData) {
	tpl, ok := s.Pages[data.Page]
	if !ok {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("page", data.Page).Msg("template execution failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func handleStaticPage(state *AppState, page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state.render(w, r, http.StatusOK, newPageData(page, title))
	}
}

func handleAnalysisPage(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := state.Sessions.Acquire(w, r)
		if err != nil {
			sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
			return
		}
		state.renderAnalysis(w, r, http.StatusOK, ctrl, "")
	}
}

func (s *AppState) renderAnalysis(w http.ResponseWriter, r *http.Request, status int, ctrl *analysis.Controller, notice string) {
	data := newPageData("analysis", "Analysis")
	data.View = ctrl.Snapshot()
	data.Notice = notice
	s.render(w, r, status, data)
}

// handleStage replaces the selected file. Posting without a file clears the selection.
func handleStage(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := state.Sessions.Acquire(w, r)
		if err != nil {
			sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
			return
		}

		img, err := readFormImage(w, r, state.Config.MaxUploadBytes)
		if err != nil && !errors.Is(err, errEmptyImage) {
			state.renderUploadError(w, r, ctrl, err)
			return
		}
		ctrl.Stage(img)
		http.Redirect(w, r, "/analysis", http.StatusSeeOther)
	}
}

func handlePredict(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := state.Sessions.Acquire(w, r)
		if err != nil {
			sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
			return
		}

		img, err := readFormImage(w, r, state.Config.MaxUploadBytes)
		switch {
		case err == nil:
			ctrl.Stage(img)
		case !errors.Is(err, errEmptyImage):
			state.renderUploadError(w, r, ctrl, err)
			return
		}

		// Leaving the page does not cancel the remote call; PREDICT_TIMEOUT_MS still bounds it.
		out, err := ctrl.Submit(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, analysis.ErrBusy):
			state.renderAnalysis(w, r, http.StatusConflict, ctrl, MsgBusy)
		case err != nil:
			state.renderAnalysis(w, r, http.StatusBadGateway, ctrl, "")
		case !out.Submitted:
			state.renderAnalysis(w, r, http.StatusOK, ctrl, MsgNoFile)
		default:
			http.Redirect(w, r, "/analysis", http.StatusSeeOther)
		}
	}
}

func handleReset(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := state.Sessions.Acquire(w, r)
		if err != nil {
			sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
			return
		}
		ctrl.Reset()
		http.Redirect(w, r, "/analysis", http.StatusSeeOther)
	}
}

func (s *AppState) renderUploadError(w http.ResponseWriter, r *http.Request, ctrl *analysis.Controller, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.renderAnalysis(w, r, http.StatusRequestEntityTooLarge, ctrl, MsgUploadTooLarge)
		return
	}
	zerolog.Ctx(r.Context()).Warn().Err(err).Msg("unreadable upload")
	s.renderAnalysis(w, r, http.StatusBadRequest, ctrl, MsgNoFile)
}

// handleAPIPredict is the stateless JSON counterpart of the analysis page.
func handleAPIPredict(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := readAPIImage(w, r, state.Config.MaxUploadBytes)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				sendErrorResponse(w, "invalid_request", MsgUploadTooLarge, http.StatusRequestEntityTooLarge)
				return
			}
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		res, err := state.Predictor.Predict(r.Context(), img)
		if err != nil {
			code, status := apiError(err)
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("code", code).Msg("api prediction failed")
			sendErrorResponseWithDetails(w, code, MsgPredictionFailed, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func apiError(err error) (string, int) {
	switch inference.KindOf(err) {
	case inference.KindConnection, inference.KindRemoteCall:
		return inference.KindOf(err).String(), http.StatusBadGateway
	default:
		return "processing_error", http.StatusInternalServerError
	}
}

func handleAPIAnalysis(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := state.Sessions.Acquire(w, r)
		if err != nil {
			sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ctrl.Snapshot())
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *AppState) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.Space.Connect(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("remote space not ready")
		sendErrorResponseWithDetails(w, "not_ready", "remote space unavailable", err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"sessions": s.Sessions.GetMetrics(),
		"counters": metric.Snapshot(),
	}
	if s.Cache != nil {
		stats := s.Cache.Stats()
		metric.Gauge(metric.ResultCacheEntries, float64(stats.Entries), nil)
		response["result_cache"] = stats
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// readFormImage reads the "image" file of a multipart form. A form without a file returns
// errEmptyImage.
func readFormImage(w http.ResponseWriter, r *http.Request, maxBytes int64) (models.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return models.Image{}, errEmptyImage
		}
		return models.Image{}, err
	}
	return formFile(r, "image")
}

func formFile(r *http.Request, fields ...string) (models.Image, error) {
	for _, field := range fields {
		file, hdr, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return models.Image{}, err
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return models.Image{}, err
		}
		if len(data) == 0 {
			return models.Image{}, errEmptyImage
		}
		return models.Image{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
	return models.Image{}, errEmptyImage
}

// readAPIImage accepts a JSON body with a base64 image, a multipart form with an "image" or
// "file" field, or the raw image bytes.
func readAPIImage(w http.ResponseWriter, r *http.Request, maxBytes int64) (models.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return handleJSONRequest(r)
	case "multipart/form-data":
		return handleMultipartRequest(r, maxBytes)
	default:
		return handleRawRequest(r, mediaType)
	}
}

func handleJSONRequest(r *http.Request) (models.Image, error) {
	var req struct {
		Image       string `json:"image"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return models.Image{}, fmt.Errorf("decode json body: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return models.Image{}, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return models.Image{}, errEmptyImage
	}
	return models.Image{Filename: req.Filename, ContentType: req.ContentType, Data: data}, nil
}

func handleMultipartRequest(r *http.Request, maxBytes int64) (models.Image, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return models.Image{}, err
	}
	return formFile(r, "image", "file")
}

func handleRawRequest(r *http.Request, mediaType string) (models.Image, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return models.Image{}, err
	}
	if len(data) == 0 {
		return models.Image{}, errEmptyImage
	}
	if mediaType == "application/octet-stream" {
		mediaType = ""
	}
	return models.Image{Filename: "upload", ContentType: mediaType, Data: data}, nil
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	sendErrorResponseWithDetails(w, code, message, "", status)
}

func sendErrorResponseWithDetails(w http.ResponseWriter, code, message, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

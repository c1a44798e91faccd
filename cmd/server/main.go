package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Snoopiam/mqt/internal/compose"
	"github.com/Snoopiam/mqt/internal/config"
	"github.com/Snoopiam/mqt/internal/extract"
	"github.com/Snoopiam/mqt/internal/httpclient"
	"github.com/Snoopiam/mqt/internal/imagecodec"
	"github.com/Snoopiam/mqt/internal/pipeline"
	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/vision"
)

type server struct {
	cfg       config.Config
	logger    *slog.Logger
	styles    *style.Store
	orch      *pipeline.Orchestrator
	comp      *pipeline.Comparator
	extractor *extract.Extractor
}

type apiError struct {
	Error string `json:"error"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	vc := vision.New(vision.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		Logger:     logger,
		RPS:        cfg.VisionRPS,
		Burst:      cfg.VisionBurst,
	})

	s := &server{
		cfg:    cfg,
		logger: logger,
		styles: style.NewStore(style.StoreOptions{
			MainPath:    cfg.StyleDataPath,
			StagingPath: cfg.StagingPath,
			Logger:      logger,
		}),
		orch: pipeline.NewOrchestrator(pipeline.Options{
			Vision:                  vc,
			Logger:                  logger,
			DefaultTier:             cfg.ModelTier,
			AnalysisModelOverride:   cfg.AnalysisModelOverride,
			GenerationModelOverride: cfg.GenerationModelOverride,
		}),
		comp: pipeline.NewComparator(pipeline.ComparatorOptions{
			Vision:                vc,
			Logger:                logger,
			AnalysisModelOverride: cfg.AnalysisModelOverride,
		}),
		extractor: extract.New(extract.Options{
			Vision: vc,
			Model:  cfg.AnalysisModelOverride,
			Logger: logger,
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/styles", s.handleListStyles)
	mux.HandleFunc("GET /api/styles/{id}", s.handleGetStyle)
	mux.HandleFunc("POST /api/styles", s.handleSaveStyle)
	mux.HandleFunc("POST /api/styles/extract", s.handleExtract)
	mux.HandleFunc("POST /api/styles/compare", s.handleCompare)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/download", s.handleDownload)

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           withLogging(withCORS(mux, cfg.AllowedOrigins), logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("server started", "addr", cfg.WebAddr, "tier", cfg.ModelTier, "profile", cfg.AppProfile)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"gemini_configured": s.cfg.GeminiAPIKey != "",
		"model_tier":        s.cfg.ModelTier,
		"app_profile":       s.cfg.AppProfile,
		"free_remaining":    s.orch.Remaining("FREE"),
	})
}

func (s *server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	styles := s.styles.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"styles":     styles,
		"categories": s.styles.Categories(),
		"total":      len(styles),
	})
}

func (s *server) handleGetStyle(w http.ResponseWriter, r *http.Request) {
	d, ok := s.styles.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "style not found"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) handleSaveStyle(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.EnablePresetLearning {
		writeJSON(w, http.StatusNotImplemented, apiError{Error: "preset learning is disabled"})
		return
	}

	var d style.Descriptor
	if err := decodeBody(w, r, s.cfg.MaxImageSize, &d); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	if d.Name == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "name is required"})
		return
	}
	if d.ID == "" {
		d.ID = style.NewID(d.Name)
	}
	d.Normalize()

	id, err := s.styles.Save(&d)
	if err != nil {
		s.logger.Error("style save failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to save style"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

type extractRequest struct {
	Image      string `json:"image"`
	PersonaID  string `json:"persona_id"`
	StrictMode bool   `json:"strict_mode"`
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeBody(w, r, s.cfg.MaxImageSize, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	img, err := decodeImageField(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	d, err := s.extractor.Extract(r.Context(), img, req.PersonaID, req.StrictMode)
	if err != nil {
		s.logger.Error("extraction failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "style extraction failed"})
		return
	}

	if _, err := s.styles.Save(d); err != nil {
		s.logger.Error("extracted style save failed", "err", err, "style_id", d.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "style": d})
}

type compareRequest struct {
	PresetID       string            `json:"preset_id"`
	Preset         *style.Descriptor `json:"preset"`
	GeneratedImage string            `json:"generatedImage"`
	ReferenceImage string            `json:"referenceImage"`
	Tier           string            `json:"tier"`
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeBody(w, r, s.cfg.MaxImageSize, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	d := req.Preset
	if d == nil && req.PresetID != "" {
		if stored, ok := s.styles.Get(req.PresetID); ok {
			d = stored
		}
	}
	if d == nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "preset or preset_id is required"})
		return
	}
	d.Normalize()

	generated, err := decodeImageField(req.GeneratedImage)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "generatedImage: " + err.Error()})
		return
	}

	var reference *vision.ImageInput
	if req.ReferenceImage != "" {
		ref, err := decodeImageField(req.ReferenceImage)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "referenceImage: " + err.Error()})
			return
		}
		reference = &ref
	}

	result := s.comp.Compare(r.Context(), d, generated, reference, req.Tier)
	writeJSON(w, http.StatusOK, result)
}

type refinementRequest struct {
	Attempt       int      `json:"attempt"`
	PreviousScore int      `json:"previousScore"`
	WhatWentWrong []string `json:"whatWentWrong"`
	WhatWorked    []string `json:"whatWorked"`
	AIAnalysis    string   `json:"aiAnalysis"`
	Suggestions   []string `json:"suggestions"`
}

type generateRequest struct {
	Image          string             `json:"image"`
	Prompt         string             `json:"prompt"`
	StyleID        string             `json:"style_id"`
	NegativePrompt string             `json:"negative_prompt"`
	Tier           string             `json:"tier"`
	Refinement     *refinementRequest `json:"refinement"`
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, s.cfg.MaxImageSize, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	img, err := decodeImageField(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	var descriptor *style.Descriptor
	if req.StyleID != "" {
		d, ok := s.styles.Get(req.StyleID)
		if !ok {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "unknown style_id"})
			return
		}
		descriptor = d
	}

	preq := pipeline.Request{
		Image:          img,
		UserPrompt:     req.Prompt,
		Style:          descriptor,
		NegativePrompt: req.NegativePrompt,
		TierOverride:   req.Tier,
	}
	if req.Refinement != nil {
		if !s.cfg.EnableRefinement {
			writeJSON(w, http.StatusNotImplemented, apiError{Error: "refinement is disabled"})
			return
		}
		preq.Refinement = &compose.Refinement{
			Attempt:       req.Refinement.Attempt,
			PreviousScore: req.Refinement.PreviousScore,
			Issues:        req.Refinement.WhatWentWrong,
			Keepers:       req.Refinement.WhatWorked,
			AIAnalysis:    req.Refinement.AIAnalysis,
			Suggestions:   req.Refinement.Suggestions,
		}
	}

	result, err := s.orch.Generate(r.Context(), preq)
	if err != nil {
		status, msg := generationStatus(err)
		s.logger.Error("generation failed", "err", err, "status", status)
		writeJSON(w, status, apiError{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"image":    imagecodec.DataURL(result.Image, result.MimeType),
		"metadata": result.Metadata,
	})
}

type downloadRequest struct {
	Image  string `json:"image"`
	Format string `json:"format"`
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeBody(w, r, s.cfg.MaxImageSize, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	data, _, err := imagecodec.DecodeBase64(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	format := req.Format
	if !s.cfg.EnableMultiFormatDownload || format == "" {
		format = "png"
	}

	out, mimeType, err := imagecodec.ReEncode(data, format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	w.Header().Set("content-type", mimeType)
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=render.%s", format))
	_, _ = w.Write(out)
}

func generationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrRateLimited):
		return http.StatusTooManyRequests, "daily generation limit reached"
	case errors.Is(err, pipeline.ErrAnalysisFailed):
		return http.StatusBadGateway, "floor plan analysis failed"
	case errors.Is(err, pipeline.ErrGenerationFailed):
		return http.StatusBadGateway, "image generation failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*2)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func decodeImageField(value string) (vision.ImageInput, error) {
	if value == "" {
		return vision.ImageInput{}, errors.New("image is required")
	}
	data, mimeType, err := imagecodec.DecodeBase64(value)
	if err != nil {
		return vision.ImageInput{}, err
	}
	if _, err := imagecodec.Validate(data); err != nil {
		return vision.ImageInput{}, err
	}
	return vision.ImageInput{Data: data, MimeType: mimeType}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler, origins []string) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CTAG07/Drosera/pkg/automaton"
	"github.com/CTAG07/Drosera/pkg/modelstore"
)

// Server holds the dependencies for the HTTP API handlers.
type Server struct {
	config *Config
	store  *modelstore.Store
	cache  *lru.Cache[string, *automaton.Automaton]
	logger *slog.Logger
	mux    *http.ServeMux
}

// HealthInfo defines the structure for the health endpoint response.
type HealthInfo struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// GenerateRequest carries the parameters for a generation call. Pointer
// fields distinguish "absent" from an explicit zero, so a request for
// length 0 still returns an empty string instead of the config default.
type GenerateRequest struct {
	Length      *int     `json:"length"`
	Seed        *int64   `json:"seed"`
	Temperature *float64 `json:"temperature"`
	TopK        int      `json:"top_k"`
}

// GenerateResponse is the JSON body returned by the generate endpoint.
type GenerateResponse struct {
	Model  string `json:"model"`
	Length int    `json:"length"`
	Text   string `json:"text"`
}

// NewServer creates a Server and registers its routes. The cache keeps
// recently used automatons in memory so repeated generate calls do not
// rebuild them from SQLite rows every time.
func NewServer(config *Config, store *modelstore.Store, logger *slog.Logger) (*Server, error) {
	cache, err := lru.New[string, *automaton.Automaton](config.Server.ModelCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}

	s := &Server{
		config: config,
		store:  store,
		cache:  cache,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/models", s.handleListModels)
	s.mux.HandleFunc("/api/models/", s.handleModelByName)
	s.mux.HandleFunc("/api/import", s.handleImport)
	s.mux.HandleFunc("/api/stats", s.handleStats)

	return s, nil
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// getModel returns the named automaton, loading it from the store on a
// cache miss.
func (s *Server) getModel(r *http.Request, name string) (*automaton.Automaton, error) {
	if a, ok := s.cache.Get(name); ok {
		return a, nil
	}
	a, err := s.store.LoadModel(r.Context(), name)
	if err != nil {
		return nil, err
	}
	s.cache.Add(name, a)
	return a, nil
}

// handleHealth reports liveness and build information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, HealthInfo{
		Status:    "ok",
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleListModels lists every stored model.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	models, err := s.store.GetModelInfos(r.Context())
	if err != nil {
		s.logger.Error("Failed to get model infos", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, models)
}

// handleModelByName routes actions for a specific model: info, delete,
// train, generate, export.
func (s *Server) handleModelByName(w http.ResponseWriter, r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		switch r.Method {
		case http.MethodGet:
			info, err := s.store.GetModelInfo(r.Context(), modelName)
			if err != nil {
				s.respondStoreError(w, modelName, err)
				return
			}
			respondWithJSON(w, http.StatusOK, info)
		case http.MethodDelete:
			info, err := s.store.GetModelInfo(r.Context(), modelName)
			if err != nil {
				s.respondStoreError(w, modelName, err)
				return
			}
			if err = s.store.RemoveModel(r.Context(), info); err != nil {
				s.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			s.cache.Remove(modelName)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "train":
		s.handleTrain(w, r, modelName)
	case "generate":
		s.handleGenerate(w, r, modelName)
	case "export":
		s.handleExport(w, r, modelName)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleTrain builds a model from the raw text in the request body and
// stores it under the path name, replacing any previous version.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request, modelName string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	order := s.config.Generate.Order
	if raw := r.URL.Query().Get("order"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid order parameter")
			return
		}
		order = parsed
	}
	ignoreCase := s.config.Generate.IgnoreCase
	if raw := r.URL.Query().Get("ignore_case"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid ignore_case parameter")
			return
		}
		ignoreCase = parsed
	}

	a, err := automaton.Train(r.Body,
		automaton.WithOrder(order),
		automaton.WithIgnoreCase(ignoreCase),
		automaton.WithLogger(s.logger),
	)
	if err != nil {
		if errors.Is(err, automaton.ErrInvalidParameter) || errors.Is(err, automaton.ErrInsufficientData) {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Training failed: %v", err))
			return
		}
		s.logger.Error("Failed to train model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Training failed: %v", err))
		return
	}

	info, err := s.store.SaveModel(r.Context(), modelName, a)
	if err != nil {
		s.logger.Error("Failed to save trained model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save model: %v", err))
		return
	}
	s.cache.Remove(modelName)
	respondWithJSON(w, http.StatusCreated, info)
}

// handleGenerate runs a random walk over the named model.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, modelName string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	a, err := s.getModel(r, modelName)
	if err != nil {
		s.respondStoreError(w, modelName, err)
		return
	}

	length := s.config.Generate.Length
	if req.Length != nil {
		length = *req.Length
	}

	var opts []automaton.WalkerOption
	if req.Seed != nil {
		opts = append(opts, automaton.WithSeed(*req.Seed))
	}
	if req.Temperature != nil {
		opts = append(opts, automaton.WithTemperature(*req.Temperature))
	}
	if req.TopK > 0 {
		opts = append(opts, automaton.WithTopK(req.TopK))
	}

	walker := automaton.NewWalker(a, opts...)
	walker.SetLogger(s.logger)
	text, err := walker.Generate(length)
	if err != nil {
		if errors.Is(err, automaton.ErrInvalidParameter) {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Generation failed: %v", err))
			return
		}
		s.logger.Error("Failed to generate text", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, GenerateResponse{
		Model:  modelName,
		Length: length,
		Text:   text,
	})
}

// handleExport streams the named model as a JSON download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, modelName string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	a, err := s.getModel(r, modelName)
	if err != nil {
		s.respondStoreError(w, modelName, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.model.json\"", modelName))
	if err = a.Export(w); err != nil {
		s.logger.Error("Failed to export model", "name", modelName, "error", err)
	}
}

// handleImport stores a model uploaded as a JSON document. The store
// name comes from the "name" query parameter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	modelName := r.URL.Query().Get("name")
	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	a, err := automaton.Import(r.Body)
	if err != nil {
		if errors.Is(err, automaton.ErrMalformedModel) {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
			return
		}
		s.logger.Error("Failed to import model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Import failed: %v", err))
		return
	}

	info, err := s.store.SaveModel(r.Context(), modelName, a)
	if err != nil {
		s.logger.Error("Failed to save imported model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save model: %v", err))
		return
	}
	s.cache.Remove(modelName)
	respondWithJSON(w, http.StatusCreated, info)
}

// handleStats reports per-model size information from the store.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get store stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// respondStoreError maps a missing row to 404 and everything else to 500.
func (s *Server) respondStoreError(w http.ResponseWriter, modelName string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		respondWithError(w, http.StatusNotFound, "Model not found")
		return
	}
	s.logger.Error("Failed to load model", "name", modelName, "error", err)
	respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}

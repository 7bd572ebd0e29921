package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ctxmgr "github.com/nidhogg/mignon/internal/context"
	"github.com/nidhogg/mignon/internal/robot"
	"go.uber.org/zap"
)

// HealthChecker reports the reasoning backends that are unreachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry *ctxmgr.Registry
	health   HealthChecker
	logger   *zap.Logger
}

// NewHandler creates a new API handler. health may be nil.
func NewHandler(registry *ctxmgr.Registry, health HealthChecker, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, health: health, logger: logger}
}

// Response is the envelope every robot-facing route answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", h.root)
	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Get("/health", h.healthCheck)

		r.Post("/sensors", h.receiveSensors)
		r.Post("/emotion", h.receiveEmotion)
		r.Get("/commands", h.getCommands)
		r.Post("/send_command", h.sendCommand)
		r.Get("/robot_status/{robotID}", h.robotStatus)
		r.Post("/interaction", h.addInteraction)

		r.Get("/memories/{robotID}", h.listMemories)
		r.Post("/memories/{robotID}/consolidate", h.consolidateMemories)
	})

	return r
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Mignon MCP server",
		"status":  "online",
		"version": "1.0.0",
	})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	backends := map[string]string{}
	if h.health != nil {
		for id, err := range h.health.HealthCheck(r.Context()) {
			backends[id] = err.Error()
		}
	}
	status := "ok"
	if len(backends) > 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"robots":   h.registry.Agents(),
		"failures": backends,
	})
}

type sensorMessage struct {
	Type      string          `json:"type"`
	RobotID   string          `json:"robot_id"`
	Timestamp int64           `json:"timestamp"`
	Sensors   json.RawMessage `json:"sensors"`
}

func (h *Handler) receiveSensors(w http.ResponseWriter, r *http.Request) {
	var msg sensorMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.RobotID == "" || len(msg.Sensors) == 0 {
		writeError(w, http.StatusBadRequest, "robot_id and sensors are required")
		return
	}
	var typed robot.SensorPayload
	if err := json.Unmarshal(msg.Sensors, &typed); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid sensors: %v", err))
		return
	}

	h.logger.Info("sensor data received", zap.String("robot", msg.RobotID))
	res := h.registry.Get(r.Context(), msg.RobotID).IngestSensors(r.Context(), msg.Sensors)
	writeJSON(w, http.StatusOK, Response{
		Success: res.Success,
		Message: res.Message,
		Data:    map[string]any{"analysis": res.Analysis, "commands": res.Commands},
	})
}

type emotionMessage struct {
	Type      string `json:"type"`
	RobotID   string `json:"robot_id"`
	Timestamp int64  `json:"timestamp"`
	Emotion   struct {
		Type      robot.EmotionType `json:"type"`
		Intensity int               `json:"intensity"`
		Duration  int               `json:"duration"`
	} `json:"emotion"`
}

func (h *Handler) receiveEmotion(w http.ResponseWriter, r *http.Request) {
	var msg emotionMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.RobotID == "" {
		writeError(w, http.StatusBadRequest, "robot_id is required")
		return
	}
	if !msg.Emotion.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown emotion %q", msg.Emotion.Type))
		return
	}
	if msg.Emotion.Intensity < 0 || msg.Emotion.Intensity > 100 {
		writeError(w, http.StatusBadRequest, "intensity must be within 0-100")
		return
	}

	h.logger.Info("emotional state received", zap.String("robot", msg.RobotID))
	res := h.registry.Get(r.Context(), msg.RobotID).
		IngestEmotion(r.Context(), msg.Emotion.Type, msg.Emotion.Intensity, msg.Emotion.Duration)
	resp := Response{Success: res.Success, Message: res.Message}
	if res.Emotion != nil {
		resp.Data = res.Emotion
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCommands(w http.ResponseWriter, r *http.Request) {
	robotID := r.URL.Query().Get("robot_id")
	if robotID == "" {
		writeError(w, http.StatusBadRequest, "robot_id is required")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Commandes récupérées avec succès",
		Data:    map[string]any{"commands": h.registry.DrainCommands(robotID)},
	})
}

func (h *Handler) sendCommand(w http.ResponseWriter, r *http.Request) {
	robotID := r.URL.Query().Get("robot_id")
	if robotID == "" {
		writeError(w, http.StatusBadRequest, "robot_id is required")
		return
	}
	var cmd robot.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("manual command", zap.String("robot", robotID), zap.String("type", string(cmd.CommandType)))
	if !h.registry.Get(r.Context(), robotID).EnqueueCommand(r.Context(), cmd) {
		writeJSON(w, http.StatusOK, Response{Message: "Erreur lors de l'ajout de la commande"})
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Commande ajoutée avec succès",
		Data:    map[string]any{"command": cmd},
	})
}

func (h *Handler) robotStatus(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	a, ok := h.registry.Lookup(robotID)
	if !ok {
		writeJSON(w, http.StatusOK, unknownRobot(robotID))
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "État du robot récupéré avec succès",
		Data:    a.Status(),
	})
}

type interactionRequest struct {
	RobotID         string                `json:"robot_id"`
	InteractionType robot.InteractionType `json:"interaction_type"`
	Content         string                `json:"content"`
	Metadata        robot.Metadata        `json:"metadata"`
}

func (h *Handler) addInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.InteractionType == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "interaction_type and content are required")
		return
	}
	if _, ok := h.registry.Lookup(req.RobotID); !ok {
		writeJSON(w, http.StatusOK, unknownRobot(req.RobotID))
		return
	}
	if !h.registry.RecordInteraction(r.Context(), req.RobotID, req.InteractionType, req.Content, req.Metadata) {
		writeJSON(w, http.StatusOK, Response{Message: "Erreur lors de l'ajout de l'interaction"})
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Interaction ajoutée avec succès",
		Data:    map[string]any{"interaction_type": req.InteractionType, "content": req.Content},
	})
}

func (h *Handler) listMemories(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	a, ok := h.registry.Lookup(robotID)
	if !ok || a.Memories() == nil {
		writeJSON(w, http.StatusOK, unknownRobot(robotID))
		return
	}

	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 20)
	var (
		mems []robot.Memory
		err  error
	)
	semantic, _ := strconv.ParseBool(q.Get("semantic"))
	text := q.Get("q")
	if text != "" && semantic {
		h.semanticMemories(w, r, a, text, limit)
		return
	}
	if text != "" {
		mems, err = a.Memories().RelevanceSearch(r.Context(), text, limit)
	} else {
		mems, err = a.Memories().Recall(r.Context(), robot.MemoryType(q.Get("type")), limit, queryInt(q.Get("min_importance"), 0))
	}
	if err != nil {
		h.logger.Error("list memories", zap.String("robot", robotID), zap.Error(err))
		writeJSON(w, http.StatusOK, Response{Message: "Erreur lors de la récupération des souvenirs: " + err.Error()})
		return
	}
	if mems == nil {
		mems = []robot.Memory{}
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Souvenirs récupérés avec succès",
		Data:    map[string]any{"memories": mems},
	})
}

// semanticMemories ranks every memory of the robot by embedding similarity
// to text and returns them with their scores.
func (h *Handler) semanticMemories(w http.ResponseWriter, r *http.Request, a *ctxmgr.Agent, text string, limit int) {
	all, err := a.Memories().Recall(r.Context(), "", 0, 0)
	if err != nil {
		h.logger.Error("semantic memories", zap.String("robot", a.ID()), zap.Error(err))
		writeJSON(w, http.StatusOK, Response{Message: "Erreur lors de la récupération des souvenirs: " + err.Error()})
		return
	}
	contents := make([]string, len(all))
	for i, m := range all {
		contents[i] = m.Content
	}
	hits := a.Memories().SemanticSearch(r.Context(), text, contents, limit)

	mems := make([]robot.Memory, 0, len(hits))
	scores := make([]float64, 0, len(hits))
	for _, hit := range hits {
		mems = append(mems, all[hit.Index])
		scores = append(scores, hit.Score)
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Souvenirs récupérés avec succès",
		Data:    map[string]any{"memories": mems, "scores": scores},
	})
}

func (h *Handler) consolidateMemories(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	a, ok := h.registry.Lookup(robotID)
	if !ok || a.Memories() == nil {
		writeJSON(w, http.StatusOK, unknownRobot(robotID))
		return
	}
	removed, err := a.Memories().Consolidate(r.Context())
	if err != nil {
		h.logger.Error("consolidate memories", zap.String("robot", robotID), zap.Error(err))
		writeJSON(w, http.StatusOK, Response{Message: "Erreur lors de la consolidation: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Souvenirs consolidés",
		Data:    map[string]int{"removed": removed},
	})
}

func unknownRobot(robotID string) Response {
	return Response{Message: "Robot inconnu: " + robotID}
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

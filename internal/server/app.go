package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"surveyinsights/backend/internal/analysis"
	"surveyinsights/backend/internal/config"
	"surveyinsights/backend/internal/llm"
	"surveyinsights/backend/internal/observability"
	"surveyinsights/backend/internal/store"
	"surveyinsights/backend/internal/survey"
)

type QuestionCatalog interface {
	ListQuestions(ctx context.Context, configID string) ([]survey.Question, error)
	QuestionsByID(ctx context.Context, ids []string) (map[string]survey.Question, error)
}

type SubmissionWriter interface {
	CreateSubmission(ctx context.Context, in store.NewSubmission) (survey.SubmissionMetadata, error)
	SaveAnswers(ctx context.Context, submissionID string, answers []store.AnswerInput) error
	FinalizeSubmission(ctx context.Context, id string, in store.FinalizeInput) (survey.SubmissionMetadata, error)
}

type ResponseReconciler interface {
	Reconcile(ctx context.Context, scope survey.Scope) ([]survey.AggregatedResponse, error)
}

type ChatAnalyzer interface {
	Analyze(ctx context.Context, conversation []analysis.Message, filters analysis.Filters) (analysis.Stream, error)
}

// Deps are the collaborators behind the HTTP handlers.
type Deps struct {
	Questions   QuestionCatalog
	Submissions SubmissionWriter
	Responses   ResponseReconciler
	Chat        ChatAnalyzer
}

type App struct {
	cfg    config.Config
	deps   Deps
	logger *zerolog.Logger
}

type AdminUser struct {
	Subject string
	Name    string
}

func New(cfg config.Config, deps Deps, logger *zerolog.Logger) *App {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &App{cfg: cfg, deps: deps, logger: logger}
}

// NewFromPool wires the PostgreSQL store, reconciler and chat service.
func NewFromPool(cfg config.Config, pool *pgxpool.Pool, logger *zerolog.Logger) *App {
	st := store.New(pool)
	chat := analysis.NewService(
		ChatSettings(cfg),
		st,
		llm.NewClient(cfg, logger),
		logger,
	)
	return New(cfg, Deps{
		Questions:   st,
		Submissions: st,
		Responses:   survey.NewReconciler(st, logger),
		Chat:        chat,
	}, logger)
}

func ChatSettings(cfg config.Config) analysis.Settings {
	return analysis.Settings{
		APIKey:      strings.TrimSpace(cfg.OpenAIAPIKey),
		Model:       strings.TrimSpace(cfg.OpenAIModel),
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxOutputTokens,
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(a.requestLogger(), gin.Recovery())
	router.Use(cors.New(a.corsConfig()))

	router.GET("/health", a.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(a.cfg.APIPrefix)
	api.GET("/questions", a.listQuestions)
	api.POST("/submissions", a.createSubmission)
	api.PUT("/submissions/:id/answers", a.saveAnswers)
	api.POST("/submissions/:id/finalize", a.finalizeSubmission)
	api.POST("/survey-chat", a.surveyChat)
	api.OPTIONS("/survey-chat", preflight)

	admin := api.Group("/admin")
	admin.Use(a.adminAuthMiddleware())
	admin.GET("/responses", a.listResponses)
	admin.GET("/responses/summary", a.summarizeResponses)
	admin.GET("/responses/export.csv", a.exportResponsesCSV)

	return router
}

func (a *App) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "Accept-Language"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if a.cfg.AllowAllOrigins() {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = a.cfg.CORSAllowOrigins
		cfg.AllowCredentials = true
	}
	return cfg
}

// preflight answers OPTIONS requests that carry no Origin header; the CORS
// middleware handles the rest before routing.
func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "survey-insights-api",
	})
}

// requestLogger emits one access log line per request and records the HTTP
// metrics under the matched route template.
func (a *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)
		c.Set("requestID", requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(started)
		observability.HTTPRequests.WithLabelValues(route, fmt.Sprint(status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(route).Observe(latency.Seconds())

		event := a.logger.Info()
		if status >= http.StatusInternalServerError {
			event = a.logger.Error()
		} else if status >= http.StatusBadRequest {
			event = a.logger.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Int("bytes", c.Writer.Size()).
			Msg("http request")
	}
}

func (a *App) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}
		if !claimHasRole(claims["role"], "admin") {
			writeError(c, http.StatusForbidden, "Admin role required")
			return
		}

		name, _ := claims["name"].(string)
		c.Set("adminUser", AdminUser{Subject: sub, Name: strings.TrimSpace(name)})
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	return claimContains(value, audience)
}

func claimHasRole(value any, role string) bool {
	return claimContains(value, role)
}

func claimContains(value any, want string) bool {
	switch v := value.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == want {
				return true
			}
		}
	}
	return false
}

func adminUserFromContext(c *gin.Context) (AdminUser, bool) {
	raw, ok := c.Get("adminUser")
	if !ok {
		return AdminUser{}, false
	}
	user, ok := raw.(AdminUser)
	return user, ok
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// writeStoreError maps store sentinels to status codes and hides the rest.
func (a *App) writeStoreError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrSubmissionNotFound):
		writeError(c, http.StatusNotFound, "Submission not found")
	case errors.Is(err, store.ErrSubmissionFinalized):
		writeError(c, http.StatusConflict, "Submission already finalized")
	case errors.Is(err, store.ErrQuestionNotFound):
		writeError(c, http.StatusBadRequest, "Unknown question")
	default:
		a.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(fallback)
		writeError(c, http.StatusInternalServerError, fallback)
	}
}

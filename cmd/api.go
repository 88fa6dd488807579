package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/map-review/internal/model"
	"github.com/sells-group/map-review/internal/pipeline"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing.
// Larger file parts spill to disk; the 4 MB document cap is enforced by
// submission validation, not here.
const maxMultipartMemory = 8 << 20

func newRouter(env *assessEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/assessments", func(r chi.Router) {
		r.Post("/", handleCreateAssessment(env))
		r.Get("/{id}", handleGetAssessment(env))
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
		)
	})
}

func handleCreateAssessment(env *assessEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeError(w, http.StatusBadRequest,
				"Invalid form data. Send multipart/form-data with upc, map_price, and policy.")
			return
		}

		sub := pipeline.Submission{
			UPC:      r.FormValue("upc"),
			MAPPrice: parsePrice(r.FormValue("map_price")),
		}

		if file, header, err := r.FormFile("policy"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				writeError(w, http.StatusBadRequest,
					"Invalid form data. Send multipart/form-data with upc, map_price, and policy.")
				return
			}
			sub.FileName = header.Filename
			sub.FileType = header.Header.Get("Content-Type")
			sub.Data = data
		}

		view, err := env.Pipeline.Run(r.Context(), sub)
		if err != nil {
			var verr *pipeline.ValidationError
			if errors.As(err, &verr) {
				writeError(w, http.StatusBadRequest, verr.Message)
				return
			}
			zap.L().Error("create assessment failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to create assessment.",
				"details": err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"assessment_id": view.Assessment.ID,
			"status":        string(view.Assessment.Status),
		})
	}
}

func handleGetAssessment(env *assessEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		view, err := env.Store.GetAssessment(r.Context(), id)
		if err != nil {
			zap.L().Error("fetch assessment failed", zap.String("id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to fetch assessment.",
				"details": err.Error(),
			})
			return
		}
		if view == nil {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}

		writeJSON(w, http.StatusOK, assessmentResponse(view))
	}
}

// parsePrice mirrors form-number coercion: a non-numeric string becomes
// zero, which submission validation then rejects.
func parsePrice(raw string) float64 {
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return price
}

type priceJSON struct {
	Source     model.PriceSource `json:"source"`
	Price      *float64          `json:"price"`
	Currency   string            `json:"currency"`
	ScrapedAt  *string           `json:"scraped_at"`
	Error      *string           `json:"error"`
	ListingURL *string           `json:"listing_url"`
}

type itemJSON struct {
	ID               string      `json:"id"`
	UPC              string      `json:"upc"`
	MAPPrice         string      `json:"map_price"`
	CompetitorPrices []priceJSON `json:"competitor_prices"`
}

type analysisJSON struct {
	AppliesToAllRetailers bool    `json:"applies_to_all_retailers"`
	SegmentDescription    *string `json:"segment_description"`
	ConsequencesSpecific  bool    `json:"consequences_specific"`
	ConsequencesSummary   *string `json:"consequences_summary"`
}

type recommendationJSON struct {
	Action  model.RecommendationAction `json:"action"`
	Reasons []string                   `json:"reasons"`
}

type assessmentJSON struct {
	AssessmentID   string              `json:"assessment_id"`
	Status         string              `json:"status"`
	Mode           string              `json:"mode"`
	Step           string              `json:"step"`
	CreatedAt      string              `json:"created_at"`
	Items          []itemJSON          `json:"items"`
	PolicyAnalysis *analysisJSON       `json:"policy_analysis"`
	Recommendation *recommendationJSON `json:"recommendation"`
}

func assessmentResponse(view *model.AssessmentView) assessmentJSON {
	resp := assessmentJSON{
		AssessmentID: view.Assessment.ID,
		Status:       string(view.Assessment.Status),
		Mode:         string(view.Assessment.Mode),
		Step:         string(view.Assessment.Step),
		CreatedAt:    view.Assessment.CreatedAt.Format(time.RFC3339),
		Items:        make([]itemJSON, 0, len(view.Items)),
	}

	for _, iv := range view.Items {
		item := itemJSON{
			ID:               iv.Item.ID,
			UPC:              iv.Item.UPC,
			MAPPrice:         iv.Item.MAPPrice,
			CompetitorPrices: make([]priceJSON, 0, len(iv.CompetitorPrices)),
		}
		for _, p := range iv.CompetitorPrices {
			pj := priceJSON{
				Source:     p.Source,
				Price:      p.Price,
				Currency:   p.Currency,
				Error:      p.ErrorMessage,
				ListingURL: p.ListingURL,
			}
			if p.ScrapedAt != nil {
				ts := p.ScrapedAt.Format(time.RFC3339)
				pj.ScrapedAt = &ts
			}
			item.CompetitorPrices = append(item.CompetitorPrices, pj)
		}
		resp.Items = append(resp.Items, item)
	}

	if a := view.PolicyAnalysis; a != nil {
		resp.PolicyAnalysis = &analysisJSON{
			AppliesToAllRetailers: a.AppliesToAllRetailers,
			SegmentDescription:    a.SegmentDescription,
			ConsequencesSpecific:  a.ConsequencesSpecific,
			ConsequencesSummary:   a.ConsequencesSummary,
		}
	}
	if rec := view.Recommendation; rec != nil {
		resp.Recommendation = &recommendationJSON{
			Action:  rec.Action,
			Reasons: rec.Reasons,
		}
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"dailyjokes/internal/database"
	"dailyjokes/internal/generator"
	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"
)

// handleListCategories returns the active categories a visitor can pick
// from when subscribing.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.categories.List(r.Context(), true)
	if err != nil {
		logger.Error("list categories failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

type subscribeRequest struct {
	Email        string   `json:"email"`
	Categories   []string `json:"categories"`
	DeliveryTime string   `json:"delivery_time"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "email is not valid")
		return
	}

	deliveryTime := models.DeliveryTime{Hour: 9, Minute: 0}
	if req.DeliveryTime != "" {
		var err error
		deliveryTime, err = models.ParseDeliveryTime(req.DeliveryTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	prefs := models.NewPreferences(req.Categories...)
	if prefs.IsEmpty() {
		prefs = models.DefaultPreferences()
	}

	subscriber, outcome, err := s.subscribers.Subscribe(r.Context(), email, prefs, deliveryTime)
	if err != nil {
		logger.Error("subscribe failed", logger.Err(err), logger.String("email", email))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	status := http.StatusOK
	if outcome == database.SubscribeCreated {
		status = http.StatusCreated
		// Welcome mail is best effort; the subscription already exists.
		if err := s.mailer.SendWelcome(r.Context(), subscriber.Email); err != nil {
			logger.Error("welcome mail failed", logger.Err(err), logger.String("email", email))
		}
	}

	writeJSON(w, status, map[string]any{
		"status":        outcome.String(),
		"email":         subscriber.Email,
		"categories":    subscriber.Preferences.Categories,
		"delivery_time": subscriber.DeliveryTime.String(),
	})
}

type unsubscribeRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := s.subscribers.Unsubscribe(r.Context(), req.Email); err != nil {
		logger.Error("unsubscribe failed", logger.Err(err), logger.String("email", req.Email))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

type voteRequest struct {
	Vote int `json:"vote"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	jokeID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "joke id must be a number")
		return
	}

	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Vote < 1 || req.Vote > 5 {
		writeError(w, http.StatusBadRequest, "vote must be between 1 and 5")
		return
	}

	joke, err := s.jokes.AddVote(r.Context(), jokeID, req.Vote)
	if err != nil {
		if errors.Is(err, database.ErrJokeNotFound) {
			writeError(w, http.StatusNotFound, "joke not found")
			return
		}
		logger.Error("vote failed", logger.Err(err), logger.Int64("joke_id", jokeID))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         joke.ID,
		"rating":     joke.Rating,
		"times_sent": joke.TimesSent,
	})
}

type createJokeRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (s *Server) handleCreateJoke(w http.ResponseWriter, r *http.Request) {
	var req createJokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" || strings.TrimSpace(req.Category) == "" {
		writeError(w, http.StatusBadRequest, "content and category are required")
		return
	}

	joke, err := s.jokes.CreateInCategory(r.Context(), req.Content, req.Category)
	if err != nil {
		if errors.Is(err, database.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		logger.Error("create joke failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, joke)
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	category := &models.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := s.categories.Create(r.Context(), category); err != nil {
		if errors.Is(err, database.ErrDuplicateCategory) {
			writeError(w, http.StatusConflict, "category already exists")
			return
		}
		logger.Error("create category failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	category, err := s.categories.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, database.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		logger.Error("toggle category failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	if err := s.categories.SetActive(r.Context(), name, !category.IsActive); err != nil {
		logger.Error("toggle category failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":      name,
		"is_active": !category.IsActive,
	})
}

type generateRequest struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Category) == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	category, err := s.categories.GetByName(r.Context(), req.Category)
	if err != nil {
		if errors.Is(err, database.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		logger.Error("generate failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	jokes, err := s.generator.Generate(r.Context(), category.Name, category.Description, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, generator.ErrRateLimited):
			writeError(w, http.StatusServiceUnavailable, "generator is rate limited, try again later")
		case errors.Is(err, generator.ErrMissingAPIKey), errors.Is(err, generator.ErrInvalidAPIKey):
			logger.Error("generator credential problem", logger.Err(err))
			writeError(w, http.StatusBadGateway, "generator credentials are not working")
		default:
			logger.Error("generate failed", logger.Err(err), logger.String("category", category.Name))
			writeError(w, http.StatusBadGateway, "generator failed, try again later")
		}
		return
	}

	stored := 0
	for _, content := range jokes {
		if _, err := s.jokes.CreateInCategory(r.Context(), content, category.Name); err != nil {
			logger.Error("failed to store generated joke", logger.Err(err))
			continue
		}
		stored++
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"category":  category.Name,
		"generated": len(jokes),
		"stored":    stored,
	})
}

// handleDispatch runs one synchronous dispatch pass for the current minute,
// the same function the cron trigger invokes.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC()

	if err := s.dispatcher.Dispatch(r.Context(), now.Hour(), now.Minute()); err != nil {
		logger.Error("manual dispatch failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "dispatch failed",
			"detail": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "dispatched",
		"hour":   now.Hour(),
		"minute": now.Minute(),
	})
}

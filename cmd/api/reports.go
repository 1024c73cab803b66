package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/ledger"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

func (s *Server) createExpenseHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CarID       uuid.NullUUID   `json:"car_id"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		IncurredAt  string          `json:"incurred_at"` // YYYY-MM-DD
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	incurred, err := validators.Date("incurred_at", req.IncurredAt)
	if err != nil {
		s.respondError(w, err)
		return
	}

	expense, err := s.ledger.CreateExpense(ledger.ExpenseRequest{
		CarID:       req.CarID,
		Category:    req.Category,
		Description: req.Description,
		Amount:      req.Amount,
		IncurredAt:  incurred,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, expense)
}

func (s *Server) listExpensesHandler(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		s.respondError(w, err)
		return
	}

	expenses, err := s.ledger.ListExpenses(period)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if expenses == nil {
		expenses = []*models.Expense{}
	}
	s.respondJSON(w, http.StatusOK, expenses)
}

func (s *Server) deleteExpenseHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.ledger.DeleteExpense(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) analysisHandler(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		s.respondError(w, err)
		return
	}

	analysis, err := s.ledger.SalesAnalysis(r.Context(), period)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, analysis)
}

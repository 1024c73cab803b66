package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/ledger"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

type installmentRequest struct {
	CarID                   uuid.UUID        `json:"car_id"`
	CustomerName            string           `json:"customer_name"`
	CustomerPhone           string           `json:"customer_phone"`
	CarValue                decimal.Decimal  `json:"car_value"`
	VATPercent              *decimal.Decimal `json:"vat_percent"`
	DownPayment             *decimal.Decimal `json:"down_payment"`
	InterestPerMonthPercent *decimal.Decimal `json:"interest_per_month_percent"`
	FinanceFees             decimal.Decimal  `json:"finance_fees"`
	TermMonths              int              `json:"term_months"`
	StartDate               string           `json:"start_date"` // YYYY-MM-DD
}

func (s *Server) createInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	var req installmentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}

	var errs validators.FieldErrors
	if req.DownPayment == nil {
		errs.Add(validators.Missing("down_payment"))
	}
	if req.InterestPerMonthPercent == nil {
		errs.Add(validators.Missing("interest_per_month_percent"))
	}
	if req.TermMonths == 0 {
		errs.Add(validators.Missing("term_months"))
	}
	start, err := validators.Date("start_date", req.StartDate)
	errs.Add(err)
	if err := errs.Err(); err != nil {
		s.respondError(w, err)
		return
	}

	detail, err := s.ledger.CreateInstallment(r.Context(), ledger.InstallmentRequest{
		CarID:                   req.CarID,
		CustomerName:            req.CustomerName,
		CustomerPhone:           req.CustomerPhone,
		CarValue:                req.CarValue,
		VATPercent:              req.VATPercent,
		DownPayment:             *req.DownPayment,
		InterestPerMonthPercent: *req.InterestPerMonthPercent,
		FinanceFees:             req.FinanceFees,
		TermMonths:              req.TermMonths,
		StartDate:               start,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, detail)
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.ledger.ListContracts(models.ContractStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if contracts == nil {
		contracts = []*models.InstallmentContract{}
	}
	s.respondJSON(w, http.StatusOK, contracts)
}

func (s *Server) getInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	detail, err := s.ledger.GetSchedule(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

// contractMonth reads the {id} and {month} path variables.
func contractMonth(r *http.Request) (uuid.UUID, int, error) {
	var errs validators.FieldErrors
	id, err := pathID(r, "id")
	errs.Add(err)
	month, err := pathInt(r, "month")
	errs.Add(err)
	return id, month, errs.Err()
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, month, err := contractMonth(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req struct {
		PenaltyFee decimal.Decimal `json:"penalty_fee"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		s.respondError(w, err)
		return
	}

	detail, err := s.ledger.RecordMonthlyPayment(r.Context(), id, month, req.PenaltyFee)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) resetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, month, err := contractMonth(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	detail, err := s.ledger.ResetMonthlyPayment(r.Context(), id, month)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) transferOwnerBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	detail, err := s.ledger.TransferOwnerBook(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

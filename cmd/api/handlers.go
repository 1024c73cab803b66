package main

import (
	"net/http"

	"github.com/mcclellann/carlot/pkg/amortization"
	"github.com/mcclellann/carlot/pkg/ledger"
	"github.com/mcclellann/carlot/pkg/metrics"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/shopspring/decimal"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func calculatorOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (s *Server) installmentCalculatorHandler(w http.ResponseWriter, r *http.Request) {
	p := &queryParser{q: r.URL.Query()}
	in := amortization.InstallmentInput{
		CarValue:                p.number("car_value", true, decimal.Zero),
		VATPercent:              p.number("vat_percent", false, s.vatPercent),
		DownPayment:             p.number("down_payment", false, decimal.Zero),
		InterestPerMonthPercent: p.number("interest_per_month_percent", true, decimal.Zero),
		FinanceFees:             p.number("finance_fees", false, decimal.Zero),
		TermMonths:              p.integer("term_months"),
	}
	if err := p.errs.Err(); err != nil {
		metrics.CalculatorCalls.WithLabelValues("flat", "error").Inc()
		s.respondError(w, err)
		return
	}

	breakdown, err := amortization.ComputeInstallment(in)
	metrics.CalculatorCalls.WithLabelValues("flat", calculatorOutcome(err)).Inc()
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"input":     in,
		"breakdown": breakdown,
		"display":   breakdown.Display(),
	})
}

func (s *Server) annuityCalculatorHandler(w http.ResponseWriter, r *http.Request) {
	p := &queryParser{q: r.URL.Query()}
	carPrice := p.number("car_price", true, decimal.Zero)
	downPayment := p.number("down_payment", false, decimal.Zero)
	rate := p.number("annual_rate_percent", true, decimal.Zero)
	years := p.integer("term_years")
	if err := p.errs.Err(); err != nil {
		metrics.CalculatorCalls.WithLabelValues("annuity", "error").Inc()
		s.respondError(w, err)
		return
	}

	result, err := amortization.ComputeAnnuityPayment(carPrice, downPayment, rate, years)
	metrics.CalculatorCalls.WithLabelValues("annuity", calculatorOutcome(err)).Inc()
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"display": result.Display(),
	})
}

// carRequest is the only accepted shape of a car on the wire.
type carRequest struct {
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Year          int             `json:"year"`
	Color         string          `json:"color"`
	LicensePlate  string          `json:"license_plate"`
	VIN           string          `json:"vin"`
	Mileage       int             `json:"mileage"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	ListingPrice  decimal.Decimal `json:"listing_price"`
	Notes         string          `json:"notes"`
}

func (c carRequest) toModel() *models.Car {
	return &models.Car{
		Brand:         c.Brand,
		Model:         c.Model,
		Year:          c.Year,
		Color:         c.Color,
		LicensePlate:  c.LicensePlate,
		VIN:           c.VIN,
		Mileage:       c.Mileage,
		PurchasePrice: c.PurchasePrice,
		ListingPrice:  c.ListingPrice,
		Notes:         c.Notes,
	}
}

func (s *Server) createCarHandler(w http.ResponseWriter, r *http.Request) {
	var req carRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}

	car, err := s.ledger.CreateCar(req.toModel())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, car)
}

func (s *Server) listCarsHandler(w http.ResponseWriter, r *http.Request) {
	cars, err := s.ledger.ListCars(models.CarStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if cars == nil {
		cars = []*models.Car{}
	}
	s.respondJSON(w, http.StatusOK, cars)
}

func (s *Server) getCarHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	car, err := s.ledger.GetCar(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, car)
}

func (s *Server) updateCarHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req carRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}
	car := req.toModel()
	car.ID = id // Ensure ID from URL is used

	updated, err := s.ledger.UpdateCar(car)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteCarHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.ledger.DeleteCar(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sellCarHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req struct {
		CustomerName  string          `json:"customer_name"`
		CustomerPhone string          `json:"customer_phone"`
		Price         decimal.Decimal `json:"price"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondError(w, err)
		return
	}

	sale, err := s.ledger.SellCar(id, ledger.CashSale{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Price:         req.Price,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sale)
}

func (s *Server) listSalesHandler(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		s.respondError(w, err)
		return
	}

	sales, err := s.ledger.ListSales(period)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if sales == nil {
		sales = []*models.Sale{}
	}
	s.respondJSON(w, http.StatusOK, sales)
}

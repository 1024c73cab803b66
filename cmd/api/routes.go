package main

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	standardMiddleware := alice.New(s.recoverPanic, s.logRequest, s.traceRequest, secureHeaders)

	r := mux.NewRouter()
	r.Use(countRequest)
	r.NotFoundHandler = countRequest(http.HandlerFunc(s.notFound))
	r.MethodNotAllowedHandler = countRequest(http.HandlerFunc(s.methodNotAllowed))

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/calculator/installment", s.installmentCalculatorHandler).Methods("GET")
	r.HandleFunc("/calculator/annuity", s.annuityCalculatorHandler).Methods("GET")

	r.HandleFunc("/cars", s.listCarsHandler).Methods("GET")
	r.HandleFunc("/cars", s.createCarHandler).Methods("POST")
	r.HandleFunc("/cars/{id}", s.getCarHandler).Methods("GET")
	r.HandleFunc("/cars/{id}", s.updateCarHandler).Methods("PUT")
	r.HandleFunc("/cars/{id}", s.deleteCarHandler).Methods("DELETE")
	r.HandleFunc("/cars/{id}/sell", s.sellCarHandler).Methods("POST")

	r.HandleFunc("/installments", s.listInstallmentsHandler).Methods("GET")
	r.HandleFunc("/installments", s.createInstallmentHandler).Methods("POST")
	r.HandleFunc("/installments/{id}", s.getInstallmentHandler).Methods("GET")
	r.HandleFunc("/installments/{id}/payments/{month}", s.recordPaymentHandler).Methods("POST")
	r.HandleFunc("/installments/{id}/payments/{month}", s.resetPaymentHandler).Methods("DELETE")
	r.HandleFunc("/installments/{id}/transfer", s.transferOwnerBookHandler).Methods("POST")

	r.HandleFunc("/sales", s.listSalesHandler).Methods("GET")

	r.HandleFunc("/expenses", s.listExpensesHandler).Methods("GET")
	r.HandleFunc("/expenses", s.createExpenseHandler).Methods("POST")
	r.HandleFunc("/expenses/{id}", s.deleteExpenseHandler).Methods("DELETE")

	r.HandleFunc("/analysis", s.analysisHandler).Methods("GET")

	return standardMiddleware.Then(handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedOrigins(s.allowedOrigins),
	)(r))
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/carlot/pkg/ledger"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/schedule"
	"github.com/mcclellann/carlot/pkg/store"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.Response{Success: true, Data: data})
}

func (s *Server) respondErrors(w http.ResponseWriter, status int, errs []models.FieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.Response{Success: false, Errors: errs})
}

func (s *Server) clientError(w http.ResponseWriter, status int, message string) {
	s.respondErrors(w, status, []models.FieldError{{Message: message}})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.clientError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.clientError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}

// serverError logs the error with its stack and hides the details from the client.
func (s *Server) serverError(w http.ResponseWriter, err error) {
	trace := fmt.Sprintf("%s\n%s", err.Error(), debug.Stack())
	s.errorLog.Output(2, trace)
	s.clientError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// respondError maps a ledger or store error onto a status code.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validators.ErrInvalidInput):
		fields := validators.Fields(err)
		out := make([]models.FieldError, 0, len(fields))
		for _, f := range fields {
			out = append(out, models.FieldError{Field: f.Field, Message: f.Message, Value: f.Value})
		}
		if len(out) == 0 {
			out = append(out, models.FieldError{Message: err.Error()})
		}
		s.respondErrors(w, http.StatusBadRequest, out)
	case errors.Is(err, schedule.ErrMonthOutOfRange):
		s.respondErrors(w, http.StatusBadRequest, []models.FieldError{{Field: "month", Message: err.Error()}})
	case errors.Is(err, store.ErrNotFound):
		s.clientError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrMonthLocked),
		errors.Is(err, schedule.ErrLaterMonthPaid),
		errors.Is(err, schedule.ErrOwnerBookNotReady),
		errors.Is(err, schedule.ErrAlreadyTransferred),
		errors.Is(err, ledger.ErrCarNotAvailable):
		s.clientError(w, http.StatusConflict, err.Error())
	default:
		s.serverError(w, err)
	}
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields. An empty body
// leaves dst untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return &validators.FieldError{Field: "body", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &validators.FieldError{Field: name, Message: "value must be a UUID", Value: raw}
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := mux.Vars(r)[name]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &validators.FieldError{Field: name, Message: "value must be an integer", Value: raw}
	}
	return n, nil
}

// parsePeriod reads the from/to query dates. Both are whole days and to is inclusive.
func parsePeriod(q url.Values) (store.Period, error) {
	var errs validators.FieldErrors
	from, err := validators.Date("from", q.Get("from"))
	errs.Add(err)
	to, err := validators.Date("to", q.Get("to"))
	errs.Add(err)
	if err := errs.Err(); err != nil {
		return store.Period{}, err
	}

	period := store.Period{From: from}
	if !to.IsZero() {
		period.To = to.AddDate(0, 0, 1)
	}
	return period, nil
}

// queryParser collects numeric query parameters and their field errors.
type queryParser struct {
	q    url.Values
	errs validators.FieldErrors
}

// number parses name as a finite number. A missing parameter yields def, or a field
// error when required.
func (p *queryParser) number(name string, required bool, def decimal.Decimal) decimal.Decimal {
	raw := p.q.Get(name)
	if raw == "" {
		if required {
			p.errs.Add(validators.Missing(name))
		}
		return def
	}
	d, err := validators.Number(name, raw)
	if err != nil {
		p.errs.Add(err)
		return def
	}
	return d
}

func (p *queryParser) integer(name string) int {
	raw := p.q.Get(name)
	if raw == "" {
		p.errs.Add(validators.Missing(name))
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs.Add(&validators.FieldError{Field: name, Message: "value must be an integer", Value: raw})
		return 0
	}
	return n
}

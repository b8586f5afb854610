package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"fiado/internal/auth"
	"fiado/internal/core"
	"fiado/internal/export"
	"fiado/internal/services"
)

type recordPurchaseRequest struct {
	CustomerID int64      `json:"customerId"`
	Product    string     `json:"product"`
	Amount     core.Money `json:"amount"`
	Date       string     `json:"date,omitempty"`
}

func (s *Server) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())

	var req recordPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	st, err := s.ledger.RecordPurchase(r.Context(), actor, req.CustomerID, services.PurchaseInput{
		Product: sanitizeInput(req.Product),
		Amount:  req.Amount,
		Date:    strings.TrimSpace(req.Date),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

type closeStatementRequest struct {
	CustomerID int64      `json:"customerId"`
	Month      string     `json:"month"`
	PaidAmount core.Money `json:"paidAmount"`
}

func (s *Server) handleCloseStatement(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())

	var req closeStatementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	st, err := s.ledger.CloseStatement(r.Context(), actor, req.CustomerID, core.MonthKey(req.Month), req.PaidAmount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleCustomerStatements(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	customerID, err := pathID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid customer id"})
		return
	}

	sts, err := s.ledger.StatementsForCustomer(r.Context(), actor, customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if sts == nil {
		sts = []core.Statement{}
	}
	respondJSON(w, http.StatusOK, sts)
}

func (s *Server) handleOpenStatement(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	customerID, err := pathID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid customer id"})
		return
	}

	month := core.MonthKey(strings.TrimSpace(r.URL.Query().Get("month")))
	if month == "" {
		month = core.CurrentMonthKey(time.Now())
	}

	st, ok, err := s.ledger.OpenStatementFor(r.Context(), actor, customerID, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !ok {
		respondError(w, r, core.ErrNoOpenStatement)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleCustomerStatementsCSV(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	customerID, err := pathID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid customer id"})
		return
	}

	sts, err := s.ledger.StatementsForCustomer(r.Context(), actor, customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	data, err := export.BuildStatementCSV(sts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statements-%d.csv"`, customerID))
	w.Write(data)
}

func (s *Server) handleStoreStatements(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	storeID, err := pathID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid store id"})
		return
	}

	sts, err := s.ledger.StatementsForStore(r.Context(), actor, storeID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if sts == nil {
		sts = []core.Statement{}
	}
	respondJSON(w, http.StatusOK, sts)
}

func (s *Server) handleStoreOutstanding(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	storeID, err := pathID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid store id"})
		return
	}

	outstanding, err := s.ledger.StoreOutstanding(r.Context(), actor, storeID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]core.Money{"outstanding": outstanding})
}

func (s *Server) handleStatementXLSX(w http.ResponseWriter, r *http.Request) {
	st, ok := s.loadStatement(w, r)
	if !ok {
		return
	}
	data, err := export.BuildStatementXLSX(st)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%d.xlsx"`, st.ID))
	w.Write(data)
}

func (s *Server) handleStatementPDF(w http.ResponseWriter, r *http.Request) {
	st, ok := s.loadStatement(w, r)
	if !ok {
		return
	}
	data, err := export.BuildStatementPDF(st)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%d.pdf"`, st.ID))
	w.Write(data)
}

func (s *Server) loadStatement(w http.ResponseWriter, r *http.Request) (core.Statement, bool) {
	actor, _ := auth.IdentityFrom(r.Context())
	statementID, err := pathID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid statement id"})
		return core.Statement{}, false
	}

	st, err := s.ledger.GetStatement(r.Context(), actor, statementID)
	if err != nil {
		respondError(w, r, err)
		return core.Statement{}, false
	}
	return st, true
}

package http

import (
	"net/http"

	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/taxcalc"
)

// handleSalaryTax computes tax on an annual or monthly salary. Exactly one
// of annualSalary and monthlySalary must be given.
func (s *Server) handleSalaryTax(w http.ResponseWriter, r *http.Request) {
	body, err := DecodeBody(w, r)
	if err != nil {
		respondError(w, r, err, log.OpCalculate)
		return
	}

	year, err := core.ParseTaxYear(body["taxYear"])
	if err != nil {
		respondError(w, r, &core.ValidationError{Field: "taxYear", Reason: err.Error()}, log.OpCalculate)
		return
	}

	annual, hasAnnual := body["annualSalary"]
	monthly, hasMonthly := body["monthlySalary"]
	if hasAnnual == hasMonthly {
		respondError(w, r, &core.ValidationError{Field: "annualSalary", Reason: "provide exactly one of annualSalary or monthlySalary"}, log.OpCalculate)
		return
	}

	var result taxcalc.Result
	if hasAnnual {
		amount, perr := core.ParseAmount(annual)
		if perr != nil {
			respondError(w, r, &core.ValidationError{Field: "annualSalary", Reason: perr.Error()}, log.OpCalculate)
			return
		}
		result, err = s.deps.Tax.Calculate(year, amount)
	} else {
		amount, perr := core.ParseAmount(monthly)
		if perr != nil {
			respondError(w, r, &core.ValidationError{Field: "monthlySalary", Reason: perr.Error()}, log.OpCalculate)
			return
		}
		result, err = s.deps.Tax.CalculateMonthly(year, amount)
	}
	if err != nil {
		respondError(w, r, err, log.OpCalculate)
		return
	}
	NewJSONResponse().Body(result).Write(w)
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/vitwit/payless/analytics"
	"github.com/vitwit/payless/middleware"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

// filterFromQuery reads an analytics filter from query parameters. Dates
// take unix milliseconds or RFC 3339.
func filterFromQuery(q url.Values) (types.AnalyticsFilter, error) {
	var f types.AnalyticsFilter
	if v := q.Get("startDate"); v != "" {
		t, err := utils.ParseFlexibleTime(v)
		if err != nil {
			return f, types.NewError(types.ErrInvalidPayload, "startDate: %v", err)
		}
		f.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := utils.ParseFlexibleTime(v)
		if err != nil {
			return f, types.NewError(types.ErrInvalidPayload, "endDate: %v", err)
		}
		f.EndDate = &t
	}
	f.Endpoint = q.Get("endpoint")
	f.Wallet = q.Get("wallet")
	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, types.NewError(types.ErrInvalidPayload, "status: %v", err)
		}
		f.Status = n
	}
	if v := q.Get("minAmount"); v != "" {
		d, err := utils.ValidateAmount(v)
		if err != nil {
			return f, types.NewError(types.ErrInvalidPayload, "minAmount: %v", err)
		}
		f.MinAmount = d
	}
	if v := q.Get("maxAmount"); v != "" {
		d, err := utils.ValidateAmount(v)
		if err != nil {
			return f, types.NewError(types.ErrInvalidPayload, "maxAmount: %v", err)
		}
		f.MaxAmount = d
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, types.NewError(types.ErrInvalidPayload, "limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.fail(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.Analytics.GetMetrics(f),
		"filter":  f,
	})
}

type exportRequest struct {
	Format string                `json:"format"`
	Filter types.AnalyticsFilter `json:"filter"`
}

func (s *Server) exportAnalytics(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.fail(w, err)
			return
		}
	}
	events := s.Analytics.Events(req.Filter)

	switch req.Format {
	case "", "json":
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    events,
			"count":   len(events),
		})
	case "csv":
		var buf bytes.Buffer
		if err := analytics.WriteCSV(&buf, events); err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="analytics-%d.csv"`, s.Now().UnixMilli()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	default:
		s.fail(w, types.NewError(types.ErrInvalidPayload, "unsupported export format %q", req.Format))
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

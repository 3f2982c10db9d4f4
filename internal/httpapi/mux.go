package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux returns a mux carrying the operational endpoints. Feature modules add
// their own routes to it.
func NewMux(db *sql.DB, metrics *Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	return mux
}

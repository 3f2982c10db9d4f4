package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"readings-server/internal/modules/readings/repository"
	"readings-server/internal/modules/readings/types"
)

const maxBodyBytes = 100 << 10

var errInvalidBody = errors.New("invalid JSON body")

type createReadingRequest struct {
	DeviceID    *string  `json:"deviceId"`
	Humidity    *float64 `json:"humidity"`
	Temperature *float64 `json:"temperature"`
}

// decodeNewReading reads the create body. An empty body decodes as {} so the
// request fails validation rather than parsing. Anything after the first JSON
// value is rejected.
func decodeNewReading(w http.ResponseWriter, r *http.Request) (types.NewReading, error) {
	var req createReadingRequest
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		err := dec.Decode(&req)
		if errors.Is(err, io.EOF) {
			return types.NewReading{}, nil
		}
		if err != nil {
			return types.NewReading{}, errInvalidBody
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return types.NewReading{}, errInvalidBody
		}
	}
	return types.NewReading{
		DeviceID:    req.DeviceID,
		Humidity:    req.Humidity,
		Temperature: req.Temperature,
	}, nil
}

func parseRecentQuery(r *http.Request) (limit int, err error) {
	limit = repository.RecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > repository.RecentLimit {
			return 0, errors.New("'limit' must be <= " + strconv.Itoa(repository.RecentLimit))
		}
		limit = n
	}
	return limit, nil
}

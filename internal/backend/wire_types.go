package backend

import "encoding/json"

// Request body shared by /stats and /charts/{chartType}.
type datasetRequest struct {
	CSVData string `json:"csv_data"`
}

// Error body of a non-2xx response. FastAPI sends detail either as a string
// or, for validation failures, as a list of {loc, msg, type} objects.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type validationIssue struct {
	Msg string `json:"msg"`
}

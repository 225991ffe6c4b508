package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// HTTPHandler decodes JSON usage reports and forwards them to sink.
// Params: sink receives validated reports, max body limits payload size.
// Returns: HTTP handler for ingest endpoint and its /batch sub-path.
type HTTPHandler struct {
	sink        ReportSink
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPHandler creates ingest HTTP handler.
// Params: sink, max request body size in bytes, and logger.
// Returns: configured handler.
func NewHTTPHandler(sink ReportSink, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP handles one incoming report request.
// Params: HTTP request/response writer pair.
// Returns: 202 on accept, 400 on decode/validation failure, 503 when sink fails.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	reports, isArray, err := decodePayload(body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	batchPath := strings.HasSuffix(strings.TrimRight(request.URL.Path, "/"), "/batch")
	if batchPath != isArray {
		writeError(writer, http.StatusBadRequest, "batch endpoint expects JSON array, single endpoint expects object")
		return
	}

	if err := push(request.Context(), h.sink, reports, isArray); err != nil {
		h.logger.Error("http ingest push failed", "reports", len(reports), "error", err)
		writeError(writer, http.StatusServiceUnavailable, "ingest unavailable")
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(writer).Encode(map[string]int{"accepted": len(reports)})
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(map[string]string{"error": message})
}

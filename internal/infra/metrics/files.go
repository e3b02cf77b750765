package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	batchFilesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_files_processed_total",
			Help: "Files that reached a terminal state, labeled by status and error code.",
		},
		[]string{"status", "code"}, // code is empty for completed files
	)

	batchUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_uploads_total",
			Help: "Uploaded files by result ('accepted', 'rejected').",
		},
		[]string{"result"},
	)
)

func IncFileProcessed(status, code string) {
	batchFilesProcessedTotal.WithLabelValues(norm(status), norm(code)).Inc()
}

func IncUpload(result string) {
	batchUploadsTotal.WithLabelValues(norm(result)).Inc()
}

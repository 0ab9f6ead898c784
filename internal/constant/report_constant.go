package constant

const (
	// ReportWakeTopic is the in-process topic that nudges the report worker after an enqueue.
	ReportWakeTopic = "report_jobs.enqueued"

	ReportDefaultFormat = "pdf"

	EventReportReady  = "REPORT_READY"
	EventReportFailed = "REPORT_FAILED"

	NotificationEntityReport    = "report"
	NotificationEntityReportJob = "report_job"

	DefaultPageLimit = 20
)
